package router

import (
	"context"
	"fmt"
	"time"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/event"
	"github.com/basinrelay/flowgate/pkg/finalize"
	"github.com/basinrelay/flowgate/pkg/pipeline"
	"github.com/basinrelay/flowgate/pkg/pipeline/compress"
	"github.com/basinrelay/flowgate/pkg/topology"
	"github.com/basinrelay/flowgate/pkg/transport"
)

// SinkConfig configures a Sink.
type SinkConfig struct {
	Addr    string
	CertDir string

	BatchLimits    pipeline.BatchLimits
	Compression    compress.Encoding
	MaxRequestSize int
	MaxConcurrency int
	MaxRetries     int
	RequestTimeout time.Duration
}

// Sink is a topology.Component and topology.HealthChecker forwarding
// events to another router (or any EventService-speaking endpoint) via
// pkg/transport's gRPC client, driven by the same batch/dispatch
// machinery as internal/sinks/httpsink.
type Sink struct {
	id  string
	cfg SinkConfig
	in  buffer.Receiver

	client      *transport.Client
	batcher     *pipeline.Batcher
	requestBldr *pipeline.RequestBuilder
	dispatcher  *pipeline.Dispatcher
	classifier  pipeline.Classifier
}

// NewSink dials cfg.Addr and builds a Sink reading from in.
func NewSink(id string, cfg SinkConfig, in buffer.Receiver) (*Sink, error) {
	client, err := transport.Dial(transport.ClientOptions{
		Addr:           cfg.Addr,
		CertDir:        cfg.CertDir,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("router sink %s: %w", id, err)
	}

	compressor, err := compress.New(cfg.Compression, 0)
	if err != nil {
		return nil, fmt.Errorf("router sink %s: %w", id, err)
	}

	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 16
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 5
	}

	return &Sink{
		id:          id,
		cfg:         cfg,
		in:          in,
		client:      client,
		batcher:     pipeline.NewBatcher(pipeline.NewUnkeyedPartitioner(), cfg.BatchLimits, func(e event.Event) int { return e.ByteSize() }),
		requestBldr: pipeline.NewRequestBuilder(encodeBatch, compressor, cfg.MaxRequestSize),
		dispatcher:  pipeline.NewDispatcher(maxConcurrency, false),
		classifier:  pipeline.NewDefaultClassifier(retries),
	}, nil
}

// BuildSink adapts NewSink to topology.BuildFunc for wiring into a Graph.
func BuildSink(id string, cfg SinkConfig) topology.BuildFunc {
	return func(in buffer.Receiver, out buffer.Sender) (topology.Component, error) {
		return NewSink(id, cfg, in)
	}
}

func (s *Sink) Run(ctx context.Context) error {
	go s.batcher.Run()

	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		defer close(s.batcher.In())
		for {
			e, ok := s.in.Recv(ctx)
			if !ok {
				return
			}
			select {
			case s.batcher.In() <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	for batch := range s.batcher.Out() {
		reqs, err := s.requestBldr.Build(batch)
		if err != nil {
			batch.Finalizers.UpdateStatus(finalize.Rejected)
			continue
		}
		for _, req := range reqs {
			if err := s.dispatcher.Dispatch(ctx, s.attempt(req), s.classifier, req.Finalizers); err != nil && ctx.Err() != nil {
				<-recvDone
				s.batcher.Stop()
				return s.client.Close()
			}
		}
	}

	<-recvDone
	s.batcher.Stop()
	return s.client.Close()
}

func (s *Sink) attempt(req pipeline.Request) pipeline.AttemptFunc {
	return func(ctx context.Context) pipeline.AttemptResult {
		start := time.Now()
		batchID := fmt.Sprintf("%s-%d", s.id, start.UnixNano())

		accepted, reason, err := s.client.PushEvents(ctx, batchID, req.Body, string(req.Encoding))
		if err != nil {
			return pipeline.AttemptResult{Duration: time.Since(start), Err: err}
		}
		if !accepted {
			return pipeline.AttemptResult{
				Duration:   time.Since(start),
				Err:        fmt.Errorf("router sink %s: remote rejected batch: %s", s.id, reason),
				StatusCode: 400,
			}
		}
		return pipeline.AttemptResult{Duration: time.Since(start)}
	}
}

// Healthcheck calls the remote's HealthCheck RPC.
func (s *Sink) Healthcheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}
