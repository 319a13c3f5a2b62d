// Package httpsink is a generic HTTP(S) batch sink exercising the full
// request pipeline: partition, batch, build request, dispatch with
// retry and adaptive concurrency, then acknowledge. It speaks
// newline-delimited JSON over a single configured endpoint, optionally
// gzip- or zstd-compressed.
package httpsink

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/event"
	"github.com/basinrelay/flowgate/pkg/finalize"
	"github.com/basinrelay/flowgate/pkg/health"
	"github.com/basinrelay/flowgate/pkg/log"
	"github.com/basinrelay/flowgate/pkg/pipeline"
	"github.com/basinrelay/flowgate/pkg/pipeline/compress"
	"github.com/basinrelay/flowgate/pkg/topology"
)

// Config configures a Sink.
type Config struct {
	// URL is the endpoint every batch is POSTed to.
	URL string
	// HealthURL, if set, is probed by Healthcheck; defaults to URL.
	HealthURL string
	Headers   map[string]string

	BatchLimits         pipeline.BatchLimits
	PartitionTmpl       string
	Compression         compress.Encoding
	MaxRequestSize      int
	MaxConcurrency      int
	AdaptiveConcurrency bool
	MaxRetries          int
	RequestTimeout      time.Duration
}

// Sink implements topology.Component and topology.HealthChecker,
// driving events read from its input edge through pkg/pipeline and out
// over HTTP.
type Sink struct {
	id  string
	cfg Config
	in  buffer.Receiver

	client      *http.Client
	batcher     *pipeline.Batcher
	requestBldr *pipeline.RequestBuilder
	dispatcher  *pipeline.Dispatcher
	classifier  pipeline.Classifier
	checker     *health.HTTPChecker
}

// New builds an httpsink Sink, returning an error if cfg.PartitionTmpl
// or cfg.Compression is invalid. Both are configuration errors that
// should surface at topology build time, not mid-stream.
func New(id string, cfg Config, in buffer.Receiver) (*Sink, error) {
	partitioner, err := partitionerFor(cfg.PartitionTmpl)
	if err != nil {
		return nil, fmt.Errorf("httpsink %s: %w", id, err)
	}

	compressor, err := compress.New(cfg.Compression, 0)
	if err != nil {
		return nil, fmt.Errorf("httpsink %s: %w", id, err)
	}

	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 16
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 5
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	healthURL := cfg.HealthURL
	if healthURL == "" {
		healthURL = cfg.URL
	}

	return &Sink{
		id:  id,
		cfg: cfg,
		in:  in,
		client: &http.Client{
			Timeout: timeout,
		},
		batcher:     pipeline.NewBatcher(partitioner, cfg.BatchLimits, eventSize),
		requestBldr: pipeline.NewRequestBuilder(encodeNDJSON, compressor, cfg.MaxRequestSize),
		dispatcher:  pipeline.NewDispatcher(maxConcurrency, cfg.AdaptiveConcurrency),
		classifier:  pipeline.NewDefaultClassifier(retries),
		checker:     health.NewHTTPChecker(healthURL),
	}, nil
}

// Build adapts New to topology.BuildFunc for wiring into a Graph.
func Build(id string, cfg Config) topology.BuildFunc {
	return func(in buffer.Receiver, out buffer.Sender) (topology.Component, error) {
		return New(id, cfg, in)
	}
}

func partitionerFor(tmpl string) (*pipeline.Partitioner, error) {
	if tmpl == "" {
		return pipeline.NewUnkeyedPartitioner(), nil
	}
	return pipeline.NewPartitioner(tmpl)
}

func eventSize(e event.Event) int {
	return e.ByteSize()
}

func encodeNDJSON(events []event.Event) ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range events {
		encoded, err := event.EncodeEvent(e, event.TagSingle)
		if err != nil {
			return nil, fmt.Errorf("encode event: %w", err)
		}
		buf.Write(encoded)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func (s *Sink) Run(ctx context.Context) error {
	l := log.WithSink(s.id)
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
			l.Error().Err(err).Msg("failed to build request from batch, dropping")
			batch.Finalizers.UpdateStatus(finalize.Rejected)
			continue
		}
		for _, req := range reqs {
			req := req
			if err := s.dispatcher.Dispatch(ctx, s.attempt(req), s.classifier, req.Finalizers); err != nil && ctx.Err() != nil {
				<-recvDone
				s.batcher.Stop()
				return nil
			}
		}
	}

	<-recvDone
	s.batcher.Stop()
	return nil
}

func (s *Sink) attempt(req pipeline.Request) pipeline.AttemptFunc {
	return func(ctx context.Context) pipeline.AttemptResult {
		start := time.Now()

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(req.Body))
		if err != nil {
			return pipeline.AttemptResult{Duration: time.Since(start), Err: err}
		}
		httpReq.Header.Set("Content-Type", "application/x-ndjson")
		if req.Encoding != compress.None {
			httpReq.Header.Set("Content-Encoding", string(req.Encoding))
		}
		for k, v := range s.cfg.Headers {
			httpReq.Header.Set(k, v)
		}

		resp, err := s.client.Do(httpReq)
		if err != nil {
			return pipeline.AttemptResult{Duration: time.Since(start), Err: err}
		}
		defer resp.Body.Close()

		var retryAfter time.Duration
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, parseErr := time.ParseDuration(ra + "s"); parseErr == nil {
				retryAfter = secs
			}
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return pipeline.AttemptResult{Duration: time.Since(start), StatusCode: resp.StatusCode}
		}
		return pipeline.AttemptResult{
			Duration:   time.Since(start),
			Err:        fmt.Errorf("httpsink %s: unexpected status %d", s.id, resp.StatusCode),
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter,
		}
	}
}

// Healthcheck probes cfg.HealthURL (or cfg.URL) over HTTP.
func (s *Sink) Healthcheck(ctx context.Context) error {
	result := s.checker.Check(ctx)
	if !result.Healthy {
		return fmt.Errorf("httpsink %s: %s", s.id, result.Message)
	}
	return nil
}
