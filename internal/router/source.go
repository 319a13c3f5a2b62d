package router

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/event"
	"github.com/basinrelay/flowgate/pkg/finalize"
	"github.com/basinrelay/flowgate/pkg/log"
	"github.com/basinrelay/flowgate/pkg/topology"
	"github.com/basinrelay/flowgate/pkg/transport"
)

// SourceConfig configures a Source.
type SourceConfig struct {
	Addr              string
	CertDir           string
	RequireClientCert bool
}

// Source is a topology.Component and transport.Handler: it runs a
// transport.Server and, for each accepted PushEvents call, decodes the
// batch, forwards its events onto the local edge, and acknowledges the
// RPC once the batch has been resolved downstream.
type Source struct {
	id     string
	cfg    SourceConfig
	out    buffer.Sender
	server *transport.Server
}

// New builds a router Source writing decoded events to out.
func New(id string, cfg SourceConfig, out buffer.Sender) (*Source, error) {
	s := &Source{id: id, cfg: cfg, out: out}
	server, err := transport.NewServer(s, transport.ServerOptions{
		Addr:              cfg.Addr,
		CertDir:           cfg.CertDir,
		RequireClientCert: cfg.RequireClientCert,
	})
	if err != nil {
		return nil, fmt.Errorf("router source %s: %w", id, err)
	}
	s.server = server
	return s, nil
}

// Build adapts New to topology.BuildFunc for wiring into a Graph.
func Build(id string, cfg SourceConfig) topology.BuildFunc {
	return func(in buffer.Receiver, out buffer.Sender) (topology.Component, error) {
		return New(id, cfg, out)
	}
}

func (s *Source) Run(ctx context.Context) error {
	l := log.WithSource(s.id)
	done := make(chan error, 1)
	go func() { done <- s.server.Serve(s.cfg.Addr) }()

	select {
	case <-ctx.Done():
		l.Info().Msg("router source shutting down")
		s.server.Stop()
		<-done
		return nil
	case err := <-done:
		return err
	}
}

// PushEvents implements transport.Handler: it decodes payload (gunzipping
// first if contentEncoding says so), resolves each event's batch-level
// acknowledgement into a single BatchNotifier, and blocks until every
// event is admitted onto the output edge and the batch's joined status
// comes back; any status other than Delivered is returned as an error.
func (s *Source) PushEvents(ctx context.Context, batchID string, payload []byte, contentEncoding string) error {
	if contentEncoding == "gzip" {
		decompressed, err := gunzip(payload)
		if err != nil {
			return fmt.Errorf("router source %s: decompress batch %s: %w", s.id, batchID, err)
		}
		payload = decompressed
	}

	events, err := decodeBatch(payload)
	if err != nil {
		return fmt.Errorf("router source %s: decode batch %s: %w", s.id, batchID, err)
	}
	if len(events) == 0 {
		return nil
	}

	bn, statusCh := finalize.NewBatchNotifier()
	for i := range events {
		f := finalize.AddFinalizer(bn)
		meta := events[i].Metadata()
		meta.Finalizers = finalize.EventFinalizers{f}
		events[i].SetMetadata(meta)
	}
	bn.Release()

	var wg sync.WaitGroup
	wg.Add(len(events))
	sendErr := make(chan error, len(events))
	for _, e := range events {
		e := e
		go func() {
			defer wg.Done()
			if err := s.out.Send(ctx, e); err != nil {
				sendErr <- err
			}
		}()
	}
	wg.Wait()
	close(sendErr)
	for err := range sendErr {
		if err != nil {
			return fmt.Errorf("router source %s: admit batch %s: %w", s.id, batchID, err)
		}
	}

	select {
	case status := <-statusCh:
		if status != finalize.Delivered {
			return fmt.Errorf("router source %s: batch %s resolved %v downstream", s.id, batchID, status)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Healthcheck always succeeds once the gRPC server is constructed: the
// listener itself is probed by the remote's own HealthCheck RPC, not
// by the local supervisor.
func (s *Source) Healthcheck(ctx context.Context) error {
	return nil
}

func gunzip(payload []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
