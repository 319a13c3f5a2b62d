// Package console writes JSON-encoded events to an io.Writer (stdout
// in production), acknowledging each one as delivered once the write
// succeeds.
package console

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/event"
	"github.com/basinrelay/flowgate/pkg/finalize"
	"github.com/basinrelay/flowgate/pkg/log"
	"github.com/basinrelay/flowgate/pkg/topology"
)

// Config configures a Sink.
type Config struct {
	Writer  io.Writer
	TagMode event.TagMode
}

// Sink implements topology.Component and topology.HealthChecker.
type Sink struct {
	id  string
	in  buffer.Receiver
	cfg Config
	mu  sync.Mutex
}

// New builds a console Sink writing to cfg.Writer.
func New(id string, cfg Config, in buffer.Receiver) *Sink {
	return &Sink{id: id, in: in, cfg: cfg}
}

// Build adapts New to topology.BuildFunc for wiring into a Graph.
func Build(id string, cfg Config) topology.BuildFunc {
	return func(in buffer.Receiver, out buffer.Sender) (topology.Component, error) {
		return New(id, cfg, in), nil
	}
}

func (s *Sink) Run(ctx context.Context) error {
	l := log.WithSink(s.id)
	for {
		e, ok := s.in.Recv(ctx)
		if !ok {
			return nil
		}

		encoded, err := event.EncodeEvent(e, s.cfg.TagMode)
		meta := e.Metadata()
		if err != nil {
			l.Warn().Err(err).Msg("failed to encode event, marking rejected")
			meta.Finalizers.UpdateStatus(finalize.Rejected)
			continue
		}

		s.mu.Lock()
		_, writeErr := fmt.Fprintln(s.cfg.Writer, string(encoded))
		s.mu.Unlock()

		if writeErr != nil {
			meta.Finalizers.UpdateStatus(finalize.Errored)
			return fmt.Errorf("console %s: write: %w", s.id, writeErr)
		}
		meta.Finalizers.UpdateStatus(finalize.Delivered)
	}
}

// Healthcheck always succeeds: an io.Writer has no connection state to
// probe.
func (s *Sink) Healthcheck(ctx context.Context) error {
	return nil
}
