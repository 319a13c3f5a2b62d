// Package blackhole is the minimal reference sink: it acknowledges
// and discards every event it receives. It exists to give the core
// pipeline something to drain into for tests and for throughput
// benchmarking, where the cost of a real downstream transport would
// only obscure the core's own overhead.
package blackhole

import (
	"context"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/finalize"
	"github.com/basinrelay/flowgate/pkg/log"
	"github.com/basinrelay/flowgate/pkg/topology"
)

// Sink implements topology.Component and topology.HealthChecker; it is
// always healthy once constructed.
type Sink struct {
	id string
	in buffer.Receiver
}

// New builds a blackhole Sink reading from in.
func New(id string, in buffer.Receiver) *Sink {
	return &Sink{id: id, in: in}
}

// Build adapts New to topology.BuildFunc for wiring into a Graph.
func Build(id string) topology.BuildFunc {
	return func(in buffer.Receiver, out buffer.Sender) (topology.Component, error) {
		return New(id, in), nil
	}
}

func (s *Sink) Run(ctx context.Context) error {
	l := log.WithSink(s.id)
	var count uint64
	for {
		e, ok := s.in.Recv(ctx)
		if !ok {
			l.Info().Uint64("events", count).Msg("blackhole sink draining, input closed")
			return nil
		}
		meta := e.Metadata()
		meta.Finalizers.UpdateStatus(finalize.Delivered)
		count++
	}
}

// Healthcheck always succeeds: a blackhole sink has no downstream
// dependency to be unhealthy about.
func (s *Sink) Healthcheck(ctx context.Context) error {
	return nil
}
