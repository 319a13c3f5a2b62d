// Package generator is a synthetic event source used by tests and by
// the `generator` node type of `flowgate run`: it needs no external
// dependency to exercise the rest of the pipeline end to end.
package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/event"
	"github.com/basinrelay/flowgate/pkg/finalize"
	"github.com/basinrelay/flowgate/pkg/log"
	"github.com/basinrelay/flowgate/pkg/topology"
)

// Shape selects which event type the generator emits.
type Shape string

const (
	ShapeLog    Shape = "log"
	ShapeMetric Shape = "metric"
)

// Config configures a Source.
type Config struct {
	Shape Shape
	// Rate is how many events per second to emit. A zero or negative
	// Rate emits as fast as the downstream edge accepts sends.
	Rate float64
	// Count caps the total number of events emitted; zero means
	// unbounded (until ctx is cancelled).
	Count uint64
}

// Source implements topology.Component, generating synthetic events
// onto its output edge until ctx is cancelled or Count is reached.
type Source struct {
	id  string
	cfg Config
	out buffer.Sender

	emitted uint64
}

// New builds a generator Source. id identifies the owning topology
// node for logging.
func New(id string, cfg Config, out buffer.Sender) *Source {
	return &Source{id: id, cfg: cfg, out: out}
}

// Build adapts New to topology.BuildFunc for wiring into a Graph.
func Build(id string, cfg Config) topology.BuildFunc {
	return func(in buffer.Receiver, out buffer.Sender) (topology.Component, error) {
		return New(id, cfg, out), nil
	}
}

func (s *Source) Run(ctx context.Context) error {
	l := log.WithSource(s.id)

	var ticker *time.Ticker
	if s.cfg.Rate > 0 {
		ticker = time.NewTicker(time.Duration(float64(time.Second) / s.cfg.Rate))
		defer ticker.Stop()
	}

	for {
		if s.cfg.Count > 0 && s.emitted >= s.cfg.Count {
			l.Info().Uint64("emitted", s.emitted).Msg("generator reached configured count, stopping")
			return nil
		}

		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return nil
			}
		} else {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
		}

		e := s.nextEvent()
		if err := s.out.Send(ctx, e); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("generator %s: send: %w", s.id, err)
		}
		s.emitted++
	}
}

func (s *Source) nextEvent() event.Event {
	bn, _ := finalize.NewBatchNotifier()
	f := finalize.AddFinalizer(bn)
	bn.Release()
	meta := event.EventMetadata{Finalizers: finalize.EventFinalizers{f}}

	switch s.cfg.Shape {
	case ShapeMetric:
		val := event.NewCounter(float64(s.emitted))
		m := event.NewMetric(fmt.Sprintf("%s.generated_total", s.id), event.Absolute, val, time.Now())
		return event.NewMetricEvent(m, meta)
	default:
		fields := event.NewObjectMap()
		fields.Set("message", event.NewString(fmt.Sprintf("synthetic event %d from %s", s.emitted, s.id)))
		fields.Set("sequence", event.NewInteger(int64(s.emitted)))
		fields.Set("timestamp", event.NewTimestamp(time.Now()))
		return event.NewLog(fields, meta)
	}
}
