package topology

import (
	"context"
	"errors"
	"sync"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/event"
)

// componentFunc adapts a plain function to the Component interface.
type componentFunc func(ctx context.Context) error

func (f componentFunc) Run(ctx context.Context) error { return f(ctx) }

// trivialBuild satisfies BuildFunc for nodes whose behavior a test
// doesn't care about: it just blocks until ctx is cancelled.
func trivialBuild(in buffer.Receiver, out buffer.Sender) (Component, error) {
	return componentFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}), nil
}

// genSource sends n log events (tagged with seq) to out, then blocks
// until cancelled, mirroring a real source's "run until shut down"
// contract even after it has nothing left to produce.
func genSource(n int) BuildFunc {
	return func(in buffer.Receiver, out buffer.Sender) (Component, error) {
		return componentFunc(func(ctx context.Context) error {
			for i := 0; i < n; i++ {
				o := event.NewObjectMap()
				o.Set("seq", event.NewInteger(int64(i)))
				if err := out.Send(ctx, event.NewLog(o, event.EventMetadata{})); err != nil {
					return err
				}
			}
			<-ctx.Done()
			return nil
		}), nil
	}
}

// countSink counts every event it receives into an atomically-safe
// counter reachable from the test via the returned *countingComponent.
type countingComponent struct {
	mu    sync.Mutex
	count int
}

func (c *countingComponent) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// unhealthyComponent implements both Component and HealthChecker, with
// Healthcheck always failing, for testing that RequireHealthy actually
// gates Build.
type unhealthyComponent struct {
	componentFunc
}

func (unhealthyComponent) Healthcheck(ctx context.Context) error {
	return errors.New("unhealthy: dependency unavailable")
}

func unhealthyBuild(in buffer.Receiver, out buffer.Sender) (Component, error) {
	return unhealthyComponent{componentFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})}, nil
}

func countSink(cc *countingComponent) BuildFunc {
	return func(in buffer.Receiver, out buffer.Sender) (Component, error) {
		return componentFunc(func(ctx context.Context) error {
			for {
				_, ok := in.Recv(ctx)
				if !ok {
					if ctx.Err() != nil {
						return nil
					}
					continue
				}
				cc.mu.Lock()
				cc.count++
				cc.mu.Unlock()
			}
		}), nil
	}
}
