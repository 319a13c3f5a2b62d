package topology

import (
	"context"
	"sync"

	"github.com/basinrelay/flowgate/pkg/log"
)

// Run starts every component's supervised goroutine. It returns once
// all components have been launched; it does not block until they
// exit. Crash reports are delivered on Crashes() as they occur, and
// handled according to policy: Expected crashes are logged, Fatal
// crashes trigger Shutdown.
func (t *Topology) Run(ctx context.Context) {
	t.mu.RLock()
	ids := make([]string, 0, len(t.comps))
	for id := range t.comps {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	for _, id := range ids {
		t.mu.RLock()
		node, comp := t.nodes[id], t.comps[id]
		t.mu.RUnlock()
		t.sup.start(ctx, node, comp)
	}

	go t.watchCrashes(ctx)
}

func (t *Topology) watchCrashes(ctx context.Context) {
	for {
		select {
		case report := <-t.sup.Crashes:
			if t.crashPolicy != nil {
				t.crashPolicy(report)
				continue
			}
			if report.Severity == Fatal {
				log.WithComponent(report.NodeID).Error().Err(report.Err).Msg("fatal component crash, shutting down topology")
				t.Shutdown(context.Background())
				return
			}
			log.WithComponent(report.NodeID).Warn().Err(report.Err).Msg("component crashed, continuing")
		case <-ctx.Done():
			return
		}
	}
}

// OnCrash installs a custom crash policy, overriding the default
// log-and-continue / shutdown-on-fatal behavior. Intended for tests
// and for a host process that wants to translate crashes into its own
// alerting rather than shutting the whole topology down.
func (t *Topology) OnCrash(fn func(CrashReport)) {
	t.mu.Lock()
	t.crashPolicy = fn
	t.mu.Unlock()
}

// Crashes exposes the raw crash-report channel. The watcher that Run
// starts reads the same channel, so a direct reader receives only the
// reports the watcher has not already taken.
func (t *Topology) Crashes() <-chan CrashReport {
	return t.sup.Crashes
}

// Shutdown signals every component to stop and waits (bounded by each
// component's stop timeout) for them to exit, then releases every
// edge's backend resources.
func (t *Topology) Shutdown(ctx context.Context) {
	t.sup.stopAll()

	t.mu.RLock()
	edges := t.edges
	t.mu.RUnlock()

	var wg sync.WaitGroup
	for _, be := range edges {
		wg.Add(1)
		go func(be *builtEdge) {
			defer wg.Done()
			if err := be.close(); err != nil {
				log.WithComponent("topology").Warn().Err(err).Str("edge", be.edge.From+"->"+be.edge.To).Msg("error closing edge backend during shutdown")
			}
		}(be)
	}
	wg.Wait()
}
