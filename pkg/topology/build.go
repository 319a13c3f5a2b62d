package topology

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/buffer/disk"
	"github.com/basinrelay/flowgate/pkg/buffer/memory"
	"github.com/basinrelay/flowgate/pkg/buffer/overflow"
	"github.com/basinrelay/flowgate/pkg/metrics"
)

// builtEdge is a constructed edge: the Sender/Receiver halves plus a
// closer that releases whatever backend resources it holds (a disk
// buffer's files and lock, in particular).
type builtEdge struct {
	edge     Edge
	sender   buffer.Sender
	receiver buffer.Receiver
	pause    *pausableSender
	close    func() error
}

// Topology is a built, runnable instance of a Graph: every node has a
// Component wired to its edges, ready for Run.
type Topology struct {
	mu       sync.RWMutex
	graph    *Graph
	sup      *supervisor
	nodes    map[string]Node
	comps    map[string]Component
	edges    []*builtEdge
	drainFor time.Duration

	crashPolicy func(CrashReport)
}

// Options configures Build.
type Options struct {
	// ComponentStopTimeout bounds how long Shutdown/Reload waits for a
	// single component to exit after being signaled. Default 30s, per
	// the runtime's stated default.
	ComponentStopTimeout time.Duration
	// DrainTimeout bounds how long Reload waits for an edge being
	// replaced to empty before proceeding anyway.
	DrainTimeout time.Duration
}

// buildEdge constructs the Sender/Receiver pair for one declared edge.
func buildEdge(e Edge) (*builtEdge, error) {
	switch e.Spec.Backend {
	case Memory:
		capacity := e.Spec.Capacity
		if capacity <= 0 {
			capacity = 1000
		}
		policy := e.Spec.Policy
		edgeID := fmt.Sprintf("%s->%s", e.From, e.To)
		if policy == buffer.Overflow {
			if e.Spec.Overflow == nil {
				return nil, fmt.Errorf("topology: edge %s: overflow policy needs a secondary spec", edgeID)
			}
			primarySender, primaryReceiver := memory.New(capacity, buffer.Block, edgeID)
			secondary, err := buildEdge(Edge{From: e.From, To: e.To, Spec: *e.Spec.Overflow})
			if err != nil {
				return nil, err
			}
			secondaryChanReceiver, ok := secondary.receiver.(buffer.ChanReceiver)
			if !ok {
				return nil, fmt.Errorf("topology: edge %s: overflow secondary backend does not support fair receive", edgeID)
			}
			sender := overflow.NewSender(primarySender, secondary.sender)
			receiver := overflow.NewReceiver(primaryReceiver, secondaryChanReceiver)
			ps := newPausableSender(sender)
			return &builtEdge{edge: e, sender: ps, receiver: receiver, pause: ps, close: func() error {
				if err := primarySender.Close(); err != nil {
					return err
				}
				return secondary.close()
			}}, nil
		}
		s, r := memory.New(capacity, policy, edgeID)
		ps := newPausableSender(s)
		return &builtEdge{edge: e, sender: ps, receiver: r, pause: ps, close: s.Close}, nil

	case Disk:
		cfg := disk.Config{
			Dir:           e.Spec.DiskDir,
			MaxBufferSize: e.Spec.DiskMaxBufferSize,
			Policy:        e.Spec.Policy,
		}
		b, err := disk.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("topology: opening disk edge %s->%s at %q: %w", e.From, e.To, e.Spec.DiskDir, err)
		}
		ps := newPausableSender(b.Sender())
		return &builtEdge{edge: e, sender: ps, receiver: b.Receiver(), pause: ps, close: b.Close}, nil

	default:
		return nil, fmt.Errorf("topology: edge %s->%s: unknown backend %d", e.From, e.To, e.Spec.Backend)
	}
}

// Build validates g and instantiates every node and edge it declares.
// Nothing is running yet; call Run to start the supervised components.
func Build(ctx context.Context, g *Graph, opts Options) (*Topology, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	built := make([]*builtEdge, 0, len(g.Edges))
	for _, e := range g.Edges {
		be, err := buildEdge(e)
		if err != nil {
			for _, prior := range built {
				_ = prior.close()
			}
			return nil, err
		}
		built = append(built, be)
	}

	outByNode := make(map[string][]buffer.Sender)
	inByNode := make(map[string][]buffer.Receiver)
	for _, be := range built {
		outByNode[be.edge.From] = append(outByNode[be.edge.From], be.sender)
		inByNode[be.edge.To] = append(inByNode[be.edge.To], be.receiver)
	}

	comps := make(map[string]Component, len(g.Nodes))
	for id, node := range g.Nodes {
		var in buffer.Receiver
		var out buffer.Sender
		if len(inByNode[id]) > 0 {
			in = newMergeReceiver(inByNode[id])
		}
		if len(outByNode[id]) > 0 {
			out = newFanoutSender(outByNode[id])
		}

		c, err := node.Build(in, out)
		if err != nil {
			for _, be := range built {
				_ = be.close()
			}
			return nil, fmt.Errorf("topology: building node %q: %w", id, err)
		}
		if node.RequireHealthy {
			if hc, ok := c.(HealthChecker); ok {
				if err := hc.Healthcheck(ctx); err != nil {
					for _, be := range built {
						_ = be.close()
					}
					return nil, fmt.Errorf("topology: node %q failed its required healthcheck: %w", id, err)
				}
			}
		}
		comps[id] = c
	}

	return &Topology{
		graph:    g,
		sup:      newSupervisor(opts.ComponentStopTimeout),
		nodes:    g.Nodes,
		comps:    comps,
		edges:    built,
		drainFor: opts.DrainTimeout,
	}, nil
}

// EdgeStats satisfies pkg/metrics.StatsSource: one entry per edge,
// queue depth populated only for backends implementing buffer.Lenner
// (currently just the memory backend — see DESIGN.md's note on the
// Lenner interface).
func (t *Topology) EdgeStats() []metrics.EdgeStat {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]metrics.EdgeStat, 0, len(t.edges))
	for _, be := range t.edges {
		stat := metrics.EdgeStat{Edge: fmt.Sprintf("%s->%s", be.edge.From, be.edge.To)}
		if ln, ok := be.receiver.(buffer.Lenner); ok {
			stat.QueueDepth = ln.Len()
		}
		out = append(out, stat)
	}
	return out
}
