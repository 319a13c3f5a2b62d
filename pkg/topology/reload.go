package topology

import (
	"context"
	"fmt"
	"time"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/log"
)

// diff is the set of node IDs touched by moving from an old graph to
// a new one.
type diff struct {
	added   []string
	removed []string
	changed []string
}

func diffGraphs(old, next *Graph) diff {
	var d diff
	for id, n := range next.Nodes {
		if old == nil {
			d.added = append(d.added, id)
			continue
		}
		prev, existed := old.Nodes[id]
		switch {
		case !existed:
			d.added = append(d.added, id)
		case prev.Revision != n.Revision:
			d.changed = append(d.changed, id)
		}
	}
	if old != nil {
		for id := range old.Nodes {
			if _, stillThere := next.Nodes[id]; !stillThere {
				d.removed = append(d.removed, id)
			}
		}
	}
	return d
}

func (d diff) touched() map[string]bool {
	out := make(map[string]bool, len(d.added)+len(d.removed)+len(d.changed))
	for _, id := range d.added {
		out[id] = true
	}
	for _, id := range d.removed {
		out[id] = true
	}
	for _, id := range d.changed {
		out[id] = true
	}
	return out
}

// Reload replaces the running topology with next, following spec's
// six-step sequence. Unchanged components are never stopped or
// rebuilt, preserving their source checkpoints and sink in-flight
// batches. On any failure the prior topology's components and edges
// are left running (or restored, for steps that already mutated
// state) and a non-fatal error is returned. Reload never returns an
// error marked fatal.
func (t *Topology) Reload(ctx context.Context, next *Graph) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.graph.Globals != next.Globals {
		return fmt.Errorf("topology: reload rejected: global options changed (data dir, timezone, or schema cannot change without a restart)")
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("topology: reload rejected: new graph is invalid: %w", err)
	}

	d := diffGraphs(t.graph, next)
	if len(d.added) == 0 && len(d.removed) == 0 && len(d.changed) == 0 {
		return nil
	}
	touched := d.touched()

	// Step 1: build new components for added/changed entries.
	newEdges, newComps, err := t.buildTouched(ctx, next, touched)
	if err != nil {
		return fmt.Errorf("topology: reload step 1 (build new components) failed, keeping prior topology: %w", err)
	}

	// Step 2: pause writes into edges whose destination is being replaced.
	var pausedEdges []*builtEdge
	for _, be := range t.edges {
		if touched[be.edge.To] && be.pause != nil {
			be.pause.pause()
			pausedEdges = append(pausedEdges, be)
		}
	}

	// Step 3: drain those edges, or hit the drain deadline.
	t.drainEdges(pausedEdges)

	// Step 4: signal shutdown to removed/changed components.
	for _, id := range append(append([]string{}, d.removed...), d.changed...) {
		if err := t.sup.stop(id); err != nil {
			log.WithComponent(id).Warn().Err(err).Msg("reload: component did not stop within its timeout")
			for _, be := range pausedEdges {
				be.pause.resume()
			}
			closeAll(newEdges)
			return fmt.Errorf("topology: reload step 4 (stop replaced components) failed: %w", err)
		}
	}

	// Close the edges belonging to removed/changed nodes (as either
	// endpoint) now that nothing reads or writes them.
	var keptEdges []*builtEdge
	for _, be := range t.edges {
		if touched[be.edge.From] || touched[be.edge.To] {
			if err := be.close(); err != nil {
				log.WithComponent("topology").Warn().Err(err).Msg("reload: error closing replaced edge")
			}
			continue
		}
		keptEdges = append(keptEdges, be)
	}

	// Step 5: wire in new edges and components, resume writes.
	for id := range touched {
		delete(t.nodes, id)
		delete(t.comps, id)
	}
	for id, node := range next.Nodes {
		if touched[id] {
			t.nodes[id] = node
		}
	}
	for id, c := range newComps {
		t.comps[id] = c
	}
	t.edges = append(keptEdges, newEdges...)
	t.graph = next

	for id, node := range t.nodes {
		if touched[id] {
			t.sup.start(ctx, node, t.comps[id])
		}
	}

	return nil
}

// buildTouched constructs edges and components for exactly the
// touched node set, reusing next's edge declarations. It does not
// mutate t; on error the caller leaves t untouched.
func (t *Topology) buildTouched(ctx context.Context, next *Graph, touched map[string]bool) ([]*builtEdge, map[string]Component, error) {
	var built []*builtEdge
	for _, e := range next.Edges {
		if !touched[e.From] && !touched[e.To] {
			continue
		}
		be, err := buildEdge(e)
		if err != nil {
			closeAll(built)
			return nil, nil, err
		}
		built = append(built, be)
	}

	outByNode := make(map[string][]buffer.Sender)
	inByNode := make(map[string][]buffer.Receiver)
	for _, be := range built {
		outByNode[be.edge.From] = append(outByNode[be.edge.From], be.sender)
		inByNode[be.edge.To] = append(inByNode[be.edge.To], be.receiver)
	}
	// Edges into a touched node from an untouched upstream, or out of a
	// touched node to an untouched downstream, still need their kept
	// side represented so the new component wires correctly.
	for _, be := range t.edges {
		if touched[be.edge.To] && !touched[be.edge.From] {
			outByNode[be.edge.From] = append(outByNode[be.edge.From], be.sender)
		}
		if touched[be.edge.From] && !touched[be.edge.To] {
			inByNode[be.edge.To] = append(inByNode[be.edge.To], be.receiver)
		}
	}

	comps := make(map[string]Component, len(touched))
	for id := range touched {
		node, ok := next.Nodes[id]
		if !ok {
			continue // a removed node has nothing to build
		}
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
			closeAll(built)
			return nil, nil, fmt.Errorf("building node %q: %w", id, err)
		}
		if node.RequireHealthy {
			if hc, ok := c.(HealthChecker); ok {
				if err := hc.Healthcheck(ctx); err != nil {
					closeAll(built)
					return nil, nil, fmt.Errorf("node %q failed its required healthcheck: %w", id, err)
				}
			}
		}
		comps[id] = c
	}
	return built, comps, nil
}

// drainEdges waits for each paused edge's buffered events to be
// consumed by its still-running (about-to-be-replaced) destination
// component, up to t.drainFor. Edges whose receiver doesn't report a
// length (disk and overflow backends) are simply given the full
// drain window, since introspecting them further would mean reading
// from the receiver ourselves and racing the component that owns it.
func (t *Topology) drainEdges(edges []*builtEdge) {
	if len(edges) == 0 {
		return
	}
	deadline := time.Now().Add(t.drainFor)
	if t.drainFor <= 0 {
		deadline = time.Now().Add(5 * time.Second)
	}
	for {
		allEmpty := true
		for _, be := range edges {
			ln, ok := be.receiver.(buffer.Lenner)
			if !ok {
				allEmpty = false
				continue
			}
			if ln.Len() > 0 {
				allEmpty = false
			}
		}
		if allEmpty || time.Now().After(deadline) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func closeAll(edges []*builtEdge) {
	for _, be := range edges {
		_ = be.close()
	}
}
