package topology

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/event"
)

// countingBuild wraps trivialBuild's behavior but increments builds
// every time it runs, so a test can assert an untouched node was never
// rebuilt across a Reload.
func countingBuild(builds *int32) BuildFunc {
	return func(in buffer.Receiver, out buffer.Sender) (Component, error) {
		atomic.AddInt32(builds, 1)
		return componentFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}), nil
	}
}

func waitFor(t *testing.T, deadline time.Duration, cond func() bool) {
	t.Helper()
	end := time.Now().Add(deadline)
	for !cond() {
		if time.Now().After(end) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestReloadAddsNode(t *testing.T) {
	g := NewGraph(GlobalOptions{})
	_ = g.AddNode(Node{ID: "srcA", Kind: Source, Outputs: []event.Type{event.TypeLog}, Build: trivialBuild, Revision: "1"})
	_ = g.AddNode(Node{ID: "sinkA", Kind: Sink, Inputs: []event.Type{event.TypeLog}, Build: trivialBuild, Revision: "1"})
	g.Connect("srcA", "sinkA", EdgeSpec{Backend: Memory, Capacity: 10})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	topo, err := Build(ctx, g, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	topo.Run(ctx)
	defer topo.Shutdown(context.Background())

	cc := &countingComponent{}
	next := NewGraph(GlobalOptions{})
	_ = next.AddNode(Node{ID: "srcA", Kind: Source, Outputs: []event.Type{event.TypeLog}, Build: trivialBuild, Revision: "1"})
	_ = next.AddNode(Node{ID: "sinkA", Kind: Sink, Inputs: []event.Type{event.TypeLog}, Build: trivialBuild, Revision: "1"})
	next.Connect("srcA", "sinkA", EdgeSpec{Backend: Memory, Capacity: 10})
	_ = next.AddNode(Node{ID: "srcB", Kind: Source, Outputs: []event.Type{event.TypeLog}, Build: genSource(20), Revision: "1"})
	_ = next.AddNode(Node{ID: "sinkB", Kind: Sink, Inputs: []event.Type{event.TypeLog}, Build: countSink(cc), Revision: "1"})
	next.Connect("srcB", "sinkB", EdgeSpec{Backend: Memory, Capacity: 100})

	if err := topo.Reload(ctx, next); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return cc.Count() == 20 })
}

func TestReloadRemovesNode(t *testing.T) {
	g := NewGraph(GlobalOptions{})
	ccA := &countingComponent{}
	_ = g.AddNode(Node{ID: "srcA", Kind: Source, Outputs: []event.Type{event.TypeLog}, Build: genSource(1000000), Revision: "1"})
	_ = g.AddNode(Node{ID: "sinkA", Kind: Sink, Inputs: []event.Type{event.TypeLog}, Build: countSink(ccA), Revision: "1"})
	g.Connect("srcA", "sinkA", EdgeSpec{Backend: Memory, Capacity: 10})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	topo, err := Build(ctx, g, Options{DrainTimeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	topo.Run(ctx)
	defer topo.Shutdown(context.Background())

	waitFor(t, time.Second, func() bool { return ccA.Count() > 0 })

	next := NewGraph(GlobalOptions{})
	if err := topo.Reload(ctx, next); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if _, stillDeclared := topo.graph.Nodes["sinkA"]; stillDeclared {
		t.Fatal("Reload: removed node still present in the active graph")
	}

	got := ccA.Count()
	time.Sleep(50 * time.Millisecond)
	if ccA.Count() != got {
		t.Fatalf("sink kept receiving events after its node was removed: %d -> %d", got, ccA.Count())
	}
}

func TestReloadChangedNodeLeavesUnchangedNodeRunning(t *testing.T) {
	var srcBuilds int32
	g := NewGraph(GlobalOptions{})
	_ = g.AddNode(Node{ID: "src", Kind: Source, Outputs: []event.Type{event.TypeLog}, Build: countingBuild(&srcBuilds), Revision: "1"})
	ccOld := &countingComponent{}
	_ = g.AddNode(Node{ID: "sink", Kind: Sink, Inputs: []event.Type{event.TypeLog}, Build: countSink(ccOld), Revision: "1"})
	g.Connect("src", "sink", EdgeSpec{Backend: Memory, Capacity: 10})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	topo, err := Build(ctx, g, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	topo.Run(ctx)
	defer topo.Shutdown(context.Background())

	if got := atomic.LoadInt32(&srcBuilds); got != 1 {
		t.Fatalf("src built %d times before reload, want 1", got)
	}

	ccNew := &countingComponent{}
	next := NewGraph(GlobalOptions{})
	_ = next.AddNode(Node{ID: "src", Kind: Source, Outputs: []event.Type{event.TypeLog}, Build: countingBuild(&srcBuilds), Revision: "1"})
	_ = next.AddNode(Node{ID: "sink", Kind: Sink, Inputs: []event.Type{event.TypeLog}, Build: countSink(ccNew), Revision: "2"})
	next.Connect("src", "sink", EdgeSpec{Backend: Memory, Capacity: 10})

	if err := topo.Reload(ctx, next); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if got := atomic.LoadInt32(&srcBuilds); got != 1 {
		t.Fatalf("unchanged src node was rebuilt across reload: built %d times, want 1", got)
	}
}

func TestReloadRejectsGlobalOptionsChange(t *testing.T) {
	g := NewGraph(GlobalOptions{DataDir: "/var/lib/flowgate"})
	_ = g.AddNode(Node{ID: "src", Kind: Source, Outputs: []event.Type{event.TypeLog}, Build: trivialBuild, Revision: "1"})
	_ = g.AddNode(Node{ID: "sink", Kind: Sink, Inputs: []event.Type{event.TypeLog}, Build: trivialBuild, Revision: "1"})
	g.Connect("src", "sink", EdgeSpec{Backend: Memory, Capacity: 10})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	topo, err := Build(ctx, g, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	topo.Run(ctx)
	defer topo.Shutdown(context.Background())

	next := NewGraph(GlobalOptions{DataDir: "/var/lib/flowgate-v2"})
	_ = next.AddNode(Node{ID: "src", Kind: Source, Outputs: []event.Type{event.TypeLog}, Build: trivialBuild, Revision: "1"})
	_ = next.AddNode(Node{ID: "sink", Kind: Sink, Inputs: []event.Type{event.TypeLog}, Build: trivialBuild, Revision: "1"})
	next.Connect("src", "sink", EdgeSpec{Backend: Memory, Capacity: 10})

	if err := topo.Reload(ctx, next); err == nil {
		t.Fatal("Reload: expected a global options change to be rejected")
	}
}

func TestReloadRejectsInvalidGraph(t *testing.T) {
	g := NewGraph(GlobalOptions{})
	_ = g.AddNode(Node{ID: "src", Kind: Source, Outputs: []event.Type{event.TypeLog}, Build: trivialBuild, Revision: "1"})
	_ = g.AddNode(Node{ID: "sink", Kind: Sink, Inputs: []event.Type{event.TypeLog}, Build: trivialBuild, Revision: "1"})
	g.Connect("src", "sink", EdgeSpec{Backend: Memory, Capacity: 10})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	topo, err := Build(ctx, g, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	topo.Run(ctx)
	defer topo.Shutdown(context.Background())

	next := NewGraph(GlobalOptions{})
	_ = next.AddNode(Node{ID: "a", Kind: Transform, Inputs: []event.Type{event.TypeLog}, Outputs: []event.Type{event.TypeLog}, Build: trivialBuild, Revision: "1"})
	_ = next.AddNode(Node{ID: "b", Kind: Transform, Inputs: []event.Type{event.TypeLog}, Outputs: []event.Type{event.TypeLog}, Build: trivialBuild, Revision: "1"})
	next.Connect("a", "b", EdgeSpec{Backend: Memory, Capacity: 1})
	next.Connect("b", "a", EdgeSpec{Backend: Memory, Capacity: 1})

	if err := topo.Reload(ctx, next); err == nil {
		t.Fatal("Reload: expected the invalid new graph to be rejected")
	}
}
