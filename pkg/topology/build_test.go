package topology

import (
	"context"
	"testing"
	"time"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/event"
	"github.com/basinrelay/flowgate/pkg/metrics"
)

func TestBuildAndRunDeliversAllEvents(t *testing.T) {
	cc := &countingComponent{}
	g := NewGraph(GlobalOptions{})
	if err := g.AddNode(Node{ID: "src", Kind: Source, Outputs: []event.Type{event.TypeLog}, Build: genSource(50)}); err != nil {
		t.Fatalf("AddNode(src): %v", err)
	}
	if err := g.AddNode(Node{ID: "sink", Kind: Sink, Inputs: []event.Type{event.TypeLog}, Build: countSink(cc)}); err != nil {
		t.Fatalf("AddNode(sink): %v", err)
	}
	g.Connect("src", "sink", EdgeSpec{Backend: Memory, Capacity: 100})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	topo, err := Build(ctx, g, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	topo.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for cc.Count() < 50 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := cc.Count(); got != 50 {
		t.Fatalf("sink received %d events, want 50", got)
	}

	topo.Shutdown(context.Background())
}

func TestBuildFailsHealthcheckRejectsNode(t *testing.T) {
	g := NewGraph(GlobalOptions{})
	_ = g.AddNode(Node{
		ID:             "sink",
		Kind:           Sink,
		Inputs:         []event.Type{event.TypeLog},
		Build:          unhealthyBuild,
		RequireHealthy: true,
	})
	if _, err := Build(context.Background(), g, Options{}); err == nil {
		t.Fatal("Build: expected a healthcheck failure to reject the build")
	}
}

func TestTopologyEdgeStatsReportsQueueDepth(t *testing.T) {
	g := NewGraph(GlobalOptions{})
	block := make(chan struct{})
	_ = g.AddNode(Node{ID: "src", Kind: Source, Outputs: []event.Type{event.TypeLog}, Build: func(in buffer.Receiver, out buffer.Sender) (Component, error) {
		return componentFunc(func(ctx context.Context) error {
			for i := 0; i < 3; i++ {
				o := event.NewObjectMap()
				_ = out.Send(ctx, event.NewLog(o, event.EventMetadata{}))
			}
			<-ctx.Done()
			return nil
		}), nil
	}})
	_ = g.AddNode(Node{ID: "sink", Kind: Sink, Inputs: []event.Type{event.TypeLog}, Build: func(in buffer.Receiver, out buffer.Sender) (Component, error) {
		return componentFunc(func(ctx context.Context) error {
			<-block
			<-ctx.Done()
			return nil
		}), nil
	}})
	g.Connect("src", "sink", EdgeSpec{Backend: Memory, Capacity: 10})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	topo, err := Build(ctx, g, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	topo.Run(ctx)
	defer func() {
		close(block)
		topo.Shutdown(context.Background())
	}()

	deadline := time.Now().Add(time.Second)
	var stats []metrics.EdgeStat
	for time.Now().Before(deadline) {
		stats = topo.EdgeStats()
		if len(stats) == 1 && stats[0].QueueDepth == 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(stats) != 1 || stats[0].Edge != "src->sink" || stats[0].QueueDepth != 3 {
		t.Fatalf("EdgeStats() = %+v, want one edge src->sink with queue depth 3", stats)
	}
}

func TestBuildRejectsInvalidGraph(t *testing.T) {
	g := NewGraph(GlobalOptions{})
	_ = g.AddNode(Node{ID: "src", Kind: Source, Outputs: []event.Type{event.TypeMetric}, Build: trivialBuild})
	_ = g.AddNode(Node{ID: "sink", Kind: Sink, Inputs: []event.Type{event.TypeLog}, Build: trivialBuild})
	g.Connect("src", "sink", EdgeSpec{Backend: Memory, Capacity: 1})

	if _, err := Build(context.Background(), g, Options{}); err == nil {
		t.Fatal("Build: expected the type-mismatch graph to be rejected before anything was built")
	}
}
