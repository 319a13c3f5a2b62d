package topology

import (
	"testing"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/event"
)

func simpleGraph() *Graph {
	g := NewGraph(GlobalOptions{DataDir: "/tmp"})
	_ = g.AddNode(Node{ID: "src", Kind: Source, Outputs: []event.Type{event.TypeLog}, Build: trivialBuild})
	_ = g.AddNode(Node{ID: "sink", Kind: Sink, Inputs: []event.Type{event.TypeLog}, Build: trivialBuild})
	g.Connect("src", "sink", EdgeSpec{Backend: Memory, Capacity: 10})
	return g
}

func TestGraphValidateAcceptsSimpleChain(t *testing.T) {
	g := simpleGraph()
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestGraphValidateRejectsCycle(t *testing.T) {
	g := NewGraph(GlobalOptions{})
	_ = g.AddNode(Node{ID: "a", Kind: Transform, Inputs: []event.Type{event.TypeLog}, Outputs: []event.Type{event.TypeLog}, Build: trivialBuild})
	_ = g.AddNode(Node{ID: "b", Kind: Transform, Inputs: []event.Type{event.TypeLog}, Outputs: []event.Type{event.TypeLog}, Build: trivialBuild})
	g.Connect("a", "b", EdgeSpec{Backend: Memory, Capacity: 1})
	g.Connect("b", "a", EdgeSpec{Backend: Memory, Capacity: 1})
	if err := g.Validate(); err == nil {
		t.Fatal("Validate: expected a cycle error")
	}
}

func TestGraphValidateRejectsTypeMismatch(t *testing.T) {
	g := NewGraph(GlobalOptions{})
	_ = g.AddNode(Node{ID: "src", Kind: Source, Outputs: []event.Type{event.TypeMetric}, Build: trivialBuild})
	_ = g.AddNode(Node{ID: "sink", Kind: Sink, Inputs: []event.Type{event.TypeLog}, Build: trivialBuild})
	g.Connect("src", "sink", EdgeSpec{Backend: Memory, Capacity: 1})
	if err := g.Validate(); err == nil {
		t.Fatal("Validate: expected a type mismatch error")
	}
}

func TestGraphValidateRejectsUnknownNodeReference(t *testing.T) {
	g := NewGraph(GlobalOptions{})
	_ = g.AddNode(Node{ID: "src", Kind: Source, Outputs: []event.Type{event.TypeLog}, Build: trivialBuild})
	g.Connect("src", "ghost", EdgeSpec{Backend: Memory, Capacity: 1})
	if err := g.Validate(); err == nil {
		t.Fatal("Validate: expected an unknown-node error")
	}
}

func TestAddNodeRejectsDuplicateID(t *testing.T) {
	g := NewGraph(GlobalOptions{})
	_ = g.AddNode(Node{ID: "src", Kind: Source, Outputs: []event.Type{event.TypeLog}, Build: trivialBuild})
	if err := g.AddNode(Node{ID: "src", Kind: Source, Outputs: []event.Type{event.TypeLog}, Build: trivialBuild}); err == nil {
		t.Fatal("AddNode: expected a duplicate-id error")
	}
}
