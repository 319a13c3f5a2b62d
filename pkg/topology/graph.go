package topology

import (
	"fmt"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/event"
)

// Kind distinguishes the three roles a node can play.
type Kind uint8

const (
	Source Kind = iota
	Transform
	Sink
)

func (k Kind) String() string {
	switch k {
	case Source:
		return "source"
	case Transform:
		return "transform"
	case Sink:
		return "sink"
	default:
		return "unknown"
	}
}

// BuildFunc instantiates a node's Component given its wired input
// Receiver (nil for a Source) and output Sender (nil for a Sink).
type BuildFunc func(in buffer.Receiver, out buffer.Sender) (Component, error)

// Node is one declared graph entry: an identity, a role, the event
// types it accepts/produces, and how to build its runtime instance.
// A Source has no Inputs; a Sink has no Outputs.
type Node struct {
	ID      string
	Kind    Kind
	Inputs  []event.Type
	Outputs []event.Type
	Build   BuildFunc
	// RequireHealthy, when true, makes Build fail the node (and
	// therefore a Reload that touches it) if its Healthcheck doesn't
	// pass before the node is considered up.
	RequireHealthy bool
	// Revision identifies this node's configuration. Reload treats a
	// node as changed when its ID exists in both the old and new graph
	// but Revision differs, and as unchanged when it's identical —
	// Go can't compare BuildFunc closures for equality, so the diff
	// can't be inferred from the Node value alone.
	Revision string
}

func (n Node) acceptsAny(types ...event.Type) bool {
	if len(n.Inputs) == 0 {
		return false
	}
	for _, want := range types {
		ok := false
		for _, t := range n.Inputs {
			if t == want {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Backend names which pkg/buffer implementation an edge uses.
type Backend uint8

const (
	Memory Backend = iota
	Disk
)

// EdgeSpec configures one edge between two nodes.
type EdgeSpec struct {
	Backend Backend
	Policy  buffer.Policy
	// Capacity is the memory backend's channel capacity.
	Capacity int
	// DiskDir is the disk backend's dedicated directory; required when
	// Backend is Disk.
	DiskDir string
	// DiskMaxBufferSize optionally bounds a disk edge's total size.
	DiskMaxBufferSize int64
	// Overflow, if non-nil, names a secondary edge used when Policy is
	// buffer.Overflow; the secondary is itself built from this spec
	// recursively, per pkg/buffer/overflow's composable design.
	Overflow *EdgeSpec
}

// Edge is one declared connection: events flow From -> To.
type Edge struct {
	From, To string
	Spec     EdgeSpec
}

// Graph is a declared, not-yet-built topology: nodes plus the edges
// connecting them.
type Graph struct {
	Nodes map[string]Node
	Edges []Edge
	// Globals are the durable-state-affecting options (data dir,
	// timezone, schema) that Reload refuses to change in place.
	Globals GlobalOptions
}

// GlobalOptions are compared verbatim across a Reload; any difference
// rejects the reload outright rather than attempting to migrate
// durable state live.
type GlobalOptions struct {
	DataDir  string
	Timezone string
	SchemaID uint32
}

// NewGraph returns an empty Graph ready for AddNode/Connect calls.
func NewGraph(globals GlobalOptions) *Graph {
	return &Graph{Nodes: make(map[string]Node), Globals: globals}
}

// AddNode registers n. It is an error to add a node whose ID is
// already present.
func (g *Graph) AddNode(n Node) error {
	if _, exists := g.Nodes[n.ID]; exists {
		return fmt.Errorf("topology: duplicate node id %q", n.ID)
	}
	if n.Kind == Source && len(n.Inputs) != 0 {
		return fmt.Errorf("topology: source node %q must not declare Inputs", n.ID)
	}
	if n.Kind == Sink && len(n.Outputs) != 0 {
		return fmt.Errorf("topology: sink node %q must not declare Outputs", n.ID)
	}
	g.Nodes[n.ID] = n
	return nil
}

// Connect declares an edge from -> to with the given spec.
func (g *Graph) Connect(from, to string, spec EdgeSpec) {
	g.Edges = append(g.Edges, Edge{From: from, To: to, Spec: spec})
}

// Validate rejects cycles and type mismatches before anything is
// built. A type mismatch is an edge whose destination node's Inputs
// don't cover every type its source node declares in Outputs — a
// broader destination (accepts Log ∪ Metric) may still receive from a
// narrower source (produces only Log).
func (g *Graph) Validate() error {
	for _, e := range g.Edges {
		from, ok := g.Nodes[e.From]
		if !ok {
			return fmt.Errorf("topology: edge references unknown node %q", e.From)
		}
		to, ok := g.Nodes[e.To]
		if !ok {
			return fmt.Errorf("topology: edge references unknown node %q", e.To)
		}
		if from.Kind == Sink {
			return fmt.Errorf("topology: sink node %q cannot be an edge source", e.From)
		}
		if to.Kind == Source {
			return fmt.Errorf("topology: source node %q cannot be an edge destination", e.To)
		}
		if !to.acceptsAny(from.Outputs...) {
			return fmt.Errorf("topology: edge %s -> %s: %s's outputs %v are not all accepted by %s's inputs %v",
				e.From, e.To, e.From, from.Outputs, e.To, to.Inputs)
		}
		if e.Spec.Backend == Disk && e.Spec.DiskDir == "" {
			return fmt.Errorf("topology: edge %s -> %s: disk backend requires DiskDir", e.From, e.To)
		}
		if e.Spec.Policy == buffer.Overflow && e.Spec.Overflow == nil {
			return fmt.Errorf("topology: edge %s -> %s: Overflow policy requires an Overflow secondary spec", e.From, e.To)
		}
	}
	return g.checkAcyclic()
}

// checkAcyclic runs a standard white/gray/black DFS: a gray node
// reached again mid-traversal means a back edge, i.e. a cycle.
func (g *Graph) checkAcyclic() error {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(g.Nodes))
	adj := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		color[id] = gray
		path = append(path, id)
		for _, next := range adj[id] {
			switch color[next] {
			case gray:
				return fmt.Errorf("topology: cycle detected: %v -> %s", path, next)
			case white:
				if err := visit(next, path); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for id := range g.Nodes {
		if color[id] == white {
			if err := visit(id, nil); err != nil {
				return err
			}
		}
	}
	return nil
}
