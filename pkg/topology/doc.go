/*
Package topology builds and runs a flowgate pipeline from a declared
graph of components: sources, transforms, and sinks, wired together by
pkg/buffer edges.

	g := topology.NewGraph(topology.GlobalOptions{DataDir: dataDir})
	g.AddNode(topology.Node{ID: "in", Kind: topology.Source, Outputs: []event.Type{event.TypeLog}, Build: buildGenerator})
	g.AddNode(topology.Node{ID: "out", Kind: topology.Sink, Inputs: []event.Type{event.TypeLog}, Build: buildHTTPSink})
	g.Connect("in", "out", topology.EdgeSpec{Backend: topology.Memory, Capacity: 1000})

	t, err := topology.Build(ctx, g, topology.Options{})
	t.Run(ctx)
	...
	t.Reload(ctx, newGraph)
	t.Shutdown(ctx)

Build validates the graph (no cycles, no type mismatch across an edge)
before instantiating anything. Run starts one supervised goroutine per
component; a crash on any of them is reported on a typed channel rather
than panicking the process. Reload computes an add/remove/change diff
against the running topology and applies spec.md's six-step sequence:
build the new pieces, pause and drain the edges being replaced, stop
the old components, wire in the new edges, resume.
*/
package topology
