/*
Package pipeline implements the request path shared by every sink:
partition -> batch -> build request -> dispatch with retry and a
concurrency limit -> acknowledge.

	p, _ := pipeline.NewPartitioner(`logs-{{ service }}`)
	b := pipeline.NewBatcher(p, pipeline.BatchLimits{MaxEvents: 500, Timeout: 5 * time.Second}, sizeFn)
	go b.Run()
	gz, _ := compress.New(compress.Gzip, gzip.DefaultCompression)
	rb := pipeline.NewRequestBuilder(encodeFn, gz, 10<<20)
	d := pipeline.NewDispatcher(64, true)

	for batch := range b.Out() {
		reqs, _ := rb.Build(batch)
		for _, req := range reqs {
			d.Dispatch(ctx, func(ctx context.Context) pipeline.AttemptResult {
				return sendOnce(ctx, req)
			}, classifier, req.Finalizers)
		}
	}

Each stage only knows the stage before and after it; a sink wires them
together with its own encode function, byte-size function, and HTTP or
gRPC transport, same shape regardless of which protocol it speaks.
*/
package pipeline
