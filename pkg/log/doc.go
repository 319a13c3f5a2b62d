/*
Package log provides structured logging for flowgate using zerolog.

The global Logger is initialized once via Init and read from every other
package thereafter. Context loggers (WithComponent, WithEdge, WithSink,
WithSource, WithStage) attach the identifying field a given subsystem
cares about so that log lines can be filtered per buffer edge, sink, or
pipeline stage without threading a logger through every call.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	sinkLog := log.WithSink("blackhole-primary")
	sinkLog.Info().Int("events", len(batch)).Msg("batch acknowledged")

	edgeLog := log.WithEdge("source.in -> sink.out")
	edgeLog.Warn().Str("policy", "drop_newest").Msg("edge buffer full, dropping event")

pkg/perror builds on WithComponent (adding stage and error_type
fields) to implement the rate-limited,
once-per-cause logging required by the error taxonomy: everything that
crosses a component boundary becomes either a finalizer status or a
counter increment (see pkg/metrics), never a propagated error value, so
this package is the only place those failures are narrated in text.
*/
package log
