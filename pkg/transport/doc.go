// Package transport implements the gRPC EventService that lets one
// router instance push batches to another (or to a gRPC-speaking
// sink), plus the supporting mTLS, codec, and interceptor plumbing.
//
// # Wire format
//
// The two RPCs, PushEvents and HealthCheck, and their message types
// live in pkg/transport/proto. Because no protobuf compiler is
// available in this environment, the messages are hand-written in the
// pre-protoreflect generated-code idiom and marshaled through a small
// custom codec (codec.go) that bridges them into
// google.golang.org/protobuf's legacy-message support.
//
// # Security
//
// Server and Client both expect a certificate directory laid out the
// way pkg/security's Save/Load helpers produce: node.crt, node.key,
// ca.crt. TLS 1.3 is required; servers default to requesting (not
// requiring) a client certificate unless ServerOptions.RequireClientCert
// is set, which router-to-router links should set and a public ingest
// endpoint typically should not.
//
// # Observability
//
// Every unary RPC passes through LoggingMetricsInterceptor, which logs
// at debug (success) or warn (failure) and records
// pkg/metrics.DispatchAttemptsTotal / DispatchLatency keyed by RPC
// method name.
package transport
