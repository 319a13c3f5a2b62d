package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/basinrelay/flowgate/pkg/log"
	"github.com/basinrelay/flowgate/pkg/security"
	eventpb "github.com/basinrelay/flowgate/pkg/transport/proto"
)

// Handler is implemented by the component that actually does something
// with a pushed batch (internal/router's gRPC source wraps one).
type Handler interface {
	PushEvents(ctx context.Context, batchID string, payload []byte, contentEncoding string) error
}

// ServerOptions configures a Server's listener and transport security.
type ServerOptions struct {
	Addr string

	// CertDir, when non-empty, enables mTLS using the certificate and
	// CA files security.LoadCertFromFile/LoadCACertFromFile expect to
	// find there. Empty disables TLS, for loopback tests only.
	CertDir string

	// RequireClientCert upgrades client-cert verification from
	// requested-but-optional to mandatory. Router-to-router links set
	// this; a sink accepting pushes from arbitrary authenticated
	// clients may leave it false.
	RequireClientCert bool
}

// Server is the gRPC-facing half of a router instance's ingest path:
// one EventService bound to a listener, with TLS, the legacy proto
// codec, and the logging/metrics interceptor already wired in.
type Server struct {
	grpcServer *grpc.Server
	handler    Handler
}

func NewServer(handler Handler, opts ServerOptions) (*Server, error) {
	grpcOpts := []grpc.ServerOption{
		grpc.ForceServerCodec(legacyProtoCodec{}),
		grpc.ChainUnaryInterceptor(LoggingMetricsInterceptor()),
	}

	if opts.CertDir != "" {
		creds, err := buildServerTLS(opts.CertDir, opts.RequireClientCert)
		if err != nil {
			return nil, fmt.Errorf("transport: %w", err)
		}
		grpcOpts = append(grpcOpts, grpc.Creds(creds))
	}

	s := &Server{handler: handler, grpcServer: grpc.NewServer(grpcOpts...)}
	RegisterEventServiceServer(s.grpcServer, s)
	return s, nil
}

func buildServerTLS(certDir string, requireClientCert bool) (credentials.TransportCredentials, error) {
	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("load server certificate: %w", err)
	}
	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("load CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(caCert)

	clientAuth := tls.RequestClientCert
	if requireClientCert {
		clientAuth = tls.RequireAndVerifyClientCert
	}

	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{*cert},
		ClientCAs:    pool,
		ClientAuth:   clientAuth,
		MinVersion:   tls.VersionTLS13,
	}), nil
}

// PushEvents implements EventServiceServer.
func (s *Server) PushEvents(ctx context.Context, req *eventpb.PushEventsRequest) (*eventpb.PushEventsResponse, error) {
	if err := s.handler.PushEvents(ctx, req.BatchId, req.Payload, req.ContentEncoding); err != nil {
		return &eventpb.PushEventsResponse{Accepted: false, Error: err.Error()}, nil
	}
	return &eventpb.PushEventsResponse{Accepted: true}, nil
}

// HealthCheck implements EventServiceServer. It reports liveness of the
// gRPC server itself; readiness of the pipeline behind it is a
// separate concern covered by pkg/metrics's HTTP health endpoints.
func (s *Server) HealthCheck(context.Context, *eventpb.HealthCheckRequest) (*eventpb.HealthCheckResponse, error) {
	return &eventpb.HealthCheckResponse{Status: "ok"}, nil
}

// Serve binds addr and blocks serving until Stop is called or the
// listener errors.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	log.WithComponent("transport").Info().Str("addr", addr).Msg("event service listening")
	return s.grpcServer.Serve(lis)
}

// Stop gracefully drains in-flight RPCs before returning.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}
