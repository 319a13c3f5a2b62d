package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/basinrelay/flowgate/pkg/security"
	eventpb "github.com/basinrelay/flowgate/pkg/transport/proto"
)

var healthCheckRequest eventpb.HealthCheckRequest

// ClientOptions configures a Dial call. Addr is a host:port; CertDir
// points at the mTLS material a sender presents to the remote router
// or gRPC sink.
type ClientOptions struct {
	Addr    string
	CertDir string

	// RequestTimeout bounds each PushEvents/HealthCheck call. Zero
	// means the caller's own context deadline (if any) applies.
	RequestTimeout time.Duration
}

// Client wraps a dialed connection plus the generated-shape stub,
// mirroring how a hand-maintained mTLS client would be built without a
// protoc-generated service client.
type Client struct {
	conn    *grpc.ClientConn
	stub    EventServiceClient
	timeout time.Duration
}

// Dial establishes an mTLS connection to opts.Addr using the
// certificate and CA material under opts.CertDir.
func Dial(opts ClientOptions) (*Client, error) {
	cert, err := security.LoadCertFromFile(opts.CertDir)
	if err != nil {
		return nil, fmt.Errorf("transport: load client certificate: %w", err)
	}
	caCert, err := security.LoadCACertFromFile(opts.CertDir)
	if err != nil {
		return nil, fmt.Errorf("transport: load CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(caCert)

	creds := credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{*cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	})

	conn, err := grpc.Dial(opts.Addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(legacyProtoCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", opts.Addr, err)
	}

	return &Client{conn: conn, stub: NewEventServiceClient(conn), timeout: opts.RequestTimeout}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// PushEvents sends one encoded batch and returns the remote's
// acceptance decision. A non-nil error means the RPC itself failed
// (network, TLS, deadline); a false Accepted with nil error means the
// remote processed the request and rejected the batch.
func (c *Client) PushEvents(ctx context.Context, batchID string, payload []byte, contentEncoding string) (accepted bool, rejectReason string, err error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.stub.PushEvents(ctx, &eventpb.PushEventsRequest{
		BatchId:         batchID,
		Payload:         payload,
		ContentEncoding: contentEncoding,
	})
	if err != nil {
		return false, "", err
	}
	return resp.Accepted, resp.Error, nil
}

// HealthCheck reports whether the remote EventService is reachable and
// answering.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.stub.HealthCheck(ctx, &healthCheckRequest)
	if err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("transport: remote reported status %q", resp.Status)
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
