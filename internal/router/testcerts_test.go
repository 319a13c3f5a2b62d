package router

import (
	"net"
	"testing"

	"github.com/basinrelay/flowgate/pkg/security"
	"github.com/basinrelay/flowgate/pkg/storage"
)

// testCertPair mints a CA plus one server and one client certificate
// under t.TempDir, returning each principal's certDir for use with
// transport.NewServer/transport.Dial.
func testCertPair(t *testing.T) (serverCertDir, clientCertDir string) {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("storage.NewBoltStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ca := security.NewCertAuthority(store)
	if err := ca.Initialize(); err != nil {
		t.Fatalf("CertAuthority.Initialize: %v", err)
	}

	serverCert, err := ca.IssueNodeCertificate("test-server", "router", []string{"localhost"}, []net.IP{net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("IssueNodeCertificate(server): %v", err)
	}
	clientCert, err := ca.IssueNodeCertificate("test-client", "router", []string{"localhost"}, []net.IP{net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("IssueNodeCertificate(client): %v", err)
	}

	serverCertDir = t.TempDir()
	clientCertDir = t.TempDir()

	if err := security.SaveCertToFile(serverCert, serverCertDir); err != nil {
		t.Fatalf("SaveCertToFile(server): %v", err)
	}
	if err := security.SaveCACertToFile(ca.GetRootCACert(), serverCertDir); err != nil {
		t.Fatalf("SaveCACertToFile(server): %v", err)
	}
	if err := security.SaveCertToFile(clientCert, clientCertDir); err != nil {
		t.Fatalf("SaveCertToFile(client): %v", err)
	}
	if err := security.SaveCACertToFile(ca.GetRootCACert(), clientCertDir); err != nil {
		t.Fatalf("SaveCACertToFile(client): %v", err)
	}

	return serverCertDir, clientCertDir
}
