// Package coordinator implements the raft-backed control plane that
// lets a fleet of flowgate routers agree on cluster membership, a
// shared root of trust, and the topology configuration every router
// should be running. A single leader is elected among the configured
// voters; only the leader accepts join-token issuance and topology
// applies, and every write is replicated through raft before it is
// considered durable.
//
// A standalone router with no coordinator configured never imports
// this package: HA is opt-in, not a requirement for running the event
// pipeline.
package coordinator

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/basinrelay/flowgate/pkg/log"
	"github.com/basinrelay/flowgate/pkg/metrics"
	"github.com/basinrelay/flowgate/pkg/security"
	"github.com/basinrelay/flowgate/pkg/storage"
)

// tokenByteLength matches the teacher's join-token size: 32 random
// bytes, hex-encoded to a 64-character string.
const tokenByteLength = 32

// applyRaftTimeouts tunes raft for LAN deployments rather than
// hashicorp/raft's WAN-oriented defaults, targeting sub-10s failover: a
// leader that stops heartbeating is detected and replaced within a few
// election cycles instead of the library's default ~1s-per-cycle pace.
func applyRaftTimeouts(cfg *raft.Config) {
	cfg.HeartbeatTimeout = 500 * time.Millisecond
	cfg.ElectionTimeout = 500 * time.Millisecond
	cfg.CommitTimeout = 50 * time.Millisecond
	cfg.LeaderLeaseTimeout = 250 * time.Millisecond
}

// Config configures a Coordinator instance.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// Coordinator owns a raft group, the durable store it replicates into,
// and the cluster's certificate authority.
type Coordinator struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft  *raft.Raft
	fsm   *FSM
	store storage.Store
	ca    *security.CertAuthority
}

// New creates a Coordinator. It does not start raft; call Bootstrap or
// Join to form or join a cluster.
func New(cfg Config) (*Coordinator, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("coordinator: create data dir: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("coordinator: open store: %w", err)
	}

	return &Coordinator{
		nodeID:   cfg.NodeID,
		bindAddr: cfg.BindAddr,
		dataDir:  cfg.DataDir,
		fsm:      NewFSM(store),
		store:    store,
		ca:       security.NewCertAuthority(store),
	}, nil
}

func (c *Coordinator) newRaft() (*raft.Raft, error) {
	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(c.nodeID)
	applyRaftTimeouts(raftCfg)

	addr, err := net.ResolveTCPAddr("tcp", c.bindAddr)
	if err != nil {
		return nil, fmt.Errorf("coordinator: resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(c.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("coordinator: create raft transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(c.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("coordinator: create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("coordinator: create raft log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("coordinator: create raft stable store: %w", err)
	}

	r, err := raft.NewRaft(raftCfg, c.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("coordinator: create raft node: %w", err)
	}

	go c.watchLeadership(r)

	return r, nil
}

// Bootstrap forms a brand-new single-voter raft cluster rooted at this
// node, then initializes the cluster CA if one doesn't already exist
// in the store.
func (c *Coordinator) Bootstrap() error {
	r, err := c.newRaft()
	if err != nil {
		return err
	}
	c.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{{ID: raft.ServerID(c.nodeID), Address: raft.ServerAddress(c.bindAddr)}},
	}
	if err := c.raft.BootstrapCluster(configuration).Error(); err != nil {
		return fmt.Errorf("coordinator: bootstrap raft cluster: %w", err)
	}

	if err := c.initializeCA(); err != nil {
		return fmt.Errorf("coordinator: initialize CA: %w", err)
	}

	return nil
}

// JoinExisting starts this node's raft transport and loads the cluster
// CA from the local store, then waits to be added as a voter by the
// current leader; it does not itself contact the leader and checks no
// join token. Admission happens when the leader calls AddVoter.
func (c *Coordinator) JoinExisting() error {
	r, err := c.newRaft()
	if err != nil {
		return err
	}
	c.raft = r
	if err := c.ca.LoadFromStore(); err != nil {
		return fmt.Errorf("coordinator: load CA after join: %w", err)
	}
	return nil
}

// AddVoter admits nodeID at address into the raft group. Only the
// leader can do this; hashicorp/raft returns ErrNotLeader via the
// future otherwise.
func (c *Coordinator) AddVoter(nodeID, address string) error {
	if c.raft == nil {
		return fmt.Errorf("coordinator: raft not started")
	}
	return c.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second).Error()
}

// RemoveServer evicts nodeID from the raft group.
func (c *Coordinator) RemoveServer(nodeID string) error {
	if c.raft == nil {
		return fmt.Errorf("coordinator: raft not started")
	}
	return c.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second).Error()
}

// IsLeader reports whether this node currently holds raft leadership.
func (c *Coordinator) IsLeader() bool {
	return c.raft != nil && c.raft.State() == raft.Leader
}

// LeaderAddr returns the bind address of the current raft leader, or
// the empty string if none is known.
func (c *Coordinator) LeaderAddr() string {
	if c.raft == nil {
		return ""
	}
	return string(c.raft.Leader())
}

// IssueJoinToken generates a join token scoped to role, valid for ttl,
// and replicates it through raft. Only the leader can issue tokens.
func (c *Coordinator) IssueJoinToken(role string, ttl time.Duration) (*storage.JoinToken, error) {
	if !c.IsLeader() {
		return nil, fmt.Errorf("coordinator: not the leader, current leader is %s", c.LeaderAddr())
	}

	tok, err := newRandomToken(role, ttl)
	if err != nil {
		return nil, err
	}

	if err := c.apply(Command{Op: OpIssueToken, Token: tok}); err != nil {
		return nil, fmt.Errorf("coordinator: replicate join token: %w", err)
	}
	return tok, nil
}

// ValidateJoinToken checks that token exists, is unexpired, and
// returns the role it grants. It reads local store state directly
// rather than going through raft, since validation is a read.
func (c *Coordinator) ValidateJoinToken(token string) (string, error) {
	tok, err := c.store.GetJoinToken(token)
	if err != nil {
		return "", fmt.Errorf("coordinator: unknown join token")
	}
	if tok.Expired(time.Now()) {
		return "", fmt.Errorf("coordinator: join token expired")
	}
	return tok.Role, nil
}

// RevokeJoinToken deletes token before its natural expiry. Only the
// leader can revoke tokens.
func (c *Coordinator) RevokeJoinToken(token string) error {
	if !c.IsLeader() {
		return fmt.Errorf("coordinator: not the leader, current leader is %s", c.LeaderAddr())
	}
	return c.apply(Command{Op: OpRevokeToken, TokenString: token})
}

// ApplyTopologyConfig replicates a new topology configuration blob,
// tagged with revision, to every router in the cluster. Only the
// leader can apply topology changes; each router's own watcher loop
// is responsible for noticing the new snapshot locally and calling
// into pkg/topology to reload.
func (c *Coordinator) ApplyTopologyConfig(revision string, config []byte) error {
	if !c.IsLeader() {
		return fmt.Errorf("coordinator: not the leader, current leader is %s", c.LeaderAddr())
	}
	return c.apply(Command{Op: OpApplyTopology, Revision: revision, Config: config})
}

// CurrentTopology returns the most recently applied topology revision
// and its configuration bytes, as last replicated through raft.
func (c *Coordinator) CurrentTopology() (revision string, config []byte, err error) {
	return c.store.GetTopologySnapshot()
}

// IssueNodeCertificate issues a TLS certificate for a router joining
// under nodeID/role, signed by the cluster CA.
func (c *Coordinator) IssueNodeCertificate(nodeID, role string, dnsNames []string, ipAddresses []net.IP) (*tls.Certificate, error) {
	return c.ca.IssueNodeCertificate(nodeID, role, dnsNames, ipAddresses)
}

// RootCACert returns the cluster's DER-encoded CA certificate.
func (c *Coordinator) RootCACert() []byte {
	return c.ca.GetRootCACert()
}

// Shutdown stops raft and closes the store.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	if c.raft != nil {
		if err := c.raft.Shutdown().Error(); err != nil {
			return fmt.Errorf("coordinator: shutdown raft: %w", err)
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			return fmt.Errorf("coordinator: close store: %w", err)
		}
	}
	return nil
}

func (c *Coordinator) apply(cmd Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	return c.raft.Apply(data, 10*time.Second).Error()
}

func (c *Coordinator) initializeCA() error {
	if c.ca.IsInitialized() {
		return nil
	}
	if err := c.ca.LoadFromStore(); err == nil {
		return nil
	}
	if err := c.ca.Initialize(); err != nil {
		return fmt.Errorf("initialize cluster CA: %w", err)
	}
	return c.ca.SaveToStore()
}

func (c *Coordinator) watchLeadership(r *raft.Raft) {
	for isLeader := range r.LeaderCh() {
		metrics.CoordinatorLeadershipChangesTotal.Inc()
		if isLeader {
			metrics.CoordinatorIsLeader.Set(1)
			log.WithComponent("coordinator").Info().Str("node_id", c.nodeID).Msg("acquired raft leadership")
		} else {
			metrics.CoordinatorIsLeader.Set(0)
			log.WithComponent("coordinator").Info().Str("node_id", c.nodeID).Msg("lost raft leadership")
		}
	}
}

func newRandomToken(role string, ttl time.Duration) (*storage.JoinToken, error) {
	buf := make([]byte, tokenByteLength)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	now := time.Now()
	return &storage.JoinToken{
		Token:     hex.EncodeToString(buf),
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}
