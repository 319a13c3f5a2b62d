// Package storage is the durable side-state a coordinator instance
// keeps outside of raft's log: the cluster CA material, outstanding
// join tokens, and the last-applied topology snapshot (so a restarted
// follower can serve its health/readiness endpoints before the first
// post-restart AppendEntries arrives). It is not the event buffering
// storage — that's pkg/buffer/disk — this is cluster control-plane
// bookkeeping, a much smaller surface than a general entity store.
package storage

import "time"

// JoinToken grants a node permission to join the cluster and receive a
// signed certificate, the same role a join token plays in the control
// plane this package's bucket layout is adapted from.
type JoinToken struct {
	Token     string
	Role      string // "router" or "cli"
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether t can no longer be redeemed.
func (t *JoinToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Store is the persistence interface a coordinator depends on.
// BoltStore is the only implementation; the interface exists so the
// coordinator's raft FSM can be tested against an in-memory fake
// without touching disk.
type Store interface {
	// Certificate authority
	SaveCA(data []byte) error
	GetCA() ([]byte, error)

	// Join tokens
	SaveJoinToken(token *JoinToken) error
	GetJoinToken(token string) (*JoinToken, error)
	DeleteJoinToken(token string) error
	ListJoinTokens() ([]*JoinToken, error)

	// Topology
	SaveTopologySnapshot(revision string, data []byte) error
	GetTopologySnapshot() (revision string, data []byte, err error)

	Close() error
}
