package coordinator

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/basinrelay/flowgate/pkg/storage"
)

// Op names a mutation applied to the raft-replicated coordinator state.
type Op string

const (
	OpIssueToken     Op = "issue_token"
	OpRevokeToken    Op = "revoke_token"
	OpApplyTopology  Op = "apply_topology"
)

// Command is the unit of work raft replicates through the log. Each
// Command is JSON-encoded before it is handed to raft.Apply and
// decoded again inside FSM.Apply on every voter, so all three op
// kinds carry only JSON-marshalable fields.
type Command struct {
	Op Op `json:"op"`

	// OpIssueToken / OpRevokeToken
	Token *storage.JoinToken `json:"token,omitempty"`
	TokenString string `json:"token_string,omitempty"`

	// OpApplyTopology
	Revision string `json:"revision,omitempty"`
	Config   []byte `json:"config,omitempty"`
}

// FSM applies coordinator commands to the durable store. It holds no
// state of its own beyond the store handle: every read a command
// needs comes from storage.Store, and every write goes back through
// it, so a restarted router can rebuild its view purely by replaying
// the raft log (or loading the latest snapshot) into a fresh FSM.
type FSM struct {
	mu    sync.Mutex
	store storage.Store
}

// NewFSM constructs an FSM backed by store.
func NewFSM(store storage.Store) *FSM {
	return &FSM{store: store}
}

// Apply implements raft.FSM. It is invoked once per committed log
// entry, in log order, on every member of the raft group — including
// the leader that proposed it.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("coordinator: decode raft log entry: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case OpIssueToken:
		if cmd.Token == nil {
			return fmt.Errorf("coordinator: issue_token command missing token")
		}
		return f.store.SaveJoinToken(cmd.Token)
	case OpRevokeToken:
		return f.store.DeleteJoinToken(cmd.TokenString)
	case OpApplyTopology:
		return f.store.SaveTopologySnapshot(cmd.Revision, cmd.Config)
	default:
		return fmt.Errorf("coordinator: unknown command op %q", cmd.Op)
	}
}

// Snapshot implements raft.FSM. The FSM's entire durable state already
// lives in storage.Store, so the snapshot is just that store's current
// contents re-packaged for raft's own log-compaction bookkeeping —
// restoring it replaces the store wholesale rather than replaying
// deltas.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := stateSnapshot{}

	if ca, err := f.store.GetCA(); err == nil {
		snap.CA = ca
	}

	tokens, err := f.store.ListJoinTokens()
	if err != nil {
		return nil, fmt.Errorf("coordinator: list join tokens for snapshot: %w", err)
	}
	snap.Tokens = tokens

	if rev, data, err := f.store.GetTopologySnapshot(); err == nil {
		snap.TopologyRevision = rev
		snap.TopologyConfig = data
	}

	return &snap, nil
}

// Restore implements raft.FSM, replacing the store's contents with a
// previously captured snapshot. It is called once, before the FSM
// starts receiving Apply calls, when a follower falls far enough
// behind that raft ships it a full snapshot instead of replaying log
// entries.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap stateSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("coordinator: decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	existing, err := f.store.ListJoinTokens()
	if err != nil {
		return fmt.Errorf("coordinator: list join tokens before restore: %w", err)
	}
	for _, tok := range existing {
		if err := f.store.DeleteJoinToken(tok.Token); err != nil {
			return fmt.Errorf("coordinator: clear join token %s before restore: %w", tok.Token, err)
		}
	}

	if len(snap.CA) > 0 {
		if err := f.store.SaveCA(snap.CA); err != nil {
			return fmt.Errorf("coordinator: restore CA: %w", err)
		}
	}

	for _, tok := range snap.Tokens {
		if err := f.store.SaveJoinToken(tok); err != nil {
			return fmt.Errorf("coordinator: restore join token %s: %w", tok.Token, err)
		}
	}

	if snap.TopologyRevision != "" {
		if err := f.store.SaveTopologySnapshot(snap.TopologyRevision, snap.TopologyConfig); err != nil {
			return fmt.Errorf("coordinator: restore topology snapshot: %w", err)
		}
	}

	return nil
}

// stateSnapshot is the wire shape raft persists to its snapshot store
// and ships to a lagging follower.
type stateSnapshot struct {
	CA               []byte              `json:"ca,omitempty"`
	Tokens           []*storage.JoinToken `json:"tokens,omitempty"`
	TopologyRevision string              `json:"topology_revision,omitempty"`
	TopologyConfig   []byte              `json:"topology_config,omitempty"`
}

func (s *stateSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		enc := json.NewEncoder(sink)
		return enc.Encode(s)
	}()
	if err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *stateSnapshot) Release() {}
