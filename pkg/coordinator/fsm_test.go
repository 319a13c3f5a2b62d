package coordinator

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/hashicorp/raft"

	"github.com/basinrelay/flowgate/pkg/storage"
)

func newTestFSM(t *testing.T) (*FSM, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewFSM(store), store
}

func applyCmd(t *testing.T, fsm *FSM, cmd Command) interface{} {
	t.Helper()
	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal command: %v", err)
	}
	return fsm.Apply(&raft.Log{Data: data})
}

func TestFSMAppliesIssueToken(t *testing.T) {
	fsm, store := newTestFSM(t)
	tok := &storage.JoinToken{Token: "tkn-1", Role: "sink", CreatedAt: time.Unix(0, 0), ExpiresAt: time.Unix(100, 0)}

	if result := applyCmd(t, fsm, Command{Op: OpIssueToken, Token: tok}); result != nil {
		t.Fatalf("Apply(issue_token) = %v, want nil", result)
	}

	got, err := store.GetJoinToken("tkn-1")
	if err != nil {
		t.Fatalf("GetJoinToken: %v", err)
	}
	if got.Role != "sink" {
		t.Fatalf("Role = %q, want sink", got.Role)
	}
}

func TestFSMAppliesRevokeToken(t *testing.T) {
	fsm, store := newTestFSM(t)
	tok := &storage.JoinToken{Token: "tkn-2", Role: "source"}
	if err := store.SaveJoinToken(tok); err != nil {
		t.Fatalf("SaveJoinToken: %v", err)
	}

	if result := applyCmd(t, fsm, Command{Op: OpRevokeToken, TokenString: "tkn-2"}); result != nil {
		t.Fatalf("Apply(revoke_token) = %v, want nil", result)
	}

	if _, err := store.GetJoinToken("tkn-2"); err == nil {
		t.Fatal("GetJoinToken: expected error after revoke")
	}
}

func TestFSMAppliesTopologyConfig(t *testing.T) {
	fsm, store := newTestFSM(t)

	if result := applyCmd(t, fsm, Command{Op: OpApplyTopology, Revision: "rev-7", Config: []byte("nodes: []")}); result != nil {
		t.Fatalf("Apply(apply_topology) = %v, want nil", result)
	}

	rev, data, err := store.GetTopologySnapshot()
	if err != nil {
		t.Fatalf("GetTopologySnapshot: %v", err)
	}
	if rev != "rev-7" || string(data) != "nodes: []" {
		t.Fatalf("GetTopologySnapshot() = (%q, %q), want (rev-7, nodes: [])", rev, data)
	}
}

func TestFSMApplyUnknownOpReturnsError(t *testing.T) {
	fsm, _ := newTestFSM(t)
	result := applyCmd(t, fsm, Command{Op: "bogus"})
	if result == nil {
		t.Fatal("Apply(bogus) = nil, want error")
	}
	if _, ok := result.(error); !ok {
		t.Fatalf("Apply(bogus) = %T, want error", result)
	}
}

func TestFSMSnapshotAndRestoreRoundTrip(t *testing.T) {
	fsm, store := newTestFSM(t)

	if err := store.SaveCA([]byte("ca-der-bytes")); err != nil {
		t.Fatalf("SaveCA: %v", err)
	}
	if err := store.SaveJoinToken(&storage.JoinToken{Token: "tkn-3", Role: "source", ExpiresAt: time.Unix(500, 0)}); err != nil {
		t.Fatalf("SaveJoinToken: %v", err)
	}
	if err := store.SaveTopologySnapshot("rev-9", []byte("config-bytes")); err != nil {
		t.Fatalf("SaveTopologySnapshot: %v", err)
	}

	snap, err := fsm.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	var buf bytes.Buffer
	if err := snap.(*stateSnapshot).Persist(&fakeSnapshotSink{Buffer: &buf}); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	restoreStore, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	t.Cleanup(func() { _ = restoreStore.Close() })
	restoreFSM := NewFSM(restoreStore)

	if err := restoreFSM.Restore(io.NopCloser(&buf)); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	ca, err := restoreStore.GetCA()
	if err != nil || string(ca) != "ca-der-bytes" {
		t.Fatalf("GetCA() = (%q, %v), want ca-der-bytes", ca, err)
	}

	tok, err := restoreStore.GetJoinToken("tkn-3")
	if err != nil || tok.Role != "source" {
		t.Fatalf("GetJoinToken() = (%+v, %v), want role source", tok, err)
	}

	rev, data, err := restoreStore.GetTopologySnapshot()
	if err != nil || rev != "rev-9" || string(data) != "config-bytes" {
		t.Fatalf("GetTopologySnapshot() = (%q, %q, %v), want (rev-9, config-bytes, nil)", rev, data, err)
	}
}

// fakeSnapshotSink satisfies raft.SnapshotSink by writing into an
// in-memory buffer, standing in for the on-disk sink raft.FileSnapshotStore
// would otherwise hand Persist.
type fakeSnapshotSink struct {
	*bytes.Buffer
}

func (f *fakeSnapshotSink) ID() string             { return "test-snapshot" }
func (f *fakeSnapshotSink) Cancel() error          { return nil }
func (f *fakeSnapshotSink) Close() error           { return nil }
