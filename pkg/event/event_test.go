package event

import (
	"testing"

	"github.com/basinrelay/flowgate/pkg/finalize"
)

func TestLogInsertAndGet(t *testing.T) {
	bn, _ := finalize.NewBatchNotifier()
	f := finalize.AddFinalizer(bn)
	meta := EventMetadata{Finalizers: finalize.EventFinalizers{f}}

	e := NewLog(nil, meta)
	if err := e.Insert(MustParsePath("message"), NewString("hello")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, ok := e.Get(MustParsePath("message"))
	if !ok {
		t.Fatal("expected Get to resolve inserted field")
	}
	if s, _ := got.Bytes(); string(s) != "hello" {
		t.Fatalf("Get() = %q, want hello", s)
	}
}

func TestEventCloneDuplicatesFinalizers(t *testing.T) {
	bn, _ := finalize.NewBatchNotifier()
	f := finalize.AddFinalizer(bn)
	meta := EventMetadata{Finalizers: finalize.EventFinalizers{f}}

	e := NewLog(nil, meta)
	cp := e.Clone()

	if len(cp.Metadata().Finalizers) != 1 {
		t.Fatalf("expected clone to carry one finalizer, got %d", len(cp.Metadata().Finalizers))
	}
	if &cp.Metadata().Finalizers[0] == &e.Metadata().Finalizers[0] {
		t.Fatal("expected clone to have an independently-added finalizer slot")
	}
}

func TestEventCloneSharesAPIKeyPointer(t *testing.T) {
	key := &APIKey{ID: "a", Token: "secret"}
	e := NewLog(nil, EventMetadata{APIKey: key})
	cp := e.Clone()

	if cp.Metadata().APIKey != key {
		t.Fatal("expected clone to share the APIKey pointer, not copy the struct")
	}
}

func TestRemoveOnEvent(t *testing.T) {
	obj := NewObjectMap()
	obj.Set("a", NewInteger(1))
	e := NewLog(obj, EventMetadata{})

	if !e.Remove(MustParsePath("a")) {
		t.Fatal("expected Remove to report success")
	}
	if _, ok := e.Get(MustParsePath("a")); ok {
		t.Fatal("expected field to be gone after Remove")
	}
}
