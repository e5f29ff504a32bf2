package keyedstate

import (
	"testing"

	"github.com/flowmesh/dataflow/internal/window"
)

func TestMemoryStorePutGet(t *testing.T) {
	s := NewMemoryStore()
	k := EntryKey{OperatorID: "reduce-1", Key: "a", Window: window.Window{Start: 0, End: 60000}}

	if _, ok := s.Get(k); ok {
		t.Fatalf("expected no entry before Put")
	}
	s.Put(k, []byte("acc"))
	v, ok := s.Get(k)
	if !ok || string(v) != "acc" {
		t.Fatalf("Get after Put = %q, %v", v, ok)
	}
}

func TestMemoryStoreWindowsFor(t *testing.T) {
	s := NewMemoryStore()
	s.Put(EntryKey{OperatorID: "op", Key: "a", Window: window.Window{Start: 60000, End: 120000}}, []byte("1"))
	s.Put(EntryKey{OperatorID: "op", Key: "a", Window: window.Window{Start: 0, End: 60000}}, []byte("2"))
	s.Put(EntryKey{OperatorID: "op", Key: "b", Window: window.Window{Start: 0, End: 60000}}, []byte("3"))

	ws := s.WindowsFor("op", "a")
	want := []window.Window{{Start: 0, End: 60000}, {Start: 60000, End: 120000}}
	if len(ws) != len(want) {
		t.Fatalf("WindowsFor = %v, want %v", ws, want)
	}
	for i := range want {
		if ws[i] != want[i] {
			t.Fatalf("window %d = %v, want %v", i, ws[i], want[i])
		}
	}
}

func TestMemoryStoreSnapshotRestore(t *testing.T) {
	s := NewMemoryStore()
	k := EntryKey{OperatorID: "op", Key: "a", Window: window.Window{Start: 0, End: 60000}}
	s.Put(k, []byte("acc"))

	data, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	restored := NewMemoryStore()
	if err := restored.Restore(data); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	v, ok := restored.Get(k)
	if !ok || string(v) != "acc" {
		t.Fatalf("Get after Restore = %q, %v", v, ok)
	}
}

func TestMemoryStoreKeys(t *testing.T) {
	s := NewMemoryStore()
	s.Put(EntryKey{OperatorID: "op", Key: "a", Window: window.Window{Start: 0, End: 60000}}, []byte("1"))
	s.Put(EntryKey{OperatorID: "op", Key: "a", Window: window.Window{Start: 60000, End: 120000}}, []byte("2"))
	s.Put(EntryKey{OperatorID: "op", Key: "b", Window: window.Window{Start: 0, End: 60000}}, []byte("3"))
	s.Put(EntryKey{OperatorID: "other", Key: "c", Window: window.Window{Start: 0, End: 60000}}, []byte("4"))

	keys := s.Keys("op")
	seen := map[string]bool{}
	for _, k := range keys {
		seen[k] = true
	}
	if len(keys) != 2 || !seen["a"] || !seen["b"] {
		t.Fatalf("Keys(op) = %v, want exactly [a b]", keys)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	k := EntryKey{OperatorID: "op", Key: "a", Window: window.Window{Start: 0, End: 60000}}
	s.Put(k, []byte("acc"))
	s.Delete(k)
	if _, ok := s.Get(k); ok {
		t.Fatalf("expected entry gone after Delete")
	}
}
