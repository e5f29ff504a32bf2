// Package keyedstate implements the (operator, key, window) -> accumulator
// table that windowed aggregation operators (Reduce) read and update as
// records arrive, and that the checkpoint subsystem snapshots.
package keyedstate

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/flowmesh/dataflow/internal/window"
)

// EntryKey identifies one accumulator slot.
type EntryKey struct {
	OperatorID string
	Key        string
	Window     window.Window
}

// Store holds keyed, windowed accumulator state for one task. Values are
// opaque bytes; operators own their own accumulator encoding (typically
// an element.Buffer already serialized by the operator's Reduce function).
type Store interface {
	Get(k EntryKey) ([]byte, bool)
	Put(k EntryKey, value []byte)
	Delete(k EntryKey)
	// WindowsFor returns every window currently holding state for
	// (operatorID, key), used to find windows ready to fire once the
	// watermark passes their end.
	WindowsFor(operatorID, key string) []window.Window
	// Keys returns every distinct key currently holding state for
	// operatorID, used by Reduce to scan all keys for windows ready to
	// fire once the aligned watermark advances.
	Keys(operatorID string) []string
	Snapshot() ([]byte, error)
	Restore(data []byte) error
}

// memoryStore is the default backend (config key keyed_state_backend =
// "Memory"): an in-process map guarded by a mutex, generalized from the
// flat result cache pattern into a keyed, windowed table.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[EntryKey][]byte
}

// NewMemoryStore returns a Store backed by an in-process map.
func NewMemoryStore() Store {
	return &memoryStore{entries: make(map[EntryKey][]byte)}
}

func (s *memoryStore) Get(k EntryKey) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[k]
	return v, ok
}

func (s *memoryStore) Put(k EntryKey, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[k] = value
}

func (s *memoryStore) Delete(k EntryKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, k)
}

func (s *memoryStore) WindowsFor(operatorID, key string) []window.Window {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var windows []window.Window
	for k := range s.entries {
		if k.OperatorID == operatorID && k.Key == key {
			windows = append(windows, k.Window)
		}
	}
	window.Sort(windows)
	return windows
}

func (s *memoryStore) Keys(operatorID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var keys []string
	for k := range s.entries {
		if k.OperatorID == operatorID && !seen[k.Key] {
			seen[k.Key] = true
			keys = append(keys, k.Key)
		}
	}
	return keys
}

// gobEntry is the on-wire shape for one snapshotted entry; EntryKey itself
// isn't gob-friendly as a map key type across process boundaries, so
// entries are flattened to a slice.
type gobEntry struct {
	Key   EntryKey
	Value []byte
}

func (s *memoryStore) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]gobEntry, 0, len(s.entries))
	for k, v := range s.entries {
		entries = append(entries, gobEntry{Key: k, Value: v})
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return nil, fmt.Errorf("keyedstate: snapshot encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *memoryStore) Restore(data []byte) error {
	var entries []gobEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entries); err != nil {
		return fmt.Errorf("keyedstate: restore decode: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[EntryKey][]byte, len(entries))
	for _, e := range entries {
		s.entries[e.Key] = e.Value
	}
	return nil
}
