package coordinator

import (
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"

	"github.com/flowmesh/dataflow/internal/checkpoint"
	"github.com/flowmesh/dataflow/internal/dag"
)

var (
	bucketJobs          = []byte("jobs")
	bucketSnapshotIndex = []byte("snapshot_index")
)

// retainedSnapshotsPerOperator is the number of most recent successful handles kept
// per operator, so a restarted task can recover without rescanning the
// whole backend.
const retainedSnapshotsPerOperator = 3

// Store persists ApplicationDescriptors and the coordinator's retained
// snapshot-handle table in BoltDB, so both survive a coordinator restart
// instead of living only in memory.
type Store struct {
	db *bolt.DB
	mu sync.RWMutex

	// in-memory mirrors kept for hot-path reads; BoltDB is the
	// durability layer, not the read path.
	descriptors map[string]*dag.ApplicationDescriptor
	snapshots   map[string][]checkpoint.Handle // operatorID -> handles, newest last
	taskJob     map[string]string              // TaskId.String() -> owning submission jobID, rebuilt on PutJob
}

// NewStore opens (creating if necessary) a BoltDB database at dbPath and
// warms the in-memory mirrors from it.
func NewStore(dbPath string) (*Store, error) {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("coordinator: open store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketJobs, bucketSnapshotIndex} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("coordinator: create buckets: %w", err)
	}

	s := &Store{
		db:          db,
		descriptors: make(map[string]*dag.ApplicationDescriptor),
		snapshots:   make(map[string][]checkpoint.Handle),
		taskJob:     make(map[string]string),
	}
	if err := s.warmCache(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) warmCache() error {
	return s.db.View(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketJobs).ForEach(func(k, v []byte) error {
			var d dag.ApplicationDescriptor
			if err := json.Unmarshal(v, &d); err != nil {
				return nil
			}
			s.descriptors[string(k)] = &d
			s.indexTasks(string(k), &d)
			return nil
		}); err != nil {
			return err
		}
		return tx.Bucket(bucketSnapshotIndex).ForEach(func(k, v []byte) error {
			var handles []checkpoint.Handle
			if err := json.Unmarshal(v, &handles); err != nil {
				return nil
			}
			s.snapshots[string(k)] = handles
			return nil
		})
	})
}

// Close closes the underlying BoltDB handle.
func (s *Store) Close() error { return s.db.Close() }

// PutJob persists jobID's descriptor and updates the in-memory mirror.
func (s *Store) PutJob(jobID string, d *dag.ApplicationDescriptor) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("coordinator: marshal descriptor: %w", err)
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).Put([]byte(jobID), data)
	}); err != nil {
		return fmt.Errorf("coordinator: persist job %q: %w", jobID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.descriptors[jobID] = d
	s.indexTasks(jobID, d)
	return nil
}

// indexTasks records every task in d as belonging to jobID, so a
// heartbeat or ack carrying only a task id string can be routed back to
// its owning submission. Caller must hold s.mu.
func (s *Store) indexTasks(jobID string, d *dag.ApplicationDescriptor) {
	for _, t := range d.Tasks {
		s.taskJob[t.TaskID.String()] = jobID
	}
}

// JobForTask returns the submission jobID that owns taskID, if known.
func (s *Store) JobForTask(taskID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobID, ok := s.taskJob[taskID]
	return jobID, ok
}

// GetJob returns the descriptor for jobID.
func (s *Store) GetJob(jobID string) (*dag.ApplicationDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.descriptors[jobID]
	return d, ok
}

// ListJobs returns every known job id.
func (s *Store) ListJobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.descriptors))
	for id := range s.descriptors {
		ids = append(ids, id)
	}
	return ids
}

// RetainSnapshot records handle as operatorID's newest snapshot, evicting
// the oldest once more than retainedSnapshotsPerOperator are held.
func (s *Store) RetainSnapshot(operatorID string, handle checkpoint.Handle) ([]checkpoint.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handles := append(s.snapshots[operatorID], handle)
	if len(handles) > retainedSnapshotsPerOperator {
		handles = handles[len(handles)-retainedSnapshotsPerOperator:]
	}
	s.snapshots[operatorID] = handles

	data, err := json.Marshal(handles)
	if err != nil {
		return nil, fmt.Errorf("coordinator: marshal snapshot index: %w", err)
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshotIndex).Put([]byte(operatorID), data)
	}); err != nil {
		return nil, fmt.Errorf("coordinator: persist snapshot index for %q: %w", operatorID, err)
	}
	return append([]checkpoint.Handle(nil), handles...), nil
}

// RetainedSnapshots returns the currently retained handles for operatorID,
// newest last.
func (s *Store) RetainedSnapshots(operatorID string) []checkpoint.Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]checkpoint.Handle(nil), s.snapshots[operatorID]...)
}
