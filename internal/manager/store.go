package manager

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/rtsync/internal/wire"
)

// Store is the bbolt-backed reference implementation of the manager's
// worker/mirror-status CRUD (spec §3 C8, §6), grounded on
// pkg/storage/boltdb.go's db.Update(func(tx *bolt.Tx) error {...})
// bucket pattern. It exists for local/dev testing of a worker against
// a real HTTP manager; the manager proper is an external collaborator
// and otherwise out of scope (spec §1).
type Store struct {
	db *bolt.DB
}

var (
	bucketWorkers = []byte("workers")
	bucketMirrors = []byte("mirrors")
)

// NewStore opens (creating if needed) a bbolt database under dataDir.
func NewStore(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "rtsync-manager.db")
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("manager: open database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketWorkers, bucketMirrors} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("manager: create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// PutWorker upserts ws, keyed by ID, setting LastRegister/LastOnline
// to now.
func (s *Store) PutWorker(ws wire.WorkerStatus) (wire.WorkerStatus, error) {
	now := time.Now().UTC()
	ws.LastRegister = now
	ws.LastOnline = now
	err := s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(ws)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketWorkers).Put([]byte(ws.ID), data)
	})
	return ws, err
}

// ListWorkers returns every registered worker.
func (s *Store) ListWorkers() ([]wire.WorkerStatus, error) {
	var out []wire.WorkerStatus
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWorkers).ForEach(func(k, v []byte) error {
			var ws wire.WorkerStatus
			if err := json.Unmarshal(v, &ws); err != nil {
				return err
			}
			out = append(out, ws)
			return nil
		})
	})
	return out, err
}

// DeleteWorker removes a worker's own entry.
func (s *Store) DeleteWorker(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWorkers).Delete([]byte(id))
	})
}

func mirrorKey(workerID, name string) []byte {
	return []byte(workerID + "/" + name)
}

// ListJobs returns every mirror status reported by workerID.
func (s *Store) ListJobs(workerID string) ([]wire.MirrorStatus, error) {
	prefix := []byte(workerID + "/")
	var out []wire.MirrorStatus
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketMirrors).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var ms wire.MirrorStatus
			if err := json.Unmarshal(v, &ms); err != nil {
				return err
			}
			out = append(out, ms)
		}
		return nil
	})
	return out, err
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// UpdateStatus merges an incoming status report into the stored
// MirrorStatus for (workerID, next.Name), enforcing spec §3's
// invariants: last_update only advances on Success, last_ended on
// Success or Failed, last_started only on entering PreSyncing from a
// non-PreSyncing state, and size is only replaced by a non-empty,
// non-"unknown" value.
func (s *Store) UpdateStatus(workerID string, next wire.MirrorStatus) (wire.MirrorStatus, error) {
	key := mirrorKey(workerID, next.Name)
	var merged wire.MirrorStatus
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMirrors)
		var prev wire.MirrorStatus
		if data := b.Get(key); data != nil {
			if err := json.Unmarshal(data, &prev); err != nil {
				return err
			}
		}

		merged = prev
		merged.Name = next.Name
		merged.Worker = workerID
		merged.IsMaster = next.IsMaster
		merged.Upstream = next.Upstream
		merged.ErrorMsg = next.ErrorMsg
		merged.Scheduled = next.Scheduled

		prevStatus := prev.Status
		merged.Status = next.Status

		switch next.Status {
		case wire.StatusPreSyncing:
			if prevStatus != wire.StatusPreSyncing {
				merged.LastStarted = next.LastStarted
				if merged.LastStarted.IsZero() {
					merged.LastStarted = time.Now().UTC()
				}
			}
		case wire.StatusSuccess:
			merged.LastUpdate = nonZero(next.LastUpdate, time.Now().UTC())
			merged.LastEnded = nonZero(next.LastEnded, time.Now().UTC())
		case wire.StatusFailed:
			merged.LastEnded = nonZero(next.LastEnded, time.Now().UTC())
		}

		if next.Size != "" && next.Size != "unknown" {
			merged.Size = next.Size
		}

		data, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	return merged, err
}

func nonZero(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t
}

// PutSchedules updates the next_schedule field for every entry in
// snap, leaving all other status fields untouched.
func (s *Store) PutSchedules(workerID string, snap wire.MirrorSchedules) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMirrors)
		for _, entry := range snap.Schedules {
			key := mirrorKey(workerID, entry.MirrorName)
			var ms wire.MirrorStatus
			if data := b.Get(key); data != nil {
				if err := json.Unmarshal(data, &ms); err != nil {
					return err
				}
			} else {
				ms.Name = entry.MirrorName
				ms.Worker = workerID
			}
			ms.Scheduled = entry.NextSchedule
			data, err := json.Marshal(ms)
			if err != nil {
				return err
			}
			if err := b.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// AllJobs returns every mirror status across every worker, for the
// client-facing GET /jobs endpoint.
func (s *Store) AllJobs() ([]wire.MirrorStatus, error) {
	var out []wire.MirrorStatus
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMirrors).ForEach(func(k, v []byte) error {
			var ms wire.MirrorStatus
			if err := json.Unmarshal(v, &ms); err != nil {
				return err
			}
			out = append(out, ms)
			return nil
		})
	})
	return out, err
}

// DeleteDisabled removes every mirror whose last reported status is
// Disabled, for DELETE /jobs/disabled.
func (s *Store) DeleteDisabled() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMirrors)
		var toDelete [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var ms wire.MirrorStatus
			if err := json.Unmarshal(v, &ms); err != nil {
				return err
			}
			if ms.Status == wire.StatusDisabled {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
