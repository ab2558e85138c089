// Package eventstore implements a bbolt-backed muxer.Notifier: an
// example of the recorder-info event sink described in §6, persisting
// MAX_FILESIZE_REACHED / MAX_DURATION_REACHED / STOP_PREMATURELY events
// so a caller can inspect why a session ended after the fact.
package eventstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"mp4mux/pkg/muxer"
)

const bucketName = "events"

const defaultMaxRecords = 10000

// Record is one persisted notification.
type Record struct {
	Time    int64  `json:"time"` // unix nanoseconds
	Kind    string `json:"kind"`
	TrackID uint32 `json:"track_id"`
}

// Store persists muxer.Event notifications to a bbolt database file.
// A single Store may be shared as the Notifier for several concurrent
// Muxer sessions; Notify is safe for concurrent use.
type Store struct {
	db        *bolt.DB
	maxRecords int
	mu        sync.Mutex
}

// Open opens or creates the event database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("eventstore: open %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("eventstore: create bucket: %w", err)
	}

	return &Store{db: db, maxRecords: defaultMaxRecords}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Notify implements muxer.Notifier.
func (s *Store) Notify(e muxer.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Record{Time: time.Now().UnixNano(), Kind: e.Kind.String(), TrackID: e.TrackID}
	// muxer.Notifier has no error return path; a failed write here just
	// means this one notification is lost.
	_ = s.save(rec)
}

func (s *Store) save(rec Record) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("eventstore: marshal record: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b.Stats().KeyN >= s.maxRecords {
			if err := deleteFirstKey(b); err != nil {
				return fmt.Errorf("eventstore: evict oldest record: %w", err)
			}
		}
		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("eventstore: next sequence: %w", err)
		}
		return b.Put(encodeKey(uint64(rec.Time), seq), value)
	})
}

// Recent returns up to limit most-recent records, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	var out []Record

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		c := b.Cursor()

		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("eventstore: unmarshal record: %w", err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func deleteFirstKey(b *bolt.Bucket) error {
	k, _ := b.Cursor().First()
	return b.Delete(k)
}

// encodeKey packs time and a per-bucket sequence into a 16-byte key so
// that two records saved within the same clock tick still sort by
// insertion order instead of colliding.
func encodeKey(t, seq uint64) []byte {
	out := make([]byte, 16)
	binary.BigEndian.PutUint64(out[:8], t)
	binary.BigEndian.PutUint64(out[8:], seq)
	return out
}
