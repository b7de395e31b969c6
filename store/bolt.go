// Package store persists ledger snapshots across enclave restarts.
package store

import (
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ErrNoSnapshot is returned by Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no ledger snapshot stored")

var (
	bucketName  = []byte("auction")
	snapshotKey = []byte("snapshot")
)

// SnapshotStore keeps the latest ledger snapshot in a bbolt file. Only the
// newest snapshot is retained; the ledger state is self-contained so history
// adds nothing.
type SnapshotStore struct {
	db *bolt.DB
}

// Open opens (or creates) the snapshot database at path.
func Open(path string) (*SnapshotStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open snapshot store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshot bucket: %w", err)
	}
	return &SnapshotStore{db: db}, nil
}

// Save replaces the stored snapshot.
func (s *SnapshotStore) Save(snapshot []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(snapshotKey, snapshot)
	})
	if err != nil {
		return fmt.Errorf("save ledger snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, or ErrNoSnapshot when none exists.
func (s *SnapshotStore) Load() ([]byte, error) {
	var snapshot []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketName).Get(snapshotKey)
		if data == nil {
			return ErrNoSnapshot
		}
		snapshot = make([]byte, len(data))
		copy(snapshot, data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Close releases the database file.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}
