package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/tiersync/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// BoltStore implements Store using BoltDB, one bucket per database
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "tiersync.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Put(database, key string, entry types.Fields) error {
	data, err := encode(entry)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(database))
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", database, err)
		}
		return b.Put([]byte(key), data)
	})
}

func (s *BoltStore) Get(database, key string) (types.Fields, error) {
	var entry types.Fields
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(database))
		if b == nil {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, database, key)
		}
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, database, key)
		}
		var err error
		entry, err = decode(data)
		return err
	})
	return entry, err
}

func (s *BoltStore) Delete(database, key string) (types.Fields, error) {
	var removed types.Fields
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(database))
		if b == nil {
			return nil
		}
		if data := b.Get([]byte(key)); data != nil {
			var err error
			if removed, err = decode(data); err != nil {
				return err
			}
		}
		return b.Delete([]byte(key))
	})
	return removed, err
}

func (s *BoltStore) List(database string) (map[string]types.Fields, error) {
	entries := make(map[string]types.Fields)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(database))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			entry, err := decode(v)
			if err != nil {
				return err
			}
			entries[string(k)] = entry
			return nil
		})
	})
	return entries, err
}

func (s *BoltStore) Databases() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	return names, err
}
