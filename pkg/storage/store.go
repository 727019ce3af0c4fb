package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cuemby/tiersync/pkg/types"
)

// ErrNotFound is returned when a key has no local entry
var ErrNotFound = errors.New("local entry not found")

// Store defines the interface for the local durable cache. Entries are
// namespaced by database (record type) and keyed by record key.
type Store interface {
	Put(database, key string, entry types.Fields) error
	Get(database, key string) (types.Fields, error)
	// Delete removes an entry and returns the removed value
	Delete(database, key string) (types.Fields, error)
	List(database string) (map[string]types.Fields, error)
	Databases() ([]string, error)

	// Utility
	Close() error
}

// Store backend names accepted by Open
const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

// Open opens the store backend named by driver under dataDir
func Open(driver, dataDir string) (Store, error) {
	switch driver {
	case "", DriverBolt, "boltdb":
		return NewBoltStore(dataDir)
	case DriverSQLite, "sqlite3":
		return NewSQLiteStore(dataDir)
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}

func encode(entry types.Fields) ([]byte, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entry: %w", err)
	}
	return data, nil
}

func decode(data []byte) (types.Fields, error) {
	var entry types.Fields
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode entry: %w", err)
	}
	return entry, nil
}
