package storage

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cuemby/tiersync/pkg/types"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore implements Store on a single SQLite table in WAL mode
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates <dataDir>/tiersync.sqlite
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dataDir, "tiersync.sqlite"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Put(database, key string, entry types.Fields) error {
	data, err := encode(entry)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO entries (namespace, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value`,
		database, key, data,
	)
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", database, key, err)
	}
	return nil
}

func (s *SQLiteStore) Get(database, key string) (types.Fields, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT value FROM entries WHERE namespace = ? AND key = ?`, database, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, database, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", database, key, err)
	}
	return decode(data)
}

func (s *SQLiteStore) Delete(database, key string) (types.Fields, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var removed types.Fields
	var data []byte
	err = tx.QueryRow(`SELECT value FROM entries WHERE namespace = ? AND key = ?`, database, key).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to read %s/%s: %w", database, key, err)
	default:
		if removed, err = decode(data); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(`DELETE FROM entries WHERE namespace = ? AND key = ?`, database, key); err != nil {
		return nil, fmt.Errorf("failed to delete %s/%s: %w", database, key, err)
	}
	return removed, tx.Commit()
}

func (s *SQLiteStore) List(database string) (map[string]types.Fields, error) {
	rows, err := s.db.Query(`SELECT key, value FROM entries WHERE namespace = ?`, database)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", database, err)
	}
	defer rows.Close()

	entries := make(map[string]types.Fields)
	for rows.Next() {
		var key string
		var data []byte
		if err := rows.Scan(&key, &data); err != nil {
			return nil, err
		}
		entry, err := decode(data)
		if err != nil {
			return nil, err
		}
		entries[key] = entry
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Databases() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT namespace FROM entries ORDER BY namespace`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
