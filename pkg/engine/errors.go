package engine

import "errors"

var (
	// ErrKeyReserved is returned by Create when another active record
	// already holds the key.
	ErrKeyReserved = errors.New("record key already reserved")

	// ErrTombstoned is returned when a save or fetch targets a record whose
	// removal has been decided.
	ErrTombstoned = errors.New("record is tombstoned")

	// ErrClosed is returned after Database.Close
	ErrClosed = errors.New("database closed")

	// ErrValidation wraps validator failures
	ErrValidation = errors.New("validation failed")

	// ErrForeignRecord is returned when a record is handed to a database
	// that did not create it.
	ErrForeignRecord = errors.New("record belongs to another database")
)
