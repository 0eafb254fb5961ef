package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection covers unreachable hosts, timeouts and credential
	// failures while opening a connection.
	ErrConnection = errors.New("database connection failed")
	// ErrConstraint is returned when the engine rejects a write for a
	// duplicate key, a NULL in a NOT NULL column or a similar constraint.
	ErrConstraint = errors.New("constraint violation")
	ErrNotFound   = errors.New("not found")
	ErrBadKey     = errors.New("bad key")
)

// BulkInsertError reports a failed bulk load. Rows from batches before
// Batch are committed and stay in the table.
type BulkInsertError struct {
	Batch    int
	Inserted int64
	Err      error
}

func (e *BulkInsertError) Error() string {
	return fmt.Sprintf("bulk insert failed at batch %d after %d committed rows: %v", e.Batch, e.Inserted, e.Err)
}

func (e *BulkInsertError) Unwrap() error {
	return e.Err
}
