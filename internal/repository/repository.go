package repository

import "errors"

// ErrNotFound is kept for callers that want to translate absence into a
// failure. Get itself returns nil without an error when a row is missing.
var ErrNotFound = errors.New("aggregate not found")

// RowSource is the slice of *sql.Rows reconstitution needs: forward-only
// iteration over one result set. Reconstitution drains every source it is
// handed and never mutates storage.
type RowSource interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}
