package admin

import "errors"

// Sentinel errors returned by the administration engine. The API layer maps
// these to error codes; everything else propagates wrapped with the
// underlying database message.
var (
	ErrTableNotFound      = errors.New("table not found")
	ErrNoPrimaryKey       = errors.New("table has no primary key")
	ErrNoUpdatableColumns = errors.New("no updatable columns in payload")
	ErrQueryRejected      = errors.New("only SELECT queries are allowed")
)
