// Package syncerr classifies sync failures and runs the retry loops. Every
// database-facing operation in the daemon goes through this package so that
// the propagation policy lives in one place: connection and query failures
// are retried with exponential backoff, upload/delete/download failures are
// logged and returned for the data-preserving fallbacks to handle, and
// anything that escapes a cycle lands in the unhandled sink.
package syncerr

import (
	"errors"
	"fmt"
)

// Kind is the failure taxonomy.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnection
	KindQuery
	KindUpload
	KindDelete
	KindDownload
)

// String returns the lowercase name used in logs and error text.
func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindQuery:
		return "query"
	case KindUpload:
		return "upload"
	case KindDelete:
		return "delete"
	case KindDownload:
		return "download"
	default:
		return "unknown"
	}
}

// Error carries the failure kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind and operation name. Returns nil for a nil err so
// call sites can wrap unconditionally.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the kind from an error chain, KindUnknown if absent.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}

	return KindUnknown
}
