package workspace

import (
	"errors"
	"fmt"

	"github.com/asaidimu/manyjson/core/naming"
	"github.com/asaidimu/manyjson/core/storage"
	"github.com/asaidimu/manyjson/core/validation"
)

// ErrorKind classifies a failed use case.
type ErrorKind string

const (
	KindInvalidInput ErrorKind = "invalid_input"
	KindCompilation  ErrorKind = "compilation"
	KindConflict     ErrorKind = "conflict"
	KindNotFound     ErrorKind = "not_found"
	KindStorage      ErrorKind = "storage"
)

// Error is returned by every Service operation that fails. Message is short
// and meant for the user; Err carries the cause.
type Error struct {
	Op      Operation
	Kind    ErrorKind
	Message string
	Err     error

	// Issues lists the schema violations that blocked a data file creation.
	Issues []validation.ErrorRecord
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a workspace error, or "" for any other error.
func KindOf(err error) ErrorKind {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Kind
	}
	return ""
}

func newError(op Operation, kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// nameError converts a naming failure; duplicates are conflicts.
func nameError(op Operation, err error) *Error {
	kind := KindInvalidInput
	if errors.Is(err, naming.ErrDuplicate) {
		kind = KindConflict
	}
	return &Error{Op: op, Kind: kind, Message: err.Error(), Err: err}
}

// storageError converts a blob store failure. Missing blobs are reported as
// not found.
func storageError(op Operation, what string, err error) *Error {
	if errors.Is(err, storage.ErrNotFound) {
		return newError(op, KindNotFound, err, "%s was not found", what)
	}
	if errors.Is(err, storage.ErrExists) {
		return newError(op, KindConflict, err, "A file with this name already exists")
	}
	return newError(op, KindStorage, err, "Failed to access %s: %v", what, err)
}
