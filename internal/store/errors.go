package store

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// ErrCodeSchema indicates an invalid or conflicting schema declaration,
	// or a reference to a column the schema does not declare.
	ErrCodeSchema ErrorCode = "SCHEMA"

	// ErrCodeDuplicateTable indicates AddTable was called with a name that
	// already exists in the store.
	ErrCodeDuplicateTable ErrorCode = "DUPLICATE_TABLE"

	// ErrCodeClosed indicates a write operation on a closed store.
	ErrCodeClosed ErrorCode = "CLOSED"

	// ErrCodeNotFound indicates a lookup of a nonexistent table or run.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeBlobMissing indicates a persisted cell references a side file
	// that no longer exists. This is corruption, distinct from a
	// legitimately-null cell, and is never reported as null.
	ErrCodeBlobMissing ErrorCode = "BLOB_MISSING"
)

// Error is a structured store error with context for diagnostics.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Run identifies the affected run, if known.
	Run string

	// Table identifies the affected table, if any.
	Table string

	// Column identifies the affected column, if any.
	Column string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Table != "" && e.Column != "":
		return fmt.Sprintf("%s: %s (table=%s, column=%s)", e.Code, e.Message, e.Table, e.Column)
	case e.Table != "":
		return fmt.Sprintf("%s: %s (table=%s)", e.Code, e.Message, e.Table)
	case e.Run != "":
		return fmt.Sprintf("%s: %s (run=%s)", e.Code, e.Message, e.Run)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// hasCode reports whether err is (or wraps) a store Error with the given code.
func hasCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsSchemaError reports whether err is a schema or column declaration error.
func IsSchemaError(err error) bool { return hasCode(err, ErrCodeSchema) }

// IsDuplicateTable reports whether err is a duplicate table declaration error.
func IsDuplicateTable(err error) bool { return hasCode(err, ErrCodeDuplicateTable) }

// IsClosed reports whether err is a write-after-close error.
func IsClosed(err error) bool { return hasCode(err, ErrCodeClosed) }

// IsNotFound reports whether err is a missing table or run lookup error.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsBlobMissing reports whether err is a missing side-file error.
func IsBlobMissing(err error) bool { return hasCode(err, ErrCodeBlobMissing) }

func newSchemaError(table, column, message string) *Error {
	return &Error{Code: ErrCodeSchema, Message: message, Table: table, Column: column}
}

func newDuplicateTableError(table string) *Error {
	return &Error{Code: ErrCodeDuplicateTable, Message: "table already declared", Table: table}
}

func newClosedError(run string) *Error {
	return &Error{Code: ErrCodeClosed, Message: "store is closed", Run: run}
}

func newNotFoundError(kind, name string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: kind + " not found: " + name}
}

func newBlobMissingError(path string) *Error {
	return &Error{Code: ErrCodeBlobMissing, Message: "side file missing: " + path}
}
