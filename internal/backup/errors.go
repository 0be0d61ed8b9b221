package backup

import (
	"fmt"

	"github.com/tphakala/logbook/internal/datastore"
	"github.com/tphakala/logbook/internal/errors"
)

// ErrorCode represents specific backup error types
type ErrorCode int

const (
	// ErrUnknown represents an unknown error
	ErrUnknown ErrorCode = iota
	// ErrStoreUnavailable means the snapshot table is not provisioned
	ErrStoreUnavailable
	// ErrWrite represents a failed create, delete or insert
	ErrWrite
	// ErrRead represents a failed fetch or list
	ErrRead
	// ErrMalformedPayload represents a stored payload that cannot be decoded
	ErrMalformedPayload
	// ErrValidation represents rejected input
	ErrValidation
	// ErrNotFound represents a missing snapshot
	ErrNotFound
)

func (c ErrorCode) String() string {
	switch c {
	case ErrStoreUnavailable:
		return "store_unavailable"
	case ErrWrite:
		return "write_error"
	case ErrRead:
		return "read_error"
	case ErrMalformedPayload:
		return "malformed_payload"
	case ErrValidation:
		return "validation"
	case ErrNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

func (c ErrorCode) category() errors.ErrorCategory {
	switch c {
	case ErrStoreUnavailable:
		return errors.CategoryConfiguration
	case ErrWrite, ErrRead:
		return errors.CategoryDatabase
	case ErrMalformedPayload:
		return errors.CategoryFileParsing
	case ErrValidation:
		return errors.CategoryValidation
	case ErrNotFound:
		return errors.CategoryNotFound
	default:
		return errors.CategorySnapshot
	}
}

// Error represents a backup operation error
type Error struct {
	Code       ErrorCode            // Error classification
	Op         string               // operation that failed, e.g. "create" or "restore.insert"
	Collection datastore.Collection // collection involved, empty when not applicable
	Message    string               // Human-readable error message
	Err        error                // Original error if any
}

// Error returns the error message
func (e *Error) Error() string {
	msg := e.Message
	if e.Collection != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Collection)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// newError wraps cause in an enhanced error so it reaches telemetry with the
// backup component and a category derived from code.
func newError(code ErrorCode, op, message string, cause error) *Error {
	var builder *errors.ErrorBuilder
	if cause != nil {
		builder = errors.New(cause)
	} else {
		builder = errors.Newf("%s", message)
	}
	builder = builder.
		Component("backup").
		Category(code.category()).
		Context("operation", op).
		Context("error_code", code.String())
	if code == ErrStoreUnavailable {
		builder = builder.Priority(errors.PriorityHigh)
	}

	return &Error{
		Code:    code,
		Op:      op,
		Message: message,
		Err:     builder.Build(),
	}
}

// storeError classifies a snapshot repository failure: a missing table is
// ErrStoreUnavailable, anything else is fallback.
func storeError(op string, fallback ErrorCode, cause error) *Error {
	if datastore.IsTableMissing(cause) {
		return newError(ErrStoreUnavailable, op, "snapshot storage is not provisioned", cause)
	}
	message := "snapshot write failed"
	if fallback == ErrRead {
		message = "snapshot read failed"
	}
	return newError(fallback, op, message, cause)
}

// IsErrorCode checks if an error is a backup error with the specified code
func IsErrorCode(err error, code ErrorCode) bool {
	var backupErr *Error
	if err == nil {
		return false
	}
	if errors.As(err, &backupErr) {
		return backupErr.Code == code
	}
	return false
}

// IsStoreUnavailable reports whether the snapshot table is missing.
func IsStoreUnavailable(err error) bool {
	return IsErrorCode(err, ErrStoreUnavailable)
}

// IsNotFound reports whether err refers to a missing snapshot.
func IsNotFound(err error) bool {
	return IsErrorCode(err, ErrNotFound)
}

// IsMalformedPayload reports whether err refers to an unreadable snapshot.
func IsMalformedPayload(err error) bool {
	return IsErrorCode(err, ErrMalformedPayload)
}

// IsValidation reports whether err is rejected input.
func IsValidation(err error) bool {
	return IsErrorCode(err, ErrValidation)
}
