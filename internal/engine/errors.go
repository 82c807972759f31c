package engine

import (
	"errors"
	"fmt"
)

// Error is a failure detected while connecting, tailing or handling a record.
//
// Error kinds:
//   - Connection: checkpoint resolution or opening the oplog cursor failed
//   - Tail read: the live cursor failed; buffered records still drain
//   - Missing base document: an update arrived for an identity with no snapshot
//   - Store read: reading the base snapshot for an update failed
//   - Write: appending a snapshot to the version store failed
//   - Replay: an update descriptor conflicted with the base document shape
//   - Malformed entry: an oplog entry lacked the fields its op requires
//
// Errors from handlers stall the affected collection channel until
// Engine.Resolve is called. Nothing is retried automatically.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Collection is the source collection involved, if any.
	Collection string

	// DocID is the canonical rendering of the document identity, if any.
	DocID string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeConnection indicates the store or the oplog could not be reached.
	ErrCodeConnection ErrorCode = "CONNECTION"

	// ErrCodeTailRead indicates the oplog cursor failed mid-stream.
	ErrCodeTailRead ErrorCode = "TAIL_READ"

	// ErrCodeMissingBase indicates an update without a prior snapshot.
	ErrCodeMissingBase ErrorCode = "MISSING_BASE_DOCUMENT"

	// ErrCodeStoreRead indicates the base snapshot of an update could not be
	// read from the version store.
	ErrCodeStoreRead ErrorCode = "STORE_READ"

	// ErrCodeWrite indicates a version store append failed.
	ErrCodeWrite ErrorCode = "WRITE"

	// ErrCodeReplay indicates the update descriptor could not be applied.
	ErrCodeReplay ErrorCode = "REPLAY"

	// ErrCodeMalformedEntry indicates an oplog entry without a document id.
	ErrCodeMalformedEntry ErrorCode = "MALFORMED_ENTRY"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Collection != "" && e.DocID != "" {
		msg = fmt.Sprintf("%s (collection=%s, id=%s)", msg, e.Collection, e.DocID)
	} else if e.Collection != "" {
		msg = fmt.Sprintf("%s (collection=%s)", msg, e.Collection)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// IsConnectionError reports whether err is a connection error.
func IsConnectionError(err error) bool { return hasCode(err, ErrCodeConnection) }

// IsTailReadError reports whether err is a tail read error.
func IsTailReadError(err error) bool { return hasCode(err, ErrCodeTailRead) }

// IsMissingBaseError reports whether err is a missing base document error.
func IsMissingBaseError(err error) bool { return hasCode(err, ErrCodeMissingBase) }

// IsStoreReadError reports whether err is a version store read error.
func IsStoreReadError(err error) bool { return hasCode(err, ErrCodeStoreRead) }

// IsWriteError reports whether err is a version store write error.
func IsWriteError(err error) bool { return hasCode(err, ErrCodeWrite) }

// IsReplayError reports whether err is an update replay error.
func IsReplayError(err error) bool { return hasCode(err, ErrCodeReplay) }

// NewConnectionError creates an Error for a failed connection step.
func NewConnectionError(step string, err error) *Error {
	return &Error{
		Code:    ErrCodeConnection,
		Message: step,
		Err:     err,
	}
}

// NewTailReadError creates an Error for a failed oplog read.
func NewTailReadError(read int64, err error) *Error {
	return &Error{
		Code:    ErrCodeTailRead,
		Message: fmt.Sprintf("oplog read failed after %d records", read),
		Err:     err,
	}
}

// NewMissingBaseError creates an Error for an update with no prior snapshot.
func NewMissingBaseError(collection, docID string) *Error {
	return &Error{
		Code:       ErrCodeMissingBase,
		Message:    "update has no base snapshot",
		Collection: collection,
		DocID:      docID,
	}
}

// NewStoreReadError creates an Error for a failed base snapshot read.
func NewStoreReadError(collection, docID string, err error) *Error {
	return &Error{
		Code:       ErrCodeStoreRead,
		Message:    "read base snapshot",
		Collection: collection,
		DocID:      docID,
		Err:        err,
	}
}

// NewWriteError creates an Error for a failed snapshot append.
func NewWriteError(collection, docID string, err error) *Error {
	return &Error{
		Code:       ErrCodeWrite,
		Message:    "append snapshot",
		Collection: collection,
		DocID:      docID,
		Err:        err,
	}
}

// NewReplayError creates an Error for an update that could not be replayed.
func NewReplayError(collection, docID string, err error) *Error {
	return &Error{
		Code:       ErrCodeReplay,
		Message:    "replay update",
		Collection: collection,
		DocID:      docID,
		Err:        err,
	}
}

func newMalformedError(collection, op string) *Error {
	return &Error{
		Code:       ErrCodeMalformedEntry,
		Message:    fmt.Sprintf("%s entry has no _id", op),
		Collection: collection,
	}
}
