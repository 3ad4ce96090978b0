package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes credential errors.
type ErrorCode string

const (
	// CodePayloadTooLarge indicates the payload exceeds MaxPayloadBytes.
	CodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"

	// CodeDuplicateRecord indicates a record with the same content id exists.
	CodeDuplicateRecord ErrorCode = "DUPLICATE_RECORD"

	// CodeCapacityExceeded indicates the owner already holds MaxRecordsPerOwner records.
	CodeCapacityExceeded ErrorCode = "CAPACITY_EXCEEDED"

	// CodeRecordNotFound indicates the referenced record does not exist.
	CodeRecordNotFound ErrorCode = "RECORD_NOT_FOUND"

	// CodeNotOwner indicates the caller does not own the referenced record.
	CodeNotOwner ErrorCode = "NOT_OWNER"

	// CodeInvalidOwner indicates a malformed caller or owner identity.
	CodeInvalidOwner ErrorCode = "INVALID_OWNER"
)

// Error is a rejected credential operation.
//
// Every Error leaves storage untouched. Errors carry the identifiers
// involved so callers can report them without re-deriving anything.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// RecordID identifies the affected record, when there is one.
	RecordID RecordID

	// Owner is the caller or owner involved, when there is one.
	Owner OwnerID
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case !e.RecordID.IsZero() && e.Owner != "":
		return fmt.Sprintf("%s: %s (record=%s, owner=%s)", e.Code, e.Message, e.RecordID, e.Owner)
	case !e.RecordID.IsZero():
		return fmt.Sprintf("%s: %s (record=%s)", e.Code, e.Message, e.RecordID)
	case e.Owner != "":
		return fmt.Sprintf("%s: %s (owner=%s)", e.Code, e.Message, e.Owner)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code, so the sentinels below work
// with errors.Is regardless of the identifiers carried.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrPayloadTooLarge  = &Error{Code: CodePayloadTooLarge, Message: "payload too large"}
	ErrDuplicateRecord  = &Error{Code: CodeDuplicateRecord, Message: "record already exists"}
	ErrCapacityExceeded = &Error{Code: CodeCapacityExceeded, Message: "owner record capacity exceeded"}
	ErrRecordNotFound   = &Error{Code: CodeRecordNotFound, Message: "record not found"}
	ErrNotOwner         = &Error{Code: CodeNotOwner, Message: "caller is not the record owner"}
	ErrInvalidOwner     = &Error{Code: CodeInvalidOwner, Message: "invalid owner"}
)

// CodeOf returns the ErrorCode carried by err, or "" if err is not an *Error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// NewPayloadTooLarge creates an Error for an oversized payload.
func NewPayloadTooLarge(size int) *Error {
	return &Error{
		Code:    CodePayloadTooLarge,
		Message: fmt.Sprintf("payload is %d bytes, limit is %d", size, MaxPayloadBytes),
	}
}

// NewDuplicateRecord creates an Error for a content id collision.
func NewDuplicateRecord(id RecordID) *Error {
	return &Error{
		Code:     CodeDuplicateRecord,
		Message:  "a record with identical content already exists",
		RecordID: id,
	}
}

// NewCapacityExceeded creates an Error for an owner at capacity.
func NewCapacityExceeded(owner OwnerID) *Error {
	return &Error{
		Code:    CodeCapacityExceeded,
		Message: fmt.Sprintf("owner already holds %d records", MaxRecordsPerOwner),
		Owner:   owner,
	}
}

// NewRecordNotFound creates an Error for an unknown record id.
func NewRecordNotFound(id RecordID) *Error {
	return &Error{
		Code:     CodeRecordNotFound,
		Message:  "record not found",
		RecordID: id,
	}
}

// NewNotOwner creates an Error for a caller without mutation rights.
func NewNotOwner(id RecordID, caller OwnerID) *Error {
	return &Error{
		Code:     CodeNotOwner,
		Message:  "caller is not the record owner",
		RecordID: id,
		Owner:    caller,
	}
}

// NewInvalidOwner creates an Error for a malformed identity.
func NewInvalidOwner(owner OwnerID, reason string) *Error {
	return &Error{
		Code:    CodeInvalidOwner,
		Message: reason,
		Owner:   owner,
	}
}
