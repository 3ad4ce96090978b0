package ir

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Storage bounds. Both are enforced as guard clauses before every write.
const (
	// MaxPayloadBytes is the largest payload a record may carry.
	MaxPayloadBytes = 4096

	// MaxRecordsPerOwner is the capacity of a single owner's index entry.
	MaxRecordsPerOwner = 500

	// MaxOwnerBytes bounds the encoded size of an owner identity.
	MaxOwnerBytes = 256
)

// RecordIDSize is the width of a record identifier in bytes.
const RecordIDSize = 32

// RecordID is the content-addressed identifier of a record.
// It is the hash of the payload the record was created with.
type RecordID [RecordIDSize]byte

// String returns the lowercase hex form (64 characters).
func (id RecordID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the all-zero identifier.
func (id RecordID) IsZero() bool {
	return id == RecordID{}
}

// MarshalText implements encoding.TextMarshaler.
func (id RecordID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *RecordID) UnmarshalText(text []byte) error {
	parsed, err := ParseRecordID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseRecordID parses a 64-character hex identifier. An optional "0x"
// prefix is accepted so identifiers copied from chain explorers parse.
func ParseRecordID(s string) (RecordID, error) {
	var id RecordID
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != hex.EncodedLen(RecordIDSize) {
		return id, fmt.Errorf("record id must be %d hex characters, got %d", hex.EncodedLen(RecordIDSize), len(s))
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, fmt.Errorf("record id: %w", err)
	}
	return id, nil
}

// MustParseRecordID is like ParseRecordID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustParseRecordID(s string) RecordID {
	id, err := ParseRecordID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// OwnerID identifies the principal that created a record.
// The host authenticates callers; ir only checks that the identity is
// well-formed so that equal principals always compare equal.
type OwnerID string

// Validate checks that the owner identity is non-empty, valid UTF-8,
// NFC-normalised, free of control characters and at most MaxOwnerBytes.
func (o OwnerID) Validate() error {
	s := string(o)
	switch {
	case s == "":
		return NewInvalidOwner(o, "owner must not be empty")
	case len(s) > MaxOwnerBytes:
		return NewInvalidOwner(o, fmt.Sprintf("owner exceeds %d bytes", MaxOwnerBytes))
	case !utf8.ValidString(s):
		return NewInvalidOwner(o, "owner is not valid UTF-8")
	case !norm.NFC.IsNormalString(s):
		return NewInvalidOwner(o, "owner is not NFC-normalised")
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return NewInvalidOwner(o, "owner contains control characters")
		}
	}
	return nil
}

// ParseOwnerID validates s and returns it as an OwnerID.
func ParseOwnerID(s string) (OwnerID, error) {
	o := OwnerID(s)
	if err := o.Validate(); err != nil {
		return "", err
	}
	return o, nil
}

// Record is the primary stored entity: an opaque payload bound to its owner.
type Record struct {
	ID      RecordID `json:"record_id"`
	Owner   OwnerID  `json:"owner"`
	Payload []byte   `json:"payload"`
}

// Clone returns a deep copy so callers cannot alias stored payload bytes.
func (r Record) Clone() Record {
	out := r
	if r.Payload != nil {
		out.Payload = make([]byte, len(r.Payload))
		copy(out.Payload, r.Payload)
	}
	return out
}
