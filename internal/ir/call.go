package ir

import (
	"encoding/hex"
	"fmt"
)

// CallKind names a mutating operation.
type CallKind string

const (
	CallCreate CallKind = "create"
	CallUpdate CallKind = "update"
	CallDelete CallKind = "delete"
)

// Valid reports whether k is a known call kind.
func (k CallKind) Valid() bool {
	switch k {
	case CallCreate, CallUpdate, CallDelete:
		return true
	}
	return false
}

// Call is one externally submitted mutation, as recorded in the call journal.
//
// Replaying the same ordered list of calls against an empty store always
// yields byte-identical state.
type Call struct {
	// ID is a unique identifier for journal bookkeeping. Not part of replay.
	ID string `json:"id,omitempty"`

	// Seq is the logical clock value assigned when the call was applied.
	Seq int64 `json:"seq"`

	Kind   CallKind `json:"kind"`
	Caller OwnerID  `json:"caller"`

	// RecordID is set for update and delete.
	RecordID RecordID `json:"record_id,omitzero"`

	// Payload is set for create and update.
	Payload []byte `json:"payload,omitempty"`
}

// Validate checks the call shape, not its effect.
func (c Call) Validate() error {
	if !c.Kind.Valid() {
		return fmt.Errorf("unknown call kind %q", c.Kind)
	}
	if c.Kind != CallCreate && c.RecordID.IsZero() {
		return fmt.Errorf("%s call requires a record id", c.Kind)
	}
	return nil
}

// Canonical returns the replay-relevant fields as a canonical-JSON-ready
// object. ID is excluded: it is bookkeeping, not logical identity.
func (c Call) Canonical() map[string]any {
	obj := map[string]any{
		"seq":    c.Seq,
		"kind":   string(c.Kind),
		"caller": string(c.Caller),
	}
	if !c.RecordID.IsZero() {
		obj["record_id"] = c.RecordID.String()
	}
	if c.Kind != CallDelete {
		obj["payload"] = hex.EncodeToString(c.Payload)
	}
	return obj
}
