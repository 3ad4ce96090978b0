// Package kv defines the key-value state store contract behind the
// credential service.
//
// The contract exposes two logical maps:
//   - RecordStore: record id -> (owner, payload), a dumb exact map
//   - OwnerIndex: owner -> ordered record ids, capped at ir.MaxRecordsPerOwner
//
// Both maps are only reachable through a Tx. Backend.Update runs a
// function against a Tx and commits every write it made, or none of them.
// Implementations live in kv/memory (tests, replay) and store (SQLite,
// Postgres).
package kv
