package kv

import (
	"context"

	"github.com/roach88/soulbound/internal/ir"
)

// RecordStore is the primary map. It performs no business validation.
type RecordStore interface {
	Exists(ctx context.Context, id ir.RecordID) (bool, error)

	// Get returns the record and true, or the zero record and false.
	Get(ctx context.Context, id ir.RecordID) (ir.Record, bool, error)

	// Put inserts or overwrites unconditionally.
	Put(ctx context.Context, rec ir.Record) error

	// Remove deletes the record. No-op if absent.
	Remove(ctx context.Context, id ir.RecordID) error
}

// OwnerIndex maps an owner to the ids it holds, in creation order.
type OwnerIndex interface {
	// List returns the owner's ids in append order. Empty if unknown.
	List(ctx context.Context, owner ir.OwnerID) ([]ir.RecordID, error)

	// TryAppend appends id to the owner's list. It returns an
	// ir.CodeCapacityExceeded error, and writes nothing, when the list
	// already holds ir.MaxRecordsPerOwner entries.
	TryAppend(ctx context.Context, owner ir.OwnerID, id ir.RecordID) error

	// Remove deletes the first matching entry. No-op if absent.
	Remove(ctx context.Context, owner ir.OwnerID, id ir.RecordID) error
}

// Tx scopes access to both maps.
type Tx interface {
	Records() RecordStore
	Index() OwnerIndex
}

// Backend is a state store holding one RecordStore and one OwnerIndex.
type Backend interface {
	// View runs fn against a read-only view. Writes through the Tx are
	// not permitted and implementations may reject them.
	View(ctx context.Context, fn func(Tx) error) error

	// Update runs fn and commits all of its writes if fn returns nil.
	// If fn returns an error, every write it made is discarded and the
	// error is returned unchanged.
	Update(ctx context.Context, fn func(Tx) error) error

	// Snapshot returns the full state in canonical order.
	Snapshot(ctx context.Context) (*Snapshot, error)

	Close() error
}

// Name identifies a backend kind in configuration and logs.
type Name string

const (
	BackendMemory   Name = "memory"
	BackendSQLite   Name = "sqlite"
	BackendPostgres Name = "postgres"
)
