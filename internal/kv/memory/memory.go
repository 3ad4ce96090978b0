// Package memory is an in-process kv.Backend backed by Go maps.
//
// Writes inside Update are recorded in an undo journal. When the update
// function fails, the journal is replayed in reverse so both maps return
// to their exact prior contents.
package memory

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/roach88/soulbound/internal/ir"
	"github.com/roach88/soulbound/internal/kv"
)

// ErrReadOnly is returned by writes attempted inside View.
var ErrReadOnly = errors.New("memory: write in read-only view")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("memory: backend closed")

// Backend implements kv.Backend.
type Backend struct {
	mu      sync.RWMutex
	records map[ir.RecordID]ir.Record
	owners  map[ir.OwnerID][]ir.RecordID
	closed  bool
}

var _ kv.Backend = (*Backend)(nil)

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		records: make(map[ir.RecordID]ir.Record),
		owners:  make(map[ir.OwnerID][]ir.RecordID),
	}
}

// View implements kv.Backend.
func (b *Backend) View(ctx context.Context, fn func(kv.Tx) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return fn(&tx{b: b, readOnly: true})
}

// Update implements kv.Backend. A panic in fn rolls back its writes
// before propagating.
func (b *Backend) Update(ctx context.Context, fn func(kv.Tx) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	t := &tx{b: b}
	defer func() {
		if r := recover(); r != nil {
			t.rollback()
			panic(r)
		}
	}()
	if err := fn(t); err != nil {
		t.rollback()
		return err
	}
	return nil
}

// Snapshot implements kv.Backend.
func (b *Backend) Snapshot(ctx context.Context) (*kv.Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	return kv.NewSnapshot(b.records, b.owners), nil
}

// Close implements kv.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// undo restores one prior value.
type undo func()

type tx struct {
	b        *Backend
	readOnly bool
	journal  []undo
}

func (t *tx) Records() kv.RecordStore { return recordStore{t} }
func (t *tx) Index() kv.OwnerIndex    { return ownerIndex{t} }

func (t *tx) rollback() {
	for i := len(t.journal) - 1; i >= 0; i-- {
		t.journal[i]()
	}
	t.journal = nil
}

// saveRecord journals the current value of id before it changes.
func (t *tx) saveRecord(id ir.RecordID) {
	prev, existed := t.b.records[id]
	t.journal = append(t.journal, func() {
		if existed {
			t.b.records[id] = prev
		} else {
			delete(t.b.records, id)
		}
	})
}

// saveOwner journals the current list of owner before it changes.
func (t *tx) saveOwner(owner ir.OwnerID) {
	prev, existed := t.b.owners[owner]
	prev = slices.Clone(prev)
	t.journal = append(t.journal, func() {
		if existed {
			t.b.owners[owner] = prev
		} else {
			delete(t.b.owners, owner)
		}
	})
}

type recordStore struct{ t *tx }

func (r recordStore) Exists(_ context.Context, id ir.RecordID) (bool, error) {
	_, ok := r.t.b.records[id]
	return ok, nil
}

func (r recordStore) Get(_ context.Context, id ir.RecordID) (ir.Record, bool, error) {
	rec, ok := r.t.b.records[id]
	if !ok {
		return ir.Record{}, false, nil
	}
	return rec.Clone(), true, nil
}

func (r recordStore) Put(_ context.Context, rec ir.Record) error {
	if r.t.readOnly {
		return ErrReadOnly
	}
	r.t.saveRecord(rec.ID)
	r.t.b.records[rec.ID] = rec.Clone()
	return nil
}

func (r recordStore) Remove(_ context.Context, id ir.RecordID) error {
	if r.t.readOnly {
		return ErrReadOnly
	}
	if _, ok := r.t.b.records[id]; !ok {
		return nil
	}
	r.t.saveRecord(id)
	delete(r.t.b.records, id)
	return nil
}

type ownerIndex struct{ t *tx }

func (o ownerIndex) List(_ context.Context, owner ir.OwnerID) ([]ir.RecordID, error) {
	return slices.Clone(o.t.b.owners[owner]), nil
}

func (o ownerIndex) TryAppend(_ context.Context, owner ir.OwnerID, id ir.RecordID) error {
	if o.t.readOnly {
		return ErrReadOnly
	}
	ids := o.t.b.owners[owner]
	if len(ids) >= ir.MaxRecordsPerOwner {
		return ir.NewCapacityExceeded(owner)
	}
	o.t.saveOwner(owner)
	o.t.b.owners[owner] = append(slices.Clone(ids), id)
	return nil
}

func (o ownerIndex) Remove(_ context.Context, owner ir.OwnerID, id ir.RecordID) error {
	if o.t.readOnly {
		return ErrReadOnly
	}
	ids := o.t.b.owners[owner]
	i := slices.Index(ids, id)
	if i < 0 {
		return nil
	}
	o.t.saveOwner(owner)
	o.t.b.owners[owner] = slices.Delete(slices.Clone(ids), i, i+1)
	return nil
}
