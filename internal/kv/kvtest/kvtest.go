// Package kvtest is a conformance suite for kv.Backend implementations.
package kvtest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/soulbound/internal/ir"
	"github.com/roach88/soulbound/internal/kv"
)

// Factory returns a fresh, empty backend. The suite closes it.
type Factory func(t *testing.T) kv.Backend

var errAbort = errors.New("abort")

// RecordFor returns a record whose id is the Blake2b hash of payload.
func RecordFor(owner ir.OwnerID, payload string) ir.Record {
	return ir.Record{
		ID:      ir.Blake2b256{}.Sum([]byte(payload)),
		Owner:   owner,
		Payload: []byte(payload),
	}
}

// RunBackendSuite runs every contract test against backends from newBackend.
func RunBackendSuite(t *testing.T, newBackend Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, b kv.Backend)
	}{
		{"RecordPutGetRemove", testRecordPutGetRemove},
		{"RecordPutOverwrites", testRecordPutOverwrites},
		{"RecordRemoveAbsentIsNoop", testRecordRemoveAbsentIsNoop},
		{"IndexAppendPreservesOrder", testIndexAppendPreservesOrder},
		{"IndexUnknownOwnerIsEmpty", testIndexUnknownOwnerIsEmpty},
		{"IndexRemoveFirstMatch", testIndexRemoveFirstMatch},
		{"IndexCapacity", testIndexCapacity},
		{"UpdateRollsBackBothMaps", testUpdateRollsBackBothMaps},
		{"UpdateRollsBackRemoval", testUpdateRollsBackRemoval},
		{"SnapshotMatchesMemoryDigest", testSnapshotDigestStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend(t)
			t.Cleanup(func() { _ = b.Close() })
			tt.fn(t, b)
		})
	}
}

func put(t *testing.T, b kv.Backend, rec ir.Record) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, b.Update(ctx, func(tx kv.Tx) error {
		if err := tx.Records().Put(ctx, rec); err != nil {
			return err
		}
		return tx.Index().TryAppend(ctx, rec.Owner, rec.ID)
	}))
}

func get(t *testing.T, b kv.Backend, id ir.RecordID) (ir.Record, bool) {
	t.Helper()
	ctx := context.Background()
	var (
		rec ir.Record
		ok  bool
	)
	require.NoError(t, b.View(ctx, func(tx kv.Tx) error {
		var err error
		rec, ok, err = tx.Records().Get(ctx, id)
		return err
	}))
	return rec, ok
}

func list(t *testing.T, b kv.Backend, owner ir.OwnerID) []ir.RecordID {
	t.Helper()
	ctx := context.Background()
	var ids []ir.RecordID
	require.NoError(t, b.View(ctx, func(tx kv.Tx) error {
		var err error
		ids, err = tx.Index().List(ctx, owner)
		return err
	}))
	return ids
}

func digest(t *testing.T, b kv.Backend) string {
	t.Helper()
	snap, err := b.Snapshot(context.Background())
	require.NoError(t, err)
	d, err := snap.Digest()
	require.NoError(t, err)
	return d
}

func testRecordPutGetRemove(t *testing.T, b kv.Backend) {
	ctx := context.Background()
	rec := RecordFor("alice", `{"x":1}`)
	put(t, b, rec)

	got, ok := get(t, b, rec.ID)
	require.True(t, ok)
	assert.Equal(t, rec, got)

	require.NoError(t, b.View(ctx, func(tx kv.Tx) error {
		exists, err := tx.Records().Exists(ctx, rec.ID)
		assert.True(t, exists)
		return err
	}))

	require.NoError(t, b.Update(ctx, func(tx kv.Tx) error {
		return tx.Records().Remove(ctx, rec.ID)
	}))
	_, ok = get(t, b, rec.ID)
	assert.False(t, ok)
}

func testRecordPutOverwrites(t *testing.T, b kv.Backend) {
	ctx := context.Background()
	rec := RecordFor("alice", `{"x":1}`)
	put(t, b, rec)

	rec.Payload = []byte(`{"x":2}`)
	require.NoError(t, b.Update(ctx, func(tx kv.Tx) error {
		return tx.Records().Put(ctx, rec)
	}))

	got, ok := get(t, b, rec.ID)
	require.True(t, ok)
	assert.Equal(t, `{"x":2}`, string(got.Payload))
	assert.Equal(t, []ir.RecordID{rec.ID}, list(t, b, "alice"))
}

func testRecordRemoveAbsentIsNoop(t *testing.T, b kv.Backend) {
	ctx := context.Background()
	before := digest(t, b)
	require.NoError(t, b.Update(ctx, func(tx kv.Tx) error {
		if err := tx.Records().Remove(ctx, RecordFor("a", "missing").ID); err != nil {
			return err
		}
		return tx.Index().Remove(ctx, "a", RecordFor("a", "missing").ID)
	}))
	assert.Equal(t, before, digest(t, b))
}

func testIndexAppendPreservesOrder(t *testing.T, b kv.Backend) {
	var want []ir.RecordID
	for _, p := range []string{"c", "a", "b"} {
		rec := RecordFor("alice", p)
		put(t, b, rec)
		want = append(want, rec.ID)
	}
	assert.Equal(t, want, list(t, b, "alice"))
}

func testIndexUnknownOwnerIsEmpty(t *testing.T, b kv.Backend) {
	assert.Empty(t, list(t, b, "nobody"))
}

func testIndexRemoveFirstMatch(t *testing.T, b kv.Backend) {
	ctx := context.Background()
	r1, r2, r3 := RecordFor("alice", "1"), RecordFor("alice", "2"), RecordFor("alice", "3")
	put(t, b, r1)
	put(t, b, r2)
	put(t, b, r3)

	require.NoError(t, b.Update(ctx, func(tx kv.Tx) error {
		return tx.Index().Remove(ctx, "alice", r2.ID)
	}))
	assert.Equal(t, []ir.RecordID{r1.ID, r3.ID}, list(t, b, "alice"))

	// Appending again goes to the end.
	require.NoError(t, b.Update(ctx, func(tx kv.Tx) error {
		return tx.Index().TryAppend(ctx, "alice", r2.ID)
	}))
	assert.Equal(t, []ir.RecordID{r1.ID, r3.ID, r2.ID}, list(t, b, "alice"))
}

func testIndexCapacity(t *testing.T, b kv.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Update(ctx, func(tx kv.Tx) error {
		for i := 0; i < ir.MaxRecordsPerOwner; i++ {
			if err := tx.Index().TryAppend(ctx, "alice", RecordFor("alice", fmt.Sprint(i)).ID); err != nil {
				return err
			}
		}
		return nil
	}))
	require.Len(t, list(t, b, "alice"), ir.MaxRecordsPerOwner)

	err := b.Update(ctx, func(tx kv.Tx) error {
		return tx.Index().TryAppend(ctx, "alice", RecordFor("alice", "overflow").ID)
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ir.ErrCapacityExceeded))
	assert.Len(t, list(t, b, "alice"), ir.MaxRecordsPerOwner)

	// Other owners are unaffected.
	require.NoError(t, b.Update(ctx, func(tx kv.Tx) error {
		return tx.Index().TryAppend(ctx, "bob", RecordFor("bob", "x").ID)
	}))
}

func testUpdateRollsBackBothMaps(t *testing.T, b kv.Backend) {
	ctx := context.Background()
	put(t, b, RecordFor("alice", "kept"))
	before := digest(t, b)

	rec := RecordFor("alice", "discarded")
	err := b.Update(ctx, func(tx kv.Tx) error {
		if err := tx.Records().Put(ctx, rec); err != nil {
			return err
		}
		if err := tx.Index().TryAppend(ctx, rec.Owner, rec.ID); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	_, ok := get(t, b, rec.ID)
	assert.False(t, ok)
	assert.Len(t, list(t, b, "alice"), 1)
	assert.Equal(t, before, digest(t, b))
}

func testUpdateRollsBackRemoval(t *testing.T, b kv.Backend) {
	ctx := context.Background()
	rec := RecordFor("alice", "victim")
	put(t, b, rec)
	before := digest(t, b)

	err := b.Update(ctx, func(tx kv.Tx) error {
		if err := tx.Records().Remove(ctx, rec.ID); err != nil {
			return err
		}
		if err := tx.Index().Remove(ctx, rec.Owner, rec.ID); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)
	assert.Equal(t, before, digest(t, b))
	assert.Equal(t, []ir.RecordID{rec.ID}, list(t, b, "alice"))
}

// testSnapshotDigestStable pins the digest of a fixed state so every
// backend encodes identical state identically.
func testSnapshotDigestStable(t *testing.T, b kv.Backend) {
	put(t, b, RecordFor("bob", "b1"))
	put(t, b, RecordFor("alice", "a1"))
	put(t, b, RecordFor("alice", "a2"))

	snap, err := b.Snapshot(context.Background())
	require.NoError(t, err)
	require.NoError(t, snap.CheckConsistency())
	assert.Len(t, snap.Records, 3)
	assert.Equal(t, []ir.RecordID{RecordFor("alice", "a1").ID, RecordFor("alice", "a2").ID}, snap.Owner("alice"))

	want := kv.NewSnapshot(
		map[ir.RecordID]ir.Record{
			RecordFor("bob", "b1").ID:   RecordFor("bob", "b1"),
			RecordFor("alice", "a1").ID: RecordFor("alice", "a1"),
			RecordFor("alice", "a2").ID: RecordFor("alice", "a2"),
		},
		map[ir.OwnerID][]ir.RecordID{
			"alice": {RecordFor("alice", "a1").ID, RecordFor("alice", "a2").ID},
			"bob":   {RecordFor("bob", "b1").ID},
		},
	)
	wantDigest, err := want.Digest()
	require.NoError(t, err)
	assert.Equal(t, wantDigest, digest(t, b))
}
