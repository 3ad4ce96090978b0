package credential

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/soulbound/internal/ir"
	"github.com/roach88/soulbound/internal/kv"
	"github.com/roach88/soulbound/internal/kv/memory"
	"github.com/roach88/soulbound/internal/store"
	"github.com/roach88/soulbound/internal/testutil"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *memory.Backend, *Collector) {
	t.Helper()
	b := memory.New()
	t.Cleanup(func() { b.Close() })
	events := &Collector{}
	opts = append([]Option{WithEventSink(events)}, opts...)
	return New(b, opts...), b, events
}

func digest(t *testing.T, b kv.Backend) string {
	t.Helper()
	snap, err := b.Snapshot(context.Background())
	require.NoError(t, err)
	require.NoError(t, snap.CheckConsistency())
	d, err := snap.Digest()
	require.NoError(t, err)
	return d
}

func TestCreateReturnsContentHash(t *testing.T) {
	ctx := context.Background()
	svc, _, events := newTestService(t)

	payload := []byte(`{"x":1}`)
	id, err := svc.Create(ctx, "alice", payload)
	require.NoError(t, err)
	assert.Equal(t, ir.Blake2b256{}.Sum(payload), id)

	rec, ok, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.OwnerID("alice"), rec.Owner)
	assert.Equal(t, payload, rec.Payload)

	assert.Equal(t, []ir.Event{{Kind: ir.EventRecordCreated, RecordID: id, Owner: "alice"}}, events.Events())
}

func TestCreateWithSHA256Hasher(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, WithHasher(ir.DomainSHA256{Domain: ir.DomainRecord}))

	id, err := svc.Create(ctx, "alice", []byte("p"))
	require.NoError(t, err)
	assert.Equal(t, ir.DomainSHA256{Domain: ir.DomainRecord}.Sum([]byte("p")), id)
	assert.Equal(t, ir.HashSHA256, svc.Hasher().Name())
}

func TestCreateDuplicateAnyCaller(t *testing.T) {
	ctx := context.Background()
	svc, b, events := newTestService(t)

	_, err := svc.Create(ctx, "alice", []byte("same"))
	require.NoError(t, err)
	before := digest(t, b)

	for _, caller := range []ir.OwnerID{"alice", "bob"} {
		_, err := svc.Create(ctx, caller, []byte("same"))
		assert.True(t, errors.Is(err, ir.ErrDuplicateRecord), "caller %s: %v", caller, err)
	}
	assert.Equal(t, before, digest(t, b))
	assert.Len(t, events.Events(), 1)
}

func TestCreateSizeBoundary(t *testing.T) {
	ctx := context.Background()
	svc, b, _ := newTestService(t)

	_, err := svc.Create(ctx, "alice", testutil.Payload("a", ir.MaxPayloadBytes))
	require.NoError(t, err)

	before := digest(t, b)
	_, err = svc.Create(ctx, "alice", testutil.Payload("b", ir.MaxPayloadBytes+1))
	assert.Equal(t, ir.CodePayloadTooLarge, ir.CodeOf(err))
	assert.Equal(t, before, digest(t, b))
}

func TestCreateEmptyPayload(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	id, err := svc.Create(ctx, "alice", nil)
	require.NoError(t, err)
	ok, err := svc.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreateCapacityBoundary(t *testing.T) {
	ctx := context.Background()
	svc, b, _ := newTestService(t)

	for i := 0; i < ir.MaxRecordsPerOwner; i++ {
		_, err := svc.Create(ctx, "alice", []byte(fmt.Sprintf("credential-%d", i)))
		require.NoError(t, err)
	}
	before := digest(t, b)

	overflow := []byte("credential-overflow")
	_, err := svc.Create(ctx, "alice", overflow)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ir.ErrCapacityExceeded))

	n, err := svc.CountByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, ir.MaxRecordsPerOwner, n)

	exists, err := svc.Exists(ctx, ir.Blake2b256{}.Sum(overflow))
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, before, digest(t, b))

	// Another owner still has room.
	_, err = svc.Create(ctx, "bob", overflow)
	assert.NoError(t, err)
}

func TestCreateInvalidCaller(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.Create(ctx, "", []byte("x"))
	assert.True(t, errors.Is(err, ir.ErrInvalidOwner))
}

func TestUpdateKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	svc, _, events := newTestService(t)

	id, err := svc.Create(ctx, "alice", []byte(`{"x":1}`))
	require.NoError(t, err)

	require.NoError(t, svc.Update(ctx, "alice", id, []byte(`{"x":2}`)))

	rec, ok, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"x":2}`, string(rec.Payload))
	assert.NotEqual(t, ir.Blake2b256{}.Sum(rec.Payload), id, "update must not recompute the id")

	got := events.Events()
	require.Len(t, got, 2)
	assert.Equal(t, ir.Event{Kind: ir.EventRecordUpdated, RecordID: id, Owner: "alice"}, got[1])
}

func TestUpdateAllowsContentDrift(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	a, err := svc.Create(ctx, "alice", []byte("a"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, "alice", []byte("b"))
	require.NoError(t, err)

	// Two records may carry the same payload after update.
	assert.NoError(t, svc.Update(ctx, "alice", a, []byte("b")))

	// Re-creating the original content still collides: the id stays occupied.
	_, err = svc.Create(ctx, "alice", []byte("a"))
	assert.True(t, errors.Is(err, ir.ErrDuplicateRecord), "id a is still occupied")
}

func TestUpdateErrors(t *testing.T) {
	ctx := context.Background()
	svc, b, _ := newTestService(t)

	id, err := svc.Create(ctx, "alice", []byte("p"))
	require.NoError(t, err)
	before := digest(t, b)

	tests := []struct {
		name    string
		caller  ir.OwnerID
		id      ir.RecordID
		payload []byte
		code    ir.ErrorCode
	}{
		{"not found", "alice", ir.Blake2b256{}.Sum([]byte("missing")), []byte("x"), ir.CodeRecordNotFound},
		{"not owner", "bob", id, []byte("x"), ir.CodeNotOwner},
		{"not owner beats size", "bob", id, bytes.Repeat([]byte{1}, ir.MaxPayloadBytes+1), ir.CodeNotOwner},
		{"too large", "alice", id, bytes.Repeat([]byte{1}, ir.MaxPayloadBytes+1), ir.CodePayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Update(ctx, tt.caller, tt.id, tt.payload)
			assert.Equal(t, tt.code, ir.CodeOf(err))
			assert.Equal(t, before, digest(t, b))
		})
	}
}

func TestDeleteErrors(t *testing.T) {
	ctx := context.Background()
	svc, b, events := newTestService(t)

	id, err := svc.Create(ctx, "alice", []byte("p"))
	require.NoError(t, err)
	before := digest(t, b)

	err = svc.Delete(ctx, "bob", id)
	assert.True(t, errors.Is(err, ir.ErrNotOwner))

	err = svc.Delete(ctx, "alice", ir.Blake2b256{}.Sum([]byte("missing")))
	assert.True(t, errors.Is(err, ir.ErrRecordNotFound))

	assert.Equal(t, before, digest(t, b))
	assert.Len(t, events.Events(), 1)
}

func TestRecreateAfterDelete(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	id, err := svc.Create(ctx, "alice", []byte("p"))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "alice", id))

	// Identical content yields the same id, for any caller.
	again, err := svc.Create(ctx, "bob", []byte("p"))
	require.NoError(t, err)
	assert.Equal(t, id, again)

	owner, ok, err := svc.OwnerOf(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ir.OwnerID("bob"), owner)
}

// TestLifecycleScenario walks the canonical create/duplicate/update/
// not-owner/delete sequence.
func TestLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	svc, b, events := newTestService(t)

	h1, err := svc.Create(ctx, "A", []byte(`{"x":1}`))
	require.NoError(t, err)

	_, err = svc.Create(ctx, "A", []byte(`{"x":1}`))
	assert.Equal(t, ir.CodeDuplicateRecord, ir.CodeOf(err))

	require.NoError(t, svc.Update(ctx, "A", h1, []byte(`{"x":2}`)))
	rec, _, err := svc.Get(ctx, h1)
	require.NoError(t, err)
	assert.Equal(t, `{"x":2}`, string(rec.Payload))

	assert.Equal(t, ir.CodeNotOwner, ir.CodeOf(svc.Delete(ctx, "B", h1)))
	require.NoError(t, svc.Delete(ctx, "A", h1))

	exists, err := svc.Exists(ctx, h1)
	require.NoError(t, err)
	assert.False(t, exists)

	list, err := svc.ListByOwner(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, ok, err := svc.OwnerOf(ctx, h1)
	require.NoError(t, err)
	assert.False(t, ok)

	kinds := []ir.EventKind{}
	for _, ev := range events.Events() {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []ir.EventKind{ir.EventRecordCreated, ir.EventRecordUpdated, ir.EventRecordDeleted}, kinds)
	digest(t, b)
}

func TestListByOwnerOrderAndSkip(t *testing.T) {
	ctx := context.Background()
	svc, b, _ := newTestService(t)

	var want []ir.RecordID
	for _, p := range []string{"z", "a", "m"} {
		id, err := svc.Create(ctx, "alice", []byte(p))
		require.NoError(t, err)
		want = append(want, id)
	}

	// Plant an index entry with no record behind it.
	dangling := ir.Blake2b256{}.Sum([]byte("dangling"))
	require.NoError(t, b.Update(ctx, func(tx kv.Tx) error {
		return tx.Index().TryAppend(ctx, "alice", dangling)
	}))

	list, err := svc.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	var got []ir.RecordID
	for _, rec := range list {
		got = append(got, rec.ID)
	}
	assert.Equal(t, want, got)

	empty, err := svc.ListByOwner(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

// failingIndexBackend fails every TryAppend after the record Put went through.
type failingIndexBackend struct {
	*memory.Backend
}

var errIndexDown = errors.New("index unavailable")

func (f failingIndexBackend) Update(ctx context.Context, fn func(kv.Tx) error) error {
	return f.Backend.Update(ctx, func(tx kv.Tx) error {
		return fn(failingTx{tx})
	})
}

type failingTx struct{ kv.Tx }

func (f failingTx) Index() kv.OwnerIndex { return failingIndex{f.Tx.Index()} }

type failingIndex struct{ kv.OwnerIndex }

func (failingIndex) TryAppend(context.Context, ir.OwnerID, ir.RecordID) error { return errIndexDown }

func TestCreateRollsBackRecordWhenIndexFails(t *testing.T) {
	ctx := context.Background()
	b := failingIndexBackend{memory.New()}
	events := &Collector{}
	svc := New(b, WithEventSink(events))

	before := digest(t, b)
	_, err := svc.Create(ctx, "alice", []byte("p"))
	require.ErrorIs(t, err, errIndexDown)

	assert.Equal(t, before, digest(t, b))
	exists, err := svc.Exists(ctx, ir.Blake2b256{}.Sum([]byte("p")))
	require.NoError(t, err)
	assert.False(t, exists, "record must not be orphaned")
	assert.Empty(t, events.Events())
}

func TestPrecommitFailureRollsBackMutation(t *testing.T) {
	ctx := context.Background()
	hookErr := errors.New("journal full")
	fail := false
	svc, b, events := newTestService(t, WithPrecommit(func(context.Context, kv.Tx) error {
		if fail {
			return hookErr
		}
		return nil
	}))

	id, err := svc.Create(ctx, "alice", []byte("p"))
	require.NoError(t, err)
	before := digest(t, b)

	fail = true
	_, err = svc.Create(ctx, "alice", []byte("q"))
	require.ErrorIs(t, err, hookErr)
	require.ErrorIs(t, svc.Update(ctx, "alice", id, []byte("p2")), hookErr)
	require.ErrorIs(t, svc.Delete(ctx, "alice", id), hookErr)

	assert.Equal(t, before, digest(t, b))
	assert.Len(t, events.Events(), 1, "rolled back mutations emit nothing")
}

func TestPrecommitSkippedOnRejection(t *testing.T) {
	ctx := context.Background()
	calls := 0
	svc, _, _ := newTestService(t, WithPrecommit(func(context.Context, kv.Tx) error {
		calls++
		return nil
	}))

	_, err := svc.Create(ctx, "alice", []byte("p"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, "bob", []byte("p"))
	require.True(t, ir.IsCode(err, ir.CodeDuplicateRecord))
	assert.Equal(t, 1, calls)
}

func TestSinkFailureDoesNotFailCall(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	svc := New(b, WithEventSink(SinkFunc(func(context.Context, ir.Event) error {
		return errors.New("sink down")
	})))

	id, err := svc.Create(ctx, "alice", []byte("p"))
	require.NoError(t, err)
	ok, err := svc.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestServiceOnSQLite runs the lifecycle against the durable backend with
// the outbox as sink.
func TestServiceOnSQLite(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	svc := New(s, WithEventSink(s.Outbox()))
	id, err := svc.Create(ctx, "alice", []byte("p"))
	require.NoError(t, err)
	require.NoError(t, svc.Update(ctx, "alice", id, []byte("q")))
	assert.Equal(t, ir.CodeNotOwner, ir.CodeOf(svc.Delete(ctx, "bob", id)))
	require.NoError(t, svc.Delete(ctx, "alice", id))

	evs, err := s.ReadEvents(ctx, id)
	require.NoError(t, err)
	assert.Len(t, evs, 3)
	digest(t, s)
}
