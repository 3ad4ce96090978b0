package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/soulbound/internal/ir"
)

func TestOutboxEmitAndRead(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	out := s.Outbox()

	id := ir.Blake2b256{}.Sum([]byte("a"))
	other := ir.Blake2b256{}.Sum([]byte("b"))
	require.NoError(t, out.Emit(ctx, ir.Event{Kind: ir.EventRecordCreated, RecordID: id, Owner: "alice", Seq: 1}))
	require.NoError(t, out.Emit(ctx, ir.Event{Kind: ir.EventRecordCreated, RecordID: other, Owner: "bob", Seq: 2}))
	require.NoError(t, out.Emit(ctx, ir.Event{Kind: ir.EventRecordUpdated, RecordID: id, Owner: "alice", Seq: 3}))
	require.NoError(t, out.Emit(ctx, ir.Event{Kind: ir.EventRecordDeleted, RecordID: id, Owner: "alice", Seq: 4}))

	events, err := s.ReadEvents(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []ir.EventKind{ir.EventRecordCreated, ir.EventRecordUpdated, ir.EventRecordDeleted},
		[]ir.EventKind{events[0].Kind, events[1].Kind, events[2].Kind})
	assert.Equal(t, int64(4), events[2].Seq)
}

func TestReadEventsUnknownRecord(t *testing.T) {
	s := createTestStore(t)

	events, err := s.ReadEvents(context.Background(), ir.Blake2b256{}.Sum([]byte("none")))
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}
