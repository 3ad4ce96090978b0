package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceRecordHistory(t *testing.T) {
	db := testDB(t)
	id := seedLifecycle(t, db)

	out, _, err := execute(t, "trace", "--db", db, "--format", "json", id)
	require.NoError(t, err)

	resp := decode[TraceResult](t, out)
	assert.Equal(t, id, resp.Data.RecordID)
	require.Len(t, resp.Data.Events, 3)

	var kinds []string
	var seqs []int64
	for _, ev := range resp.Data.Events {
		kinds = append(kinds, ev.Kind)
		seqs = append(seqs, ev.Seq)
	}
	assert.Equal(t, []string{"RecordCreated", "RecordUpdated", "RecordDeleted"}, kinds)
	assert.Equal(t, []int64{1, 4, 5}, seqs)
	assert.Equal(t, TraceStats{Created: 1, Updated: 1, Deleted: 1, Live: false}, resp.Data.Stats)
}

func TestTraceRecreatedByAnotherOwner(t *testing.T) {
	db := testDB(t)
	id := seedLifecycle(t, db)
	_, _, err := execute(t, "create", "--db", db, "--as", "bob", "p1")
	require.NoError(t, err)

	out, _, err := execute(t, "trace", "--db", db, id)
	require.NoError(t, err)
	assert.Contains(t, out, "2 created, 1 updated, 1 deleted (live)")
	assert.Contains(t, out, "owner=bob")
}

func TestTraceUnknownRecord(t *testing.T) {
	out, _, err := execute(t, "trace", "--db", testDB(t), idOf("never"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E_NOT_FOUND]")
}
