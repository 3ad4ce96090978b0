package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateText(t *testing.T) {
	db := testDB(t)

	out, _, err := execute(t, "create", "--db", db, "--as", "alice", `{"degree":"BSc"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ create "+idOf(`{"degree":"BSc"}`)+" (seq 1)")
	assert.Contains(t, out, "RecordCreated owner=alice")
}

func TestRecordLifecycle(t *testing.T) {
	db := testDB(t)
	id := idOf("p1")

	out, _, err := execute(t, "create", "--db", db, "--as", "alice", "--format", "json", "p1")
	require.NoError(t, err)
	created := decode[CallView](t, out)
	assert.Equal(t, "ok", created.Status)
	assert.Equal(t, id, created.Data.RecordID)
	assert.Equal(t, int64(1), created.Data.Seq)
	assert.NotEmpty(t, created.Data.CallID)
	require.Len(t, created.Data.Events, 1)
	assert.Equal(t, "RecordCreated", created.Data.Events[0].Kind)
	assert.Equal(t, int64(1), created.Data.Events[0].Seq)

	// Same content again is a duplicate, even for another caller.
	out, _, err = execute(t, "create", "--db", db, "--as", "bob", "--format", "json", "p1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	dup := decode[CallView](t, out)
	assert.Equal(t, "error", dup.Status)
	assert.Equal(t, "DUPLICATE_RECORD", dup.Error.Code)

	out, _, err = execute(t, "update", "--db", db, "--as", "bob", "--format", "json", id, "stolen")
	require.Error(t, err)
	assert.Equal(t, "NOT_OWNER", decode[CallView](t, out).Error.Code)

	_, _, err = execute(t, "update", "--db", db, "--as", "alice", id, "p2")
	require.NoError(t, err)

	out, _, err = execute(t, "get", "--db", db, "--format", "json", id)
	require.NoError(t, err)
	rec := decode[RecordView](t, out)
	assert.Equal(t, "p2", rec.Data.Payload)
	assert.Equal(t, "7032", rec.Data.PayloadHex)
	assert.Equal(t, "alice", rec.Data.Owner)

	out, _, err = execute(t, "list", "--db", db, "--format", "json", "alice")
	require.NoError(t, err)
	list := decode[ListResult](t, out)
	assert.Equal(t, 1, list.Data.Count)
	assert.Equal(t, id, list.Data.Records[0].RecordID)

	out, _, err = execute(t, "owner", "--db", db, id)
	require.NoError(t, err)
	assert.Equal(t, "alice\n", out)

	out, _, err = execute(t, "delete", "--db", db, "--as", "alice", "--format", "json", id)
	require.NoError(t, err)
	deleted := decode[CallView](t, out)
	assert.Equal(t, int64(5), deleted.Data.Seq, "rejected calls consume seqs too")

	out, _, err = execute(t, "exists", "--db", db, id)
	require.NoError(t, err)
	assert.Equal(t, "false\n", out)

	out, _, err = execute(t, "owner", "--db", db, "--format", "json", id)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, ErrCodeNotFound, decode[OwnerResult](t, out).Error.Code)
}

func TestDeleteUnknownRecord(t *testing.T) {
	out, _, err := execute(t, "delete", "--db", testDB(t), "--as", "alice", idOf("ghost"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [RECORD_NOT_FOUND]")
}

func TestCreatePayloadTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.bin")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 4097)), 0o644))

	out, _, err := execute(t, "create", "--db", testDB(t), "--as", "alice", "--file", path)
	require.Error(t, err)
	assert.Contains(t, out, "PAYLOAD_TOO_LARGE")
}

func TestCreateHexPayload(t *testing.T) {
	db := testDB(t)
	_, _, err := execute(t, "create", "--db", db, "--as", "alice", "--hex", "7031")
	require.NoError(t, err)

	out, _, err := execute(t, "exists", "--db", db, idOf("p1"))
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)
}

func TestCreateArgumentErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing payload", []string{"create", "--as", "alice"}},
		{"bad hex", []string{"create", "--as", "alice", "--hex", "zz"}},
		{"arg and file", []string{"create", "--as", "alice", "--file", "x", "p"}},
		{"bad record id", []string{"delete", "--as", "alice", "not-hex"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append(tt.args, "--db", testDB(t))
			out, _, err := execute(t, args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error [E_ARGS]")
		})
	}
}

func TestCreateRequiresCaller(t *testing.T) {
	_, _, err := execute(t, "create", "--db", testDB(t), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "as" not set`)
}

func TestCreateInvalidOwner(t *testing.T) {
	// e followed by a combining acute is not NFC.
	out, _, err := execute(t, "create", "--db", testDB(t), "--as", "e\u0301", "p")
	require.Error(t, err)
	assert.Contains(t, out, "INVALID_OWNER")
}

func TestSeqResumesAcrossProcesses(t *testing.T) {
	db := testDB(t)
	for i, p := range []string{"a", "b", "c"} {
		out, _, err := execute(t, "create", "--db", db, "--as", "alice", "--format", "json", p)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), decode[CallView](t, out).Data.Seq)
	}
}
