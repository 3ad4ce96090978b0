package cli

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/soulbound/internal/ir"
)

// response decodes a JSON CLIResponse with a typed payload.
type response[T any] struct {
	Status string    `json:"status"`
	Data   T         `json:"data"`
	Error  *CLIError `json:"error"`
}

// execute runs the root command with args and returns stdout and stderr.
// Config discovery is pointed at empty directories so the developer's own
// soulbound.yaml never leaks into tests.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// decode parses stdout of a --format json run.
func decode[T any](t *testing.T, stdout string) response[T] {
	t.Helper()
	var resp response[T]
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp), "stdout: %s", stdout)
	return resp
}

func testDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "soulbound.db")
}

func idOf(payload string) string {
	return ir.Blake2b256{}.Sum([]byte(payload)).String()
}

// hexPayloadID returns the default record id of a hex encoded payload.
func hexPayloadID(t *testing.T, payloadHex string) string {
	t.Helper()
	raw, err := hex.DecodeString(payloadHex)
	require.NoError(t, err)
	return ir.Blake2b256{}.Sum(raw).String()
}

func indexOf(s, sub string) int {
	return strings.Index(s, sub)
}

// seedLifecycle applies five calls to db, two of them rejected, and
// returns the id of the record they touch.
func seedLifecycle(t *testing.T, db string) string {
	t.Helper()
	id := idOf("p1")
	calls := [][]string{
		{"create", "--as", "alice", "p1"},
		{"create", "--as", "bob", "p1"},
		{"update", "--as", "bob", id, "stolen"},
		{"update", "--as", "alice", id, "p2"},
		{"delete", "--as", "alice", id},
	}
	for _, args := range calls {
		// Rejections are expected here; they are journaled all the same.
		_, _, _ = execute(t, append(args, "--db", db)...)
	}
	return id
}
