package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	scenarioDir = "../harness/testdata/scenarios"
	goldenDir   = "../harness/testdata/golden"
)

const failingScenario = `name: wrong
flow:
  - op: create
    as: alice
    payload: p
    expect: DUPLICATE_RECORD
`

func TestTestCommandPasses(t *testing.T) {
	out, _, err := execute(t, "test", scenarioDir, "--golden-dir", goldenDir, "--format", "json")
	require.NoError(t, err)

	resp := decode[TestResult](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Failed)
	assert.Equal(t, resp.Data.Total, resp.Data.Passed)
	assert.GreaterOrEqual(t, resp.Data.Total, 4)

	golden := make(map[string]string)
	for _, s := range resp.Data.Scenarios {
		golden[s.Name] = s.Golden
		assert.Len(t, s.Digest, 64, s.Name)
	}
	assert.Equal(t, "match", golden["lifecycle"])
	assert.Equal(t, "none", golden["capacity"])
}

func TestTestCommandFilter(t *testing.T) {
	out, _, err := execute(t, "test", scenarioDir, "--golden-dir", goldenDir, "--filter", "life*")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ lifecycle")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandUpdateWritesGolden(t *testing.T) {
	dir := t.TempDir()
	out, _, err := execute(t, "test", scenarioDir, "--golden-dir", dir, "--filter", "lifecycle", "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ lifecycle (golden updated)")

	got, err := os.ReadFile(filepath.Join(dir, "lifecycle.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join(goldenDir, "lifecycle.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(failingScenario), 0o644))

	out, _, err := execute(t, "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decode[TestResult](t, out)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.False(t, resp.Data.Scenarios[0].Pass)
	assert.NotEmpty(t, resp.Data.Scenarios[0].Errors)
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	src, err := os.ReadFile(filepath.Join(scenarioDir, "lifecycle.yaml"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lifecycle.yaml"), src, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "lifecycle.golden"), []byte("{}\n"), 0o644))

	out, _, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ lifecycle")
	assert.Contains(t, out, "does not match golden file")
}

func TestTestCommandMissingDir(t *testing.T) {
	_, _, err := execute(t, "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyDir(t *testing.T) {
	out, _, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}
