package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := NewRootCommand()

	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{
		"create", "update", "delete", "list", "exists", "owner", "get",
		"run", "replay", "trace", "export", "test", "validate",
	} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestRootCommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"verbose", "format", "config"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing --%s", name)
	}
	assert.Equal(t, "v", cmd.PersistentFlags().Lookup("verbose").Shorthand)
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("format").DefValue)
}

func TestBackendFlagsOnStoreCommands(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"create", "list", "replay", "trace", "export", "run"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.NotNil(t, sub.Flags().Lookup("db"), "%s missing --db", name)
		assert.NotNil(t, sub.Flags().Lookup("backend"), "%s missing --backend", name)
	}

	sub, _, err := cmd.Find([]string{"validate"})
	require.NoError(t, err)
	assert.Nil(t, sub.Flags().Lookup("db"))
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "list", "alice", "--format", "yaml", "--backend", "memory")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestUnknownBackend(t *testing.T) {
	out, _, err := execute(t, "list", "alice", "--backend", "etcd", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeConfig, decode[ListResult](t, out).Error.Code)
}

func TestMissingConfigFile(t *testing.T) {
	out, _, err := execute(t, "list", "alice", "--config", "/nonexistent/soulbound.yaml")
	require.Error(t, err)
	assert.Contains(t, out, "Error [E_CONFIG]")
}
