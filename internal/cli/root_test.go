package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/gauge/internal/config"
)

func TestRootCommand_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"run", "serve", "watch"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	flags := rootCmd.PersistentFlags()

	configFlag := flags.Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, config.DefaultConfigPath, configFlag.DefValue)

	envFlag := flags.Lookup("env-file")
	require.NotNil(t, envFlag)
	assert.Equal(t, ".env", envFlag.DefValue)

	assert.NotNil(t, flags.Lookup("log-level"))
}

func TestRootCommand_Version(t *testing.T) {
	out, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "gauge version "+Version+"\n", out)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gauge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gauge:\n  max_mbps: -1\n"), 0o644))

	_, err := executeCommand(t, "run", "--config", path, "--env-file", filepath.Join(dir, "none.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
	assert.Contains(t, err.Error(), "gauge.max_mbps")
}

func TestLoadConfig_BadLogLevel(t *testing.T) {
	args := append([]string{"run", "--log-level", "loud"}, testFiles(t)...)
	_, err := executeCommand(t, args...)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), `unknown log level "loud"`))
}
