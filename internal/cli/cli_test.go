package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// fastConfig keeps sessions short enough for command tests.
const fastConfig = `test:
  sample_interval: 5ms
  upload_tick: 1ms
  reset_delay: 20ms
  ping_timeout: 2s
  download_timeout: 5s
log:
  level: error
`

// testFiles writes a config file for the test and returns the --config and
// --env-file arguments pointing at it.
func testFiles(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gauge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fastConfig), 0o644))
	return []string{"--config", path, "--env-file", filepath.Join(dir, "missing.env")}
}

// resetFlags returns every flag to its default so commands can be executed
// repeatedly in one process.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// setContext gives every command ctx. Cobra keeps a subcommand's context
// across executions, so ExecuteContext alone does not reach it twice.
func setContext(cmd *cobra.Command, ctx context.Context) {
	cmd.SetContext(ctx)
	for _, sub := range cmd.Commands() {
		setContext(sub, ctx)
	}
}

// syncBuffer is a bytes.Buffer safe to read while a command writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// prepareCommand resets the command tree and points its output at stdout,
// returning the buffer. Stderr is discarded into a separate buffer.
func prepareCommand(t *testing.T, args ...string) *syncBuffer {
	t.Helper()
	resetFlags(rootCmd)
	setContext(rootCmd, context.Background())

	out := &syncBuffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(&syncBuffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	return out
}

// executeCommand runs the root command with args and returns what it wrote
// to stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := prepareCommand(t, args...)
	err := rootCmd.Execute()
	return out.String(), err
}
