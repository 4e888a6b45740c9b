package cli

import (
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/gauge/internal/config"
	"github.com/thruflo/gauge/internal/gauge"
	"github.com/thruflo/gauge/internal/logging"
	"github.com/thruflo/gauge/internal/server"
	"github.com/thruflo/gauge/internal/speedtest"
	"github.com/thruflo/gauge/internal/testutil"
)

// gaugeServer starts a gauge server whose sequencer runs with opts.
func gaugeServer(t *testing.T, opts speedtest.Options) *httptest.Server {
	t.Helper()
	logger := logging.New()
	logger.SetOutput(log.New(io.Discard, "", 0))
	opts.Logger = logger

	srv, err := server.NewServer(&server.Config{
		PayloadBytes: 150_000,
		RateLimit:    config.RateLimit{MaxRequests: 100, Window: time.Minute},
		Test:         opts,
		Mapping:      gauge.New(100),
		Logger:       logger,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Hub().Close()
		ts.Close()
		_ = srv.Sequencer().Close()
	})
	return ts
}

func TestWatchCommand_Args(t *testing.T) {
	assert.Equal(t, "watch <url>", watchCmd.Use)
	assert.Error(t, watchCmd.Args(watchCmd, []string{}))
	assert.Error(t, watchCmd.Args(watchCmd, []string{"a", "b"}))
	assert.NoError(t, watchCmd.Args(watchCmd, []string{"http://localhost:8080"}))

	for _, name := range []string{"start", "json", "bell", "reconnect"} {
		assert.NotNil(t, watchCmd.Flags().Lookup(name), "missing --%s", name)
	}
}

func TestWatchCommand_StartJSON(t *testing.T) {
	fixture := testutil.NewSpeedServer(t, testutil.SpeedServerOptions{})
	ts := gaugeServer(t, fixture.Options())

	args := append([]string{"watch", ts.URL, "--start", "--json"}, testFiles(t)...)
	out, err := executeCommand(t, args...)
	require.NoError(t, err)

	var session speedtest.Session
	require.NoError(t, json.Unmarshal([]byte(out), &session))
	assert.Equal(t, speedtest.StateCompleted, session.State)
	assert.Greater(t, session.DownloadMbps, 0.0)
	assert.Equal(t, 1, fixture.Payloads())
}

func TestWatchCommand_PlainOutput(t *testing.T) {
	fixture := testutil.NewSpeedServer(t, testutil.SpeedServerOptions{})
	ts := gaugeServer(t, fixture.Options())

	args := append([]string{"watch", ts.URL, "--start"}, testFiles(t)...)
	out, err := executeCommand(t, args...)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "phase: idle", lines[0], "the current reading is shown first")
	assert.Contains(t, out, "phase: pinging")
	assert.Contains(t, out, "phase: completed")
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], "result: ping "))
}

func TestWatchCommand_SessionFails(t *testing.T) {
	fixture := testutil.NewSpeedServer(t, testutil.SpeedServerOptions{})
	ts := gaugeServer(t, testutil.FastOptions(fixture.PingURL(), "://bad"))

	args := append([]string{"watch", ts.URL, "--start"}, testFiles(t)...)
	out, err := executeCommand(t, args...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "speed test failed")
	assert.Contains(t, out, "phase: failed")
	assert.Contains(t, out, "error: speed test failed")
}

func TestWatchCommand_Unreachable(t *testing.T) {
	url := testutil.UnreachableURL(t, "")

	args := append([]string{"watch", url}, testFiles(t)...)
	_, err := executeCommand(t, args...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to reach gauge server")
}
