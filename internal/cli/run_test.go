package cli

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/gauge/internal/speedtest"
	"github.com/thruflo/gauge/internal/testutil"
)

func TestRunCommand_Flags(t *testing.T) {
	flags := runCmd.Flags()
	for _, name := range []string{"ping-url", "payload-url", "gauge-max", "json", "bell"} {
		assert.NotNil(t, flags.Lookup(name), "missing --%s", name)
	}
	assert.Equal(t, "false", flags.Lookup("json").DefValue)

	assert.Error(t, runCmd.Args(runCmd, []string{"extra"}))
}

func TestRunCommand_JSON(t *testing.T) {
	fixture := testutil.NewSpeedServer(t, testutil.SpeedServerOptions{})

	args := append([]string{"run", "--json",
		"--ping-url", fixture.PingURL(),
		"--payload-url", fixture.PayloadURL(),
	}, testFiles(t)...)
	out, err := executeCommand(t, args...)
	require.NoError(t, err)

	var session speedtest.Session
	require.NoError(t, json.Unmarshal([]byte(out), &session))
	assert.Equal(t, speedtest.StateCompleted, session.State)
	assert.NotEmpty(t, session.ID)
	assert.False(t, session.PingFallback)
	assert.Greater(t, session.DownloadMbps, 0.0)
	assert.True(t, session.UploadSimulated)
	assert.Equal(t, 1, fixture.Payloads())
}

func TestRunCommand_PlainOutput(t *testing.T) {
	fixture := testutil.NewSpeedServer(t, testutil.SpeedServerOptions{})

	args := append([]string{"run",
		"--ping-url", fixture.PingURL(),
		"--payload-url", fixture.PayloadURL(),
	}, testFiles(t)...)
	out, err := executeCommand(t, args...)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 5)
	assert.Equal(t, []string{
		"phase: pinging",
		"phase: downloading",
		"phase: uploading",
	}, lines[:3])
	assert.Contains(t, out, "phase: completed")
	assert.Contains(t, out, "result: ping ")
	assert.Contains(t, out, "upload")
}

func TestRunCommand_InvalidOverride(t *testing.T) {
	args := append([]string{"run", "--gauge-max", "0"}, testFiles(t)...)
	_, err := executeCommand(t, args...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gauge.max_mbps")

	args = append([]string{"run", "--payload-url", "ftp://example.com/file"}, testFiles(t)...)
	_, err = executeCommand(t, args...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test.payload_url")
}

func TestRunCommand_Cancelled(t *testing.T) {
	fixture := testutil.NewSpeedServer(t, testutil.SpeedServerOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := prepareCommand(t, append([]string{"run", "--json",
		"--ping-url", fixture.PingURL(),
		"--payload-url", fixture.PayloadURL(),
	}, testFiles(t)...)...)
	setContext(rootCmd, ctx)
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "speed test failed")

	var session speedtest.Session
	require.NoError(t, json.Unmarshal([]byte(out.String()), &session))
	assert.Equal(t, speedtest.StateFailed, session.State)
	assert.NotEmpty(t, session.Error)
}
