package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/gauge/internal/config"
	"github.com/thruflo/gauge/internal/speedtest"
	"github.com/thruflo/gauge/internal/testutil"
)

func TestServeCommand_Flags(t *testing.T) {
	flags := serveCmd.Flags()

	port := flags.Lookup("port")
	require.NotNil(t, port)
	assert.Equal(t, "p", port.Shorthand)
	assert.Equal(t, "8080", port.DefValue)

	payload := flags.Lookup("payload-bytes")
	require.NotNil(t, payload)
	assert.Equal(t, "10000000", payload.DefValue)

	self := flags.Lookup("self")
	require.NotNil(t, self)
	assert.Equal(t, "true", self.DefValue)
}

func TestDisplayURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8080", displayURL("[::]:8080"))
	assert.Equal(t, "http://localhost:9000", displayURL("127.0.0.1:9000"))
	assert.Equal(t, "http://bogus", displayURL("bogus"))
}

func TestServeCommand_ServesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := prepareCommand(t, append([]string{"serve", "--port", "0", "--payload-bytes", "1000"}, testFiles(t)...)...)
	setContext(rootCmd, ctx)
	done := make(chan error, 1)
	go func() {
		done <- rootCmd.Execute()
	}()

	var baseURL string
	testutil.Eventually(t, 5*time.Second, func() bool {
		line, ok := strings.CutPrefix(strings.TrimSpace(out.String()), "gauge serving on ")
		baseURL = line
		return ok
	}, "server did not report its address")

	resp, err := http.Get(baseURL + "/session")
	require.NoError(t, err)
	var session speedtest.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	resp.Body.Close()
	assert.Equal(t, speedtest.StateIdle, session.State)

	resp, err = http.Get(baseURL + "/payload")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int64(1000), resp.ContentLength)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestServeCommand_InvalidPort(t *testing.T) {
	args := append([]string{"serve", "--port", "70000"}, testFiles(t)...)
	_, err := executeCommand(t, args...)
	require.Error(t, err)
	var ve config.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "server.port", ve.Field)
}
