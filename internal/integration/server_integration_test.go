//go:build integration

package integration

import (
	"context"
	"io"
	"log"
	"net"
	"net/http"
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
	"github.com/thruflo/gauge/internal/stream"
	"github.com/thruflo/gauge/internal/testutil"
)

// startServer runs a server on a free loopback port that measures against
// itself, and returns its base URL.
func startServer(t *testing.T) (*server.Server, string) {
	t.Helper()
	logger := logging.New()
	logger.SetOutput(log.New(io.Discard, "", 0))

	srv, err := server.NewServer(&server.Config{
		Port:         0,
		PayloadBytes: 2_000_000,
		RateLimit:    config.RateLimit{MaxRequests: 100, Window: time.Minute},
		Test:         testutil.FastOptions("", ""),
		Mapping:      gauge.New(1000),
		Logger:       logger,
	})
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
	})

	_, port, err := net.SplitHostPort(srv.ListenAddr())
	require.NoError(t, err)
	return srv, "http://127.0.0.1:" + port
}

func TestServerMeasuresAgainstItself(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	_, baseURL := startServer(t)
	ctx, cancel := testutil.SessionContext(t)
	defer cancel()

	client := stream.NewClient(baseURL)
	reading, err := client.Reading(ctx)
	require.NoError(t, err)

	events, _ := client.Subscribe(ctx, reading.Seq+1)
	ack, err := client.StartTest(ctx)
	require.NoError(t, err)
	require.Equal(t, stream.AckStatusAccepted, ack.Status)

	var samples int
	session, err := stream.AwaitOutcome(ctx, events, func(e *stream.Event) {
		if e.Type == stream.MessageTypeSample {
			samples++
		}
	})
	require.NoError(t, err)
	assert.Equal(t, ack.Session.ID, session.ID)
	assert.Equal(t, speedtest.StateCompleted, session.State)
	assert.False(t, session.PingFallback, "the server's own /ping answers")
	assert.Empty(t, session.DownloadError)
	assert.Greater(t, session.DownloadMbps, 0.0)
	assert.Greater(t, samples, 0)

	testutil.Eventually(t, 5*time.Second, func() bool {
		resp, err := http.Get(baseURL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return strings.Contains(string(body), `gauge_sessions_total{outcome="completed"} 1`)
	}, "completed session not counted in /metrics")
}

func TestStreamDisconnectReconnect(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	srv, baseURL := startServer(t)
	ctx, cancel := testutil.SessionContext(t)
	defer cancel()

	// The first observer leaves after two events.
	firstCtx, leave := context.WithCancel(ctx)
	first := stream.NewClient(baseURL)
	events, _ := first.Subscribe(firstCtx, srv.Hub().LastSeq()+1)

	_, err := first.StartTest(ctx)
	require.NoError(t, err)

	var seen []uint64
	for e := range events {
		seen = append(seen, e.Seq)
		if len(seen) == 2 {
			break
		}
	}
	leave()
	require.Len(t, seen, 2)

	testutil.Eventually(t, 10*time.Second, func() bool {
		return srv.Sequencer().Session().State == speedtest.StateCompleted
	}, "session did not complete")

	// A new observer resumes where the first one stopped.
	second := stream.NewClient(baseURL)
	resumed, _ := second.Subscribe(ctx, seen[len(seen)-1]+1)
	session, err := stream.AwaitOutcome(ctx, resumed, func(e *stream.Event) {
		seen = append(seen, e.Seq)
	})
	require.NoError(t, err)
	assert.Equal(t, speedtest.StateCompleted, session.State)

	for i := 1; i < len(seen); i++ {
		assert.Equal(t, seen[i-1]+1, seen[i], "events are contiguous across the reconnect")
	}
}
