package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/gauge/internal/speedtest"
	"github.com/thruflo/gauge/internal/testutil"
)

func TestReplay(t *testing.T) {
	t.Parallel()

	h := newTestHub(0)
	h.PhaseChanged(speedtest.StateDownloading)
	h.Sample(speedtest.Sample{Phase: speedtest.PhaseDownload, Mbps: 42.5, Elapsed: 1500 * time.Millisecond, Progress: 0.25})
	h.Result(speedtest.Session{ID: "s-1", State: speedtest.StateCompleted, PingMs: 12, DownloadMbps: 42.5, UploadMbps: 30, UploadSimulated: true})
	h.Reset()
	h.Error("boom")

	rec := testutil.NewRecordingSink()
	for _, event := range h.Read(0) {
		require.NoError(t, Replay(event, rec))
	}

	calls := rec.Calls()
	require.Len(t, calls, 5)

	assert.Equal(t, testutil.CallPhase, calls[0].Kind)
	assert.Equal(t, speedtest.StateDownloading, calls[0].State)

	assert.Equal(t, testutil.CallSample, calls[1].Kind)
	assert.Equal(t, speedtest.Sample{Phase: speedtest.PhaseDownload, Mbps: 42.5, Elapsed: 1500 * time.Millisecond, Progress: 0.25}, calls[1].Sample)

	assert.Equal(t, testutil.CallResult, calls[2].Kind)
	assert.Equal(t, "s-1", calls[2].Session.ID)
	assert.Equal(t, 42.5, calls[2].Session.DownloadMbps)
	assert.True(t, calls[2].Session.UploadSimulated)

	assert.Equal(t, testutil.CallReset, calls[3].Kind)

	assert.Equal(t, testutil.CallError, calls[4].Kind)
	assert.Equal(t, "boom", calls[4].Message)
}

func TestReplay_Errors(t *testing.T) {
	t.Parallel()

	rec := testutil.NewRecordingSink()

	err := Replay(&Event{Type: "bogus"}, rec)
	assert.ErrorContains(t, err, "unknown event type")

	err = Replay(&Event{Type: MessageTypeSample, Data: []byte(`{"mbps":"fast"}`)}, rec)
	assert.Error(t, err)

	assert.Empty(t, rec.Calls())
}
