package speedtest_test

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thruflo/gauge/internal/logging"
	"github.com/thruflo/gauge/internal/speedtest"
	"github.com/thruflo/gauge/internal/testutil"
)

func TestSinks_FanOut(t *testing.T) {
	t.Parallel()

	a, b := testutil.NewRecordingSink(), testutil.NewRecordingSink()
	sinks := speedtest.Sinks{a, b}

	sinks.PhaseChanged(speedtest.StatePinging)
	sinks.Sample(speedtest.Sample{Phase: speedtest.PhaseDownload, Mbps: 5})
	sinks.Result(speedtest.Session{ID: "s1"})
	sinks.Error("failed")
	sinks.Reset()

	for _, rec := range []*testutil.RecordingSink{a, b} {
		assert.Len(t, rec.Calls(), 5)
		assert.Equal(t, []speedtest.State{speedtest.StatePinging}, rec.States())
	}
}

func TestLogSink(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := logging.New()
	logger.SetOutput(log.New(&buf, "", 0))
	logger.SetLevel(logging.LevelInfo)

	sink := speedtest.NewLogSink(logger)
	sink.PhaseChanged(speedtest.StateDownloading)
	sink.Sample(speedtest.Sample{Phase: speedtest.PhaseDownload, Mbps: 10})
	sink.Result(speedtest.Session{ID: "abc", PingMs: 12, DownloadMbps: 80, UploadMbps: 60})
	sink.Error("speed test failed: boom")

	out := buf.String()
	assert.Contains(t, out, "INFO: phase changed | component=speedtest state=downloading")
	assert.NotContains(t, out, "sample")
	assert.Contains(t, out, "download_mbps=80.00")
	assert.Contains(t, out, "session=abc")
	assert.Contains(t, out, "ERROR: speed test failed: boom")
}
