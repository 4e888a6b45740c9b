package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/gauge/internal/gauge"
	"github.com/thruflo/gauge/internal/speedtest"
)

var _ speedtest.Sink = (*GaugeView)(nil)

func completedSession() speedtest.Session {
	return speedtest.Session{
		ID:              "s1",
		State:           speedtest.StateCompleted,
		PingMs:          23.4,
		DownloadMbps:    42.3,
		UploadMbps:      30.1,
		UploadSimulated: true,
	}
}

// lineContaining returns the first frame line containing s.
func lineContaining(t *testing.T, frame []string, s string) string {
	t.Helper()
	for _, line := range frame {
		if strings.Contains(line, s) {
			return line
		}
	}
	t.Fatalf("no line contains %q in\n%s", s, strings.Join(frame, "\n"))
	return ""
}

func TestGaugeView_PlainOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	view := NewGaugeView(&buf, gauge.New(100))

	view.PhaseChanged(speedtest.StatePinging)
	view.PhaseChanged(speedtest.StateDownloading)
	view.Sample(speedtest.Sample{Phase: speedtest.PhaseDownload, Mbps: 40, Elapsed: time.Second, Progress: 0.5})
	view.PhaseChanged(speedtest.StateUploading)
	view.PhaseChanged(speedtest.StateCompleted)
	view.Result(completedSession())
	view.Reset()
	require.NoError(t, view.Close())

	want := strings.Join([]string{
		"phase: pinging",
		"phase: downloading",
		"phase: uploading",
		"phase: completed",
		"result: ping 23 ms, download 42.30 Mbps, upload 30.10 Mbps (simulated)",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestGaugeView_PlainError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	view := NewGaugeView(&buf, gauge.New(100))

	view.PhaseChanged(speedtest.StatePinging)
	view.PhaseChanged(speedtest.StateFailed)
	view.Error("speed test failed: boom")

	assert.Equal(t, "phase: pinging\nphase: failed\nerror: speed test failed: boom\n", buf.String())
}

func TestGaugeView_Frame(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	view := NewGaugeView(&buf, gauge.New(100), WithInteractive(true), WithColor(false), WithWidth(44))

	view.PhaseChanged(speedtest.StatePinging)
	view.PhaseChanged(speedtest.StateDownloading)
	view.Sample(speedtest.Sample{Phase: speedtest.PhaseDownload, Mbps: 42, Progress: 0.5})

	frame := view.Frame()
	require.Len(t, frame, 14)
	for _, line := range frame {
		assert.Equal(t, 44, VisualWidth(line), "line %q", line)
	}
	assert.Contains(t, frame[1], "Speed test")
	assert.Contains(t, frame[1], "downloading")
	lineContaining(t, frame, "42.0 Mbps")
	lineContaining(t, frame, " 50%")
	lineContaining(t, frame, "Ping --  Down --  Up --")

	view.PhaseChanged(speedtest.StateUploading)
	view.Sample(speedtest.Sample{Phase: speedtest.PhaseUpload, Mbps: 12})
	lineContaining(t, view.Frame(), "upload (simulated)")

	view.PhaseChanged(speedtest.StateCompleted)
	view.Result(completedSession())
	frame = view.Frame()
	assert.Contains(t, frame[1], "completed")
	lineContaining(t, frame, "Ping 23 ms  Down 42.3  Up 30.1")
}

func TestGaugeView_ResetReturnsNeedleToZero(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	view := NewGaugeView(&buf, gauge.New(100), WithInteractive(true), WithWidth(44))

	view.PhaseChanged(speedtest.StateDownloading)
	view.Sample(speedtest.Sample{Phase: speedtest.PhaseDownload, Mbps: 100, Progress: 1})
	full := view.Frame()

	view.Result(completedSession())
	view.Reset()
	zeroed := view.Frame()

	lineContaining(t, zeroed, "0.0 Mbps")
	lineContaining(t, zeroed, "Ping 23 ms")
	assert.NotEqual(t, full, zeroed)

	// The hub row shows the needle left of the hub at zero and right of it
	// at full scale.
	hubRow := func(frame []string) string { return lineContaining(t, frame, string(DialHub)) }
	left, _, _ := strings.Cut(hubRow(zeroed), string(DialHub))
	assert.Contains(t, left, string(DialNeedle))
	_, right, _ := strings.Cut(hubRow(full), string(DialHub))
	assert.Contains(t, right, string(DialNeedle))
}

func TestGaugeView_RedrawsInPlace(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	view := NewGaugeView(&buf, gauge.New(100), WithInteractive(true), WithColor(false), WithWidth(44))

	view.PhaseChanged(speedtest.StatePinging)
	first := buf.String()
	assert.True(t, strings.HasPrefix(first, CursorHide))
	assert.NotContains(t, first, CursorUp(14))
	assert.Equal(t, 14, strings.Count(first, "\n"))

	buf.Reset()
	view.PhaseChanged(speedtest.StateDownloading)
	assert.True(t, strings.HasPrefix(buf.String(), CursorUp(14)))
	assert.NotContains(t, buf.String(), CursorHide)

	buf.Reset()
	require.NoError(t, view.Close())
	assert.Equal(t, CursorShow, buf.String())
}

func TestGaugeView_ColorKeepsWidth(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	view := NewGaugeView(&buf, gauge.New(100), WithInteractive(true), WithColor(true), WithWidth(30))

	view.PhaseChanged(speedtest.StateFailed)
	view.Error("speed test failed: unexpected failure with a very long explanation")

	frame := view.Frame()
	assert.Contains(t, frame[1], FgRed)
	for _, line := range frame {
		assert.Equal(t, 30, VisualWidth(line), "line %q", line)
	}
	lineContaining(t, frame, "...")
}

func TestGaugeView_Bell(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	view := NewGaugeView(&buf, gauge.New(100), WithBell(true))

	view.PhaseChanged(speedtest.StateDownloading)
	assert.NotContains(t, buf.String(), Bell)
	view.PhaseChanged(speedtest.StateCompleted)
	assert.Contains(t, buf.String(), Bell)
}

func TestSummary(t *testing.T) {
	t.Parallel()

	s := completedSession()
	s.PingFallback = true
	s.DownloadMbps = 0
	s.DownloadError = "download: download transport error: EOF"

	assert.Equal(t,
		"ping 23 ms (estimated), download 0.00 Mbps (failed: download: download transport error: EOF), upload 30.10 Mbps (simulated)",
		Summary(s))
}
