package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/gauge/internal/speedtest"
)

// AssertStateSequence asserts the exact order of PhaseChanged calls.
func AssertStateSequence(t *testing.T, got []speedtest.State, want ...speedtest.State) {
	t.Helper()
	assert.Equal(t, want, got, "phase transition order mismatch")
}

// AssertSamplesOrdered asserts that samples are grouped by phase, download
// before upload, and that elapsed time never decreases within a phase.
func AssertSamplesOrdered(t *testing.T, samples []speedtest.Sample) {
	t.Helper()
	seenUpload := false
	var last speedtest.Sample
	for i, s := range samples {
		switch s.Phase {
		case speedtest.PhaseDownload:
			assert.False(t, seenUpload, "sample[%d]: download sample after upload began", i)
		case speedtest.PhaseUpload:
			seenUpload = true
		default:
			t.Errorf("sample[%d]: unexpected phase %q", i, s.Phase)
		}
		if i > 0 && last.Phase == s.Phase {
			assert.GreaterOrEqual(t, s.Elapsed, last.Elapsed,
				"sample[%d]: elapsed went backwards in %s", i, s.Phase)
		}
		assert.GreaterOrEqual(t, s.Mbps, 0.0, "sample[%d]: negative rate", i)
		last = s
	}
}

// AssertLastSample asserts that the final sample of phase reports mbps.
func AssertLastSample(t *testing.T, samples []speedtest.Sample, phase speedtest.Phase, mbps float64) {
	t.Helper()
	var found *speedtest.Sample
	for i := range samples {
		if samples[i].Phase == phase {
			found = &samples[i]
		}
	}
	require.NotNil(t, found, "no %s samples", phase)
	assert.InDelta(t, mbps, found.Mbps, 1e-9, "last %s sample", phase)
}

// SamplesFor returns the samples of one phase.
func SamplesFor(samples []speedtest.Sample, phase speedtest.Phase) []speedtest.Sample {
	var out []speedtest.Sample
	for _, s := range samples {
		if s.Phase == phase {
			out = append(out, s)
		}
	}
	return out
}
