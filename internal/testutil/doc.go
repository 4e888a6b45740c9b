// Package testutil provides shared test utilities for gauge.
//
// # Fixtures
//
// The fixtures.go file provides HTTP endpoints for the speed test:
//
//   - NewSpeedServer(t, opts) - an httptest server with /ping and /payload
//   - SpeedServer.Options() - speedtest.Options pointed at the server with
//     intervals short enough for tests
//   - Payload(n) - deterministic payload bytes
//
// # Sinks
//
// The sink.go file provides RecordingSink, a speedtest.Sink that keeps every
// call in order and can block until a given event has been seen:
//
//   - WaitForState(t, state, timeout)
//   - WaitForResets(t, n, timeout)
//
// # Assertions
//
// The assertions.go file provides custom test assertions:
//
//   - AssertStateSequence(t, got, want...) - exact phase transition order
//   - AssertSamplesOrdered(t, samples) - non-decreasing elapsed time per phase
//   - AssertLastSample(t, samples, phase, mbps) - final reading of a phase
//
// # Usage
//
//	func TestSomething(t *testing.T) {
//	    srv := testutil.NewSpeedServer(t, testutil.SpeedServerOptions{})
//	    sink := testutil.NewRecordingSink()
//	    seq := speedtest.New(srv.Options(), sink)
//	    require.NoError(t, seq.Start())
//	    sink.WaitForState(t, speedtest.StateCompleted, 5*time.Second)
//	}
package testutil
