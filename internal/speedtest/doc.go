// Package speedtest runs the three-phase bandwidth test behind the gauge.
//
// A Sequencer runs one session at a time through ping, download and upload:
//
//   - Ping issues a single HEAD request and times the round trip. When the
//     probe cannot reach its endpoint a bounded pseudo-random value is used
//     instead and Session.PingFallback is set.
//   - Download streams a reference payload with caching disabled and emits a
//     Sample at most every SampleInterval. A transport failure records a
//     download rate of 0 and the session carries on.
//   - Upload is a simulation, not a measurement. No upload transport exists;
//     the target is a random fraction of the download rate and the reported
//     rate approaches it with jitter on every UploadTick.
//
// Progress is reported to a Sink supplied at construction. All Sink calls for
// a Sequencer are serialized and arrive in emission order.
package speedtest
