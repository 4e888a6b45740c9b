// Package server exposes the speed test over HTTP for the browser gauge.
//
// One Sequencer runs behind the server. Its progress is published to an
// in-memory event Hub, which browsers follow over Server-Sent Events, and to
// a Prometheus recorder.
//
// # Endpoints
//
//   - GET / and GET /static/* - the embedded gauge page
//   - HEAD|GET /ping - same-origin probe used for ping timing
//   - GET /payload - reference download payload, rate limited per IP
//   - POST /actions/{action} - request start-test or reset-test
//   - GET /session - the current or most recent session
//   - GET /reading - the needle position observers should display
//   - GET /events - Server-Sent Events, resumable via Last-Event-ID or ?since=
//   - GET /metrics - Prometheus metrics
//
// When the configured ping or payload URL is empty the sequencer measures
// against the server's own /ping and /payload.
package server
