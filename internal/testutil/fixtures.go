package testutil

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thruflo/gauge/internal/clock"
	"github.com/thruflo/gauge/internal/speedtest"
)

// DefaultPayloadBytes is the payload size served by NewSpeedServer when
// SpeedServerOptions.PayloadBytes is zero.
const DefaultPayloadBytes = 256 * 1024

// SpeedServerOptions controls the behavior of a test speed server.
type SpeedServerOptions struct {
	// PayloadBytes is the size of the /payload body.
	PayloadBytes int
	// PayloadStatus, when set, is returned by /payload instead of the body.
	PayloadStatus int
	// PingStatus is the status returned by /ping. Defaults to 204.
	PingStatus int
	// PingDelay delays every /ping response.
	PingDelay time.Duration
	// ChunkDelay pauses between 32 KiB payload chunks.
	ChunkDelay time.Duration
	// AbortPayload drops the connection after sending half the payload.
	AbortPayload bool
}

// SpeedServer is an httptest server serving /ping and /payload.
type SpeedServer struct {
	*httptest.Server

	pings    atomic.Int32
	payloads atomic.Int32
	lastURL  atomic.Value
}

// NewSpeedServer starts a server and registers its shutdown with t.Cleanup.
func NewSpeedServer(t *testing.T, opts SpeedServerOptions) *SpeedServer {
	t.Helper()
	if opts.PayloadBytes == 0 {
		opts.PayloadBytes = DefaultPayloadBytes
	}
	if opts.PingStatus == 0 {
		opts.PingStatus = http.StatusNoContent
	}

	s := &SpeedServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		s.pings.Add(1)
		if opts.PingDelay > 0 {
			time.Sleep(opts.PingDelay)
		}
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(opts.PingStatus)
	})
	mux.HandleFunc("/payload", func(w http.ResponseWriter, r *http.Request) {
		s.payloads.Add(1)
		s.lastURL.Store(r.URL.String())
		if opts.PayloadStatus != 0 {
			http.Error(w, http.StatusText(opts.PayloadStatus), opts.PayloadStatus)
			return
		}
		body := Payload(opts.PayloadBytes)
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Header().Set("Cache-Control", "no-store")

		limit := len(body)
		if opts.AbortPayload {
			limit = len(body) / 2
		}
		flusher, _ := w.(http.Flusher)
		for off := 0; off < limit; off += 32 * 1024 {
			end := min(off+32*1024, limit)
			if _, err := w.Write(body[off:end]); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			if opts.ChunkDelay > 0 {
				time.Sleep(opts.ChunkDelay)
			}
		}
		if opts.AbortPayload {
			panic(http.ErrAbortHandler)
		}
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// PingURL returns the URL of the ping endpoint.
func (s *SpeedServer) PingURL() string { return s.URL + "/ping" }

// PayloadURL returns the URL of the payload endpoint.
func (s *SpeedServer) PayloadURL() string { return s.URL + "/payload" }

// Pings returns how many ping requests were served.
func (s *SpeedServer) Pings() int { return int(s.pings.Load()) }

// Payloads returns how many payload requests were served.
func (s *SpeedServer) Payloads() int { return int(s.payloads.Load()) }

// LastPayloadURL returns the request URI of the most recent payload request.
func (s *SpeedServer) LastPayloadURL() string {
	v, _ := s.lastURL.Load().(string)
	return v
}

// Options returns sequencer options aimed at this server with intervals
// short enough for a session to finish in well under a second.
func (s *SpeedServer) Options() speedtest.Options {
	return FastOptions(s.PingURL(), s.PayloadURL())
}

// FastOptions returns sequencer options with short intervals for tests.
func FastOptions(pingURL, payloadURL string) speedtest.Options {
	opts := speedtest.DefaultOptions()
	opts.PingURL = pingURL
	opts.PayloadURL = payloadURL
	opts.SampleInterval = 5 * time.Millisecond
	opts.UploadTick = time.Millisecond
	opts.ResetDelay = 20 * time.Millisecond
	opts.PingTimeout = 2 * time.Second
	opts.DownloadTimeout = 5 * time.Second
	opts.Clock = clock.New()
	return opts
}

// Payload returns n deterministic bytes.
func Payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

// UnreachableURL returns an http URL on a port that refuses connections.
func UnreachableURL(t *testing.T, path string) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + path
	srv.Close()
	return url
}
