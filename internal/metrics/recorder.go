// Package metrics exports speed test and HTTP activity to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thruflo/gauge/internal/speedtest"
)

const namespace = "gauge"

// Recorder collects metrics on its own registry. It implements
// speedtest.Sink.
type Recorder struct {
	registry *prometheus.Registry

	sessions       *prometheus.CounterVec
	active         prometheus.Gauge
	pingMs         prometheus.Histogram
	pingFallbacks  prometheus.Counter
	rateMbps       *prometheus.HistogramVec
	samples        *prometheus.CounterVec
	downloadErrors prometheus.Counter
	resets         prometheus.Counter
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
}

// NewRecorder creates a Recorder with a fresh registry that also carries the
// Go runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Speed test sessions by outcome.",
		}, []string{"outcome"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_active",
			Help:      "1 while a speed test session is running.",
		}),
		pingMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ping_milliseconds",
			Help:      "Reported ping of completed sessions.",
			Buckets:   []float64{5, 10, 20, 30, 50, 75, 100, 200, 500, 1000},
		}),
		pingFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ping_fallbacks_total",
			Help:      "Completed sessions whose ping came from the fallback range.",
		}),
		rateMbps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_mbps",
			Help:      "Final rate of completed sessions by phase.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"phase"}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Rate samples emitted by phase.",
		}, []string{"phase"}),
		downloadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_errors_total",
			Help:      "Completed sessions whose download failed and recorded 0 Mbps.",
		}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resets_total",
			Help:      "Gauge reset signals.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	r.registry.MustRegister(
		r.sessions, r.active, r.pingMs, r.pingFallbacks, r.rateMbps,
		r.samples, r.downloadErrors, r.resets, r.requests, r.duration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the registry metrics are recorded on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// PhaseChanged implements speedtest.Sink.
func (r *Recorder) PhaseChanged(state speedtest.State) {
	switch state {
	case speedtest.StatePinging:
		r.active.Set(1)
	case speedtest.StateFailed:
		r.active.Set(0)
		r.sessions.WithLabelValues("failed").Inc()
	case speedtest.StateIdle, speedtest.StateCompleted:
		r.active.Set(0)
	}
}

// Sample implements speedtest.Sink.
func (r *Recorder) Sample(sample speedtest.Sample) {
	r.samples.WithLabelValues(string(sample.Phase)).Inc()
}

// Result implements speedtest.Sink.
func (r *Recorder) Result(session speedtest.Session) {
	r.sessions.WithLabelValues("completed").Inc()
	r.pingMs.Observe(session.PingMs)
	if session.PingFallback {
		r.pingFallbacks.Inc()
	}
	if session.DownloadError != "" {
		r.downloadErrors.Inc()
	}
	r.rateMbps.WithLabelValues(string(speedtest.PhaseDownload)).Observe(session.DownloadMbps)
	r.rateMbps.WithLabelValues(string(speedtest.PhaseUpload)).Observe(session.UploadMbps)
}

// Error implements speedtest.Sink. Failures are counted in PhaseChanged.
func (r *Recorder) Error(string) {}

// Reset implements speedtest.Sink.
func (r *Recorder) Reset() {
	r.resets.Inc()
}

// Middleware records request counts and latency labelled by chi route
// pattern, so /actions/{action} is one series rather than one per action.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.requests.WithLabelValues(route, req.Method, strconv.Itoa(status)).Inc()
		r.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
