package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/thruflo/gauge/internal/clock"
	"github.com/thruflo/gauge/internal/config"
	"github.com/thruflo/gauge/internal/gauge"
	"github.com/thruflo/gauge/internal/logging"
	"github.com/thruflo/gauge/internal/metrics"
	"github.com/thruflo/gauge/internal/speedtest"
	"github.com/thruflo/gauge/internal/stream"
	"github.com/thruflo/gauge/web"
)

const (
	// payloadChunk is the size of the block /payload repeats.
	payloadChunk = 64 * 1024

	// keepAliveInterval is how often an idle event stream gets a comment
	// line so proxies keep it open.
	keepAliveInterval = 15 * time.Second
)

// Server serves the gauge page and drives one Sequencer.
type Server struct {
	port         int
	payloadBytes int64
	payload      []byte
	testOpts     speedtest.Options
	extraSinks   []speedtest.Sink

	hub     *stream.Hub
	metrics *metrics.Recorder
	limiter *rateLimiter
	assets  fs.FS
	log     *logging.Logger
	router  chi.Router

	// HTTP server
	mu       sync.RWMutex
	seq      *speedtest.Sequencer
	server   *http.Server
	listener net.Listener

	// Lifecycle
	started bool
}

// Config holds server configuration options.
type Config struct {
	Port         int
	PayloadBytes int64
	RateLimit    config.RateLimit
	// Test configures the sequencer. Empty URLs point at this server.
	Test    speedtest.Options
	Mapping gauge.Mapping
	// Backlog is the number of events kept for late subscribers.
	Backlog int
	// Assets serves / and /static/*. Defaults to the embedded page.
	Assets fs.FS
	// Sinks receive sequencer progress alongside the event hub and metrics.
	Sinks  []speedtest.Sink
	Clock  clock.Clock
	Logger *logging.Logger
}

// NewServer creates a new Server instance.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.PayloadBytes <= 0 {
		return nil, errors.New("payload size must be positive")
	}
	if cfg.Mapping.MaxMbps <= 0 {
		return nil, errors.New("gauge max must be positive")
	}

	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	log = log.Named("server")

	assets := cfg.Assets
	if assets == nil {
		assets = web.GetAssets("")
	}

	s := &Server{
		port:         cfg.Port,
		payloadBytes: cfg.PayloadBytes,
		payload:      newPayloadBlock(),
		testOpts:     cfg.Test,
		extraSinks:   cfg.Sinks,
		hub:          stream.NewHub(cfg.Backlog, cfg.Mapping),
		metrics:      metrics.NewRecorder(),
		limiter:      newRateLimiter(cfg.RateLimit, cfg.Clock, log),
		assets:       assets,
		log:          log,
	}
	if cfg.Test.PingURL != "" && cfg.Test.PayloadURL != "" {
		s.seq = s.newSequencer(cfg.Test)
	}
	s.router = s.routes()
	return s, nil
}

// NewServerFromConfig creates a Server from a loaded config file.
func NewServerFromConfig(cfg *config.Config, log *logging.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	opts := speedtest.OptionsFromConfig(cfg.Test)
	opts.Logger = log
	return NewServer(&Config{
		Port:         cfg.Server.Port,
		PayloadBytes: cfg.Server.PayloadBytes,
		RateLimit:    cfg.Server.RateLimit,
		Test:         opts,
		Mapping:      gauge.New(cfg.Gauge.MaxMbps),
		Logger:       log,
	})
}

func (s *Server) newSequencer(opts speedtest.Options) *speedtest.Sequencer {
	if opts.Logger == nil {
		opts.Logger = s.log
	}
	sinks := speedtest.Sinks{s.hub, s.metrics, speedtest.NewLogSink(opts.Logger)}
	sinks = append(sinks, s.extraSinks...)
	return speedtest.New(opts, sinks)
}

// newPayloadBlock returns pseudo-random bytes so the payload does not
// compress in transit.
func newPayloadBlock() []byte {
	var seed [32]byte
	copy(seed[:], "gauge reference download payload")
	block := make([]byte, payloadChunk)
	_, _ = rand.NewChaCha8(seed).Read(block)
	return block
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Hub returns the event hub the sequencer publishes to.
func (s *Server) Hub() *stream.Hub {
	return s.hub
}

// Metrics returns the server's metrics recorder.
func (s *Server) Metrics() *metrics.Recorder {
	return s.metrics
}

// Sequencer returns the sequencer behind the actions endpoint, or nil if
// it waits for Listen to learn the server's own address.
func (s *Server) Sequencer() *speedtest.Sequencer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen binds the configured port. Empty test URLs are resolved against the
// bound address so the sequencer measures against this server.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenLocked()
}

func (s *Server) listenLocked() error {
	if s.started || s.listener != nil {
		return errors.New("server already started")
	}

	addr := fmt.Sprintf(":%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	if s.seq == nil {
		opts := s.testOpts
		base := "http://" + loopbackAddr(listener.Addr())
		if opts.PingURL == "" {
			opts.PingURL = base + "/ping"
		}
		if opts.PayloadURL == "" {
			opts.PayloadURL = base + "/payload"
		}
		s.seq = s.newSequencer(opts)
		s.log.Debug("measuring against self", "ping_url", opts.PingURL, "payload_url", opts.PayloadURL)
	}
	return nil
}

// loopbackAddr rewrites a wildcard listen address to a dialable one.
func loopbackAddr(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok || !tcp.IP.IsUnspecified() {
		return addr.String()
	}
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(tcp.Port))
}

// Start starts the HTTP server, binding the port first unless Listen was
// already called. The server runs until ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	if s.listener == nil {
		if err := s.listenLocked(); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // event streams stay open
		IdleTimeout:  120 * time.Second,
	}
	s.started = true
	listener := s.listener
	srv := s.server
	s.mu.Unlock()

	serveDone := make(chan struct{})
	defer close(serveDone)

	go s.limiter.cleanupLoop(ctx)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-serveDone:
		}
	}()

	s.log.Info("server listening", "addr", listener.Addr().String())

	// Run server (blocks until error or server closed)
	err := srv.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Stop gracefully shuts down the server, ending open event streams and any
// running session.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started || s.server == nil {
		s.mu.Unlock()
		return nil
	}
	srv, seq := s.server, s.seq
	s.started = false
	s.mu.Unlock()

	// Event streams only end once the hub closes.
	_ = s.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	if seq != nil {
		_ = seq.Close()
	}
	return nil
}

// ListenAddr returns the actual address the server is listening on.
// Useful when port 0 is used to get an available port.
// Returns empty string if not started.
func (s *Server) ListenAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// routes configures the HTTP routes.
func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)

	r.Get("/", s.handleIndex)
	r.Head("/", s.handleIndex)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(s.assets))))

	r.Group(func(r chi.Router) {
		r.Use(middleware.NoCache)

		r.Get("/ping", s.handlePing)
		r.Head("/ping", s.handlePing)
		r.With(s.limiter.middleware).Get("/payload", s.handlePayload)
		r.With(s.limiter.middleware).Post("/actions/{action}", s.handleAction)
		r.Get("/session", s.handleSession)
		r.Get("/reading", s.handleReading)
		r.Get("/events", s.handleEvents)
	})

	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	return r
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.log.Enabled(logging.LevelDebug) {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// handleIndex serves the gauge page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, s.assets, "index.html")
}

// handlePing answers the ping probe with an empty response.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// handlePayload streams PayloadBytes of incompressible data.
func (s *Server) handlePayload(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(s.payloadBytes, 10))
	w.WriteHeader(http.StatusOK)

	remaining := s.payloadBytes
	for remaining > 0 {
		n := min(remaining, int64(len(s.payload)))
		if _, err := w.Write(s.payload[:n]); err != nil {
			s.log.Debug("payload write aborted", "error", err, "remaining", remaining)
			return
		}
		remaining -= n
	}
}

// handleAction handles POST /actions/{action}.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	action, err := stream.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	seq := s.Sequencer()
	if seq == nil {
		http.Error(w, "server not listening", http.StatusServiceUnavailable)
		return
	}

	switch action {
	case stream.ActionStartTest:
		err := seq.Start()
		switch {
		case err == nil:
			writeJSON(w, http.StatusAccepted, stream.NewAcceptedAck(action, seq.Session()))
		case errors.Is(err, speedtest.ErrSessionActive):
			writeJSON(w, http.StatusConflict, stream.NewRejectedAck(action, seq.Session(), err))
		case errors.Is(err, speedtest.ErrClosed):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			s.log.Error("failed to start session", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	case stream.ActionResetTest:
		seq.Reset()
		writeJSON(w, http.StatusOK, stream.NewAcceptedAck(action, seq.Session()))
	}
}

// handleSession returns the current session snapshot.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session := speedtest.Session{State: speedtest.StateIdle}
	if seq := s.Sequencer(); seq != nil {
		session = seq.Session()
	}
	writeJSON(w, http.StatusOK, session)
}

// handleReading returns the needle position.
func (s *Server) handleReading(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Reading())
}

// handleEvents streams hub events as Server-Sent Events. Each frame carries
// the sequence number as its id so a reconnecting client resumes after the
// last event it saw.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	since, err := eventsSince(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	events := s.hub.Subscribe(ctx, since)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := event.Marshal()
			if err != nil {
				s.log.Error("failed to marshal event", "seq", event.Seq, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Seq, event.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// eventsSince returns the first sequence number to send. Last-Event-ID
// takes precedence over the since query parameter.
func eventsSince(r *http.Request) (uint64, error) {
	if id := r.Header.Get("Last-Event-ID"); id != "" {
		last, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid Last-Event-ID %q", id)
		}
		return last + 1, nil
	}
	if since := r.URL.Query().Get("since"); since != "" {
		seq, err := strconv.ParseUint(since, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid since %q", since)
		}
		return seq, nil
	}
	return 0, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
