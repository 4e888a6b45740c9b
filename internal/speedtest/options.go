package speedtest

import (
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/thruflo/gauge/internal/clock"
	"github.com/thruflo/gauge/internal/config"
	"github.com/thruflo/gauge/internal/logging"
)

// convergence is the fraction of the upload target at which the simulated
// upload phase completes.
const convergence = 0.95

// approachRate is the share of the remaining distance to the upload target
// covered on each tick, before jitter.
const approachRate = 0.1

// Options configures a Sequencer. Zero fields take the defaults from
// DefaultOptions.
type Options struct {
	PingURL    string
	PayloadURL string

	SampleInterval  time.Duration
	UploadTick      time.Duration
	ResetDelay      time.Duration
	PingTimeout     time.Duration
	DownloadTimeout time.Duration

	PingFallbackMinMs float64
	PingFallbackMaxMs float64
	UploadMinFraction float64
	UploadMaxFraction float64

	Client *http.Client
	Clock  clock.Clock
	Rand   *rand.Rand
	Logger *logging.Logger
}

// DefaultOptions returns Options built from the configuration defaults.
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultTest())
}

// OptionsFromConfig maps the test section of the config file onto Options.
func OptionsFromConfig(cfg config.Test) Options {
	return Options{
		PingURL:           cfg.PingURL,
		PayloadURL:        cfg.PayloadURL,
		SampleInterval:    cfg.SampleInterval,
		UploadTick:        cfg.UploadTick,
		ResetDelay:        cfg.ResetDelay,
		PingTimeout:       cfg.PingTimeout,
		DownloadTimeout:   cfg.DownloadTimeout,
		PingFallbackMinMs: cfg.PingFallbackMinMs,
		PingFallbackMaxMs: cfg.PingFallbackMaxMs,
		UploadMinFraction: cfg.UploadMinFraction,
		UploadMaxFraction: cfg.UploadMaxFraction,
	}
}

func (o Options) withDefaults() Options {
	d := config.DefaultTest()
	if o.SampleInterval <= 0 {
		o.SampleInterval = d.SampleInterval
	}
	if o.UploadTick <= 0 {
		o.UploadTick = d.UploadTick
	}
	if o.ResetDelay <= 0 {
		o.ResetDelay = d.ResetDelay
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = d.PingTimeout
	}
	if o.DownloadTimeout <= 0 {
		o.DownloadTimeout = d.DownloadTimeout
	}
	if o.PingFallbackMaxMs <= 0 || o.PingFallbackMaxMs < o.PingFallbackMinMs {
		o.PingFallbackMinMs = d.PingFallbackMinMs
		o.PingFallbackMaxMs = d.PingFallbackMaxMs
	}
	if o.UploadMaxFraction <= 0 || o.UploadMaxFraction < o.UploadMinFraction {
		o.UploadMinFraction = d.UploadMinFraction
		o.UploadMaxFraction = d.UploadMaxFraction
	}
	if o.Client == nil {
		o.Client = &http.Client{}
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if o.Logger == nil {
		o.Logger = logging.Default()
	}
	return o
}
