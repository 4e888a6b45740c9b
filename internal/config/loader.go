package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/thruflo/gauge/internal/logging"
)

// Default values for Config.
const (
	DefaultPingURL           = "https://speed.cloudflare.com/__down?bytes=0"
	DefaultPayloadURL        = "https://speed.cloudflare.com/__down?bytes=25000000"
	DefaultSampleInterval    = 100 * time.Millisecond
	DefaultUploadTick        = 50 * time.Millisecond
	DefaultResetDelay        = 2000 * time.Millisecond
	DefaultPingTimeout       = 5 * time.Second
	DefaultDownloadTimeout   = 60 * time.Second
	DefaultPingFallbackMinMs = 10.0
	DefaultPingFallbackMaxMs = 50.0
	DefaultUploadMinFraction = 0.5
	DefaultUploadMaxFraction = 0.9
	DefaultGaugeMaxMbps      = 100.0
	DefaultServerPort        = 8080
	DefaultPayloadBytes      = 10_000_000
	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = time.Minute
	DefaultLogLevel          = "info"
	DefaultConfigPath        = "gauge.yaml"
)

// Environment variables applied by ApplyEnv.
const (
	EnvPingURL      = "GAUGE_PING_URL"
	EnvPayloadURL   = "GAUGE_PAYLOAD_URL"
	EnvGaugeMaxMbps = "GAUGE_GAUGE_MAX_MBPS"
	EnvPort         = "GAUGE_PORT"
	EnvLogLevel     = "GAUGE_LOG_LEVEL"
)

// DefaultTest returns the measurement defaults.
func DefaultTest() Test {
	return Test{
		PingURL:           DefaultPingURL,
		PayloadURL:        DefaultPayloadURL,
		SampleInterval:    DefaultSampleInterval,
		UploadTick:        DefaultUploadTick,
		ResetDelay:        DefaultResetDelay,
		PingTimeout:       DefaultPingTimeout,
		DownloadTimeout:   DefaultDownloadTimeout,
		PingFallbackMinMs: DefaultPingFallbackMinMs,
		PingFallbackMaxMs: DefaultPingFallbackMaxMs,
		UploadMinFraction: DefaultUploadMinFraction,
		UploadMaxFraction: DefaultUploadMaxFraction,
	}
}

// DefaultServerConfig returns a ServerConfig with sensible default values.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:         DefaultServerPort,
		PayloadBytes: DefaultPayloadBytes,
		RateLimit: RateLimit{
			MaxRequests: DefaultRateLimitRequests,
			Window:      DefaultRateLimitWindow,
		},
	}
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Test:   DefaultTest(),
		Gauge:  Gauge{MaxMbps: DefaultGaugeMaxMbps},
		Server: DefaultServerConfig(),
		Log:    Log{Level: DefaultLogLevel},
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// LoadConfig reads and parses the YAML config at path.
// If the file doesn't exist, returns default config.
// Fields missing from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ValidateConfig checks that all config values are valid.
func ValidateConfig(cfg *Config) error {
	if err := ValidateTest(&cfg.Test); err != nil {
		return err
	}
	if cfg.Gauge.MaxMbps <= 0 {
		return ValidationError{Field: "gauge.max_mbps", Message: "must be positive"}
	}
	if err := ValidateServerConfig(&cfg.Server); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return ValidationError{Field: "log.level", Message: err.Error()}
	}
	return nil
}

// ValidateTest checks the measurement settings.
func ValidateTest(t *Test) error {
	if err := validateURL("test.ping_url", t.PingURL); err != nil {
		return err
	}
	if err := validateURL("test.payload_url", t.PayloadURL); err != nil {
		return err
	}
	durations := []struct {
		field string
		value time.Duration
	}{
		{"test.sample_interval", t.SampleInterval},
		{"test.upload_tick", t.UploadTick},
		{"test.ping_timeout", t.PingTimeout},
		{"test.download_timeout", t.DownloadTimeout},
		{"test.reset_delay", t.ResetDelay},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return ValidationError{Field: d.field, Message: "must be positive"}
		}
	}
	if t.PingFallbackMinMs < 0 {
		return ValidationError{Field: "test.ping_fallback_min_ms", Message: "must not be negative"}
	}
	if t.PingFallbackMaxMs < t.PingFallbackMinMs {
		return ValidationError{Field: "test.ping_fallback_max_ms", Message: "must be at least ping_fallback_min_ms"}
	}
	if t.UploadMinFraction < 0 || t.UploadMinFraction > 1 {
		return ValidationError{Field: "test.upload_min_fraction", Message: "must be between 0 and 1"}
	}
	if t.UploadMaxFraction < t.UploadMinFraction || t.UploadMaxFraction > 1 {
		return ValidationError{Field: "test.upload_max_fraction", Message: "must be between upload_min_fraction and 1"}
	}
	return nil
}

// ValidateServerConfig checks that server config values are valid.
func ValidateServerConfig(cfg *ServerConfig) error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return ValidationError{Field: "server.port", Message: "must be between 0 and 65535"}
	}
	if cfg.PayloadBytes <= 0 {
		return ValidationError{Field: "server.payload_bytes", Message: "must be positive"}
	}
	if cfg.RateLimit.MaxRequests <= 0 {
		return ValidationError{Field: "server.rate_limit.max_requests", Message: "must be positive"}
	}
	if cfg.RateLimit.Window <= 0 {
		return ValidationError{Field: "server.rate_limit.window", Message: "must be positive"}
	}
	return nil
}

// validateURL accepts empty values; `gauge serve` fills them with its own endpoints.
func validateURL(field, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ValidationError{Field: field, Message: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ValidationError{Field: field, Message: "scheme must be http or https"}
	}
	if u.Host == "" {
		return ValidationError{Field: field, Message: "host is required"}
	}
	return nil
}

// LoadEnvFile reads a .env file into a map. A missing file yields an empty map.
func LoadEnvFile(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}
	return env, nil
}

// ApplyEnv overlays GAUGE_* settings onto cfg. Values in the process
// environment take precedence over values from the env file map.
func ApplyEnv(cfg *Config, fileEnv map[string]string) error {
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}

	if v, ok := lookup(EnvPingURL); ok {
		cfg.Test.PingURL = v
	}
	if v, ok := lookup(EnvPayloadURL); ok {
		cfg.Test.PayloadURL = v
	}
	if v, ok := lookup(EnvGaugeMaxMbps); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return ValidationError{Field: EnvGaugeMaxMbps, Message: "must be a number"}
		}
		cfg.Gauge.MaxMbps = f
	}
	if v, ok := lookup(EnvPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return ValidationError{Field: EnvPort, Message: "must be an integer"}
		}
		cfg.Server.Port = port
	}
	if v, ok := lookup(EnvLogLevel); ok {
		cfg.Log.Level = v
	}

	return ValidateConfig(cfg)
}

// Load reads the YAML config at configPath and applies env overrides from
// envPath and the process environment.
func Load(configPath, envPath string) (*Config, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	fileEnv := map[string]string{}
	if envPath != "" {
		fileEnv, err = LoadEnvFile(envPath)
		if err != nil {
			return nil, err
		}
	}

	if err := ApplyEnv(cfg, fileEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}
