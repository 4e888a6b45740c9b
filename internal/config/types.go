package config

import "time"

// Test configures the measurement sequence.
type Test struct {
	PingURL           string        `yaml:"ping_url"`
	PayloadURL        string        `yaml:"payload_url"`
	SampleInterval    time.Duration `yaml:"sample_interval"`
	UploadTick        time.Duration `yaml:"upload_tick"`
	ResetDelay        time.Duration `yaml:"reset_delay"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	DownloadTimeout   time.Duration `yaml:"download_timeout"`
	PingFallbackMinMs float64       `yaml:"ping_fallback_min_ms"`
	PingFallbackMaxMs float64       `yaml:"ping_fallback_max_ms"`
	UploadMinFraction float64       `yaml:"upload_min_fraction"`
	UploadMaxFraction float64       `yaml:"upload_max_fraction"`
}

// Gauge configures the needle scale.
type Gauge struct {
	MaxMbps float64 `yaml:"max_mbps"`
}

// RateLimit bounds requests per client IP on the payload and action endpoints.
type RateLimit struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// ServerConfig configures `gauge serve`.
type ServerConfig struct {
	Port         int       `yaml:"port"`
	PayloadBytes int64     `yaml:"payload_bytes"`
	RateLimit    RateLimit `yaml:"rate_limit"`
}

// Log configures the logger.
type Log struct {
	Level string `yaml:"level"`
}

// Config represents the gauge YAML config file.
type Config struct {
	Test   Test         `yaml:"test"`
	Gauge  Gauge        `yaml:"gauge"`
	Server ServerConfig `yaml:"server"`
	Log    Log          `yaml:"log"`
}
