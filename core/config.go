package core

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the optic SDK.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := core.NewConfig(
//	    core.WithAPIKey("k"),
//	    core.WithServiceName("checkout"),
//	    core.WithEndpoint("https://collector.example.com"),
//	)
type Config struct {
	// Required credentials and identity
	APIKey      string `yaml:"api_key"`
	ServiceName string `yaml:"service_name"`

	// Backend endpoint, e.g. http://localhost:8080
	Endpoint string `yaml:"endpoint"`

	// Deployment metadata attached to every exported batch
	Environment    string `yaml:"environment"`
	ServiceVersion string `yaml:"service_version"`

	// Signal toggles
	AutoInstrument bool `yaml:"auto_instrument"`
	EnableTraces   bool `yaml:"enable_traces"`
	EnableMetrics  bool `yaml:"enable_metrics"`
	EnableLogs     bool `yaml:"enable_logs"`

	// Minimum severity captured by the log pipeline (DEBUG/INFO/WARN/ERROR)
	LogLevel string `yaml:"log_level"`

	// Request path patterns (regular expressions) that bypass span
	// creation entirely. Log correlation is unaffected.
	ExcludedURLs []string `yaml:"excluded_urls"`

	// Pipeline tunables. These are policy, not behavior: the engine
	// works with any positive values.
	BufferCapacity         int           `yaml:"buffer_capacity"`
	FlushInterval          time.Duration `yaml:"flush_interval"`
	BatchSize              int           `yaml:"batch_size"`
	ExportTimeout          time.Duration `yaml:"export_timeout"`
	ExportRetryAttempts    int           `yaml:"export_retry_attempts"`
	ExportRetryBaseDelay   time.Duration `yaml:"export_retry_base_delay"`
	ExportRetryMaxDelay    time.Duration `yaml:"export_retry_max_delay"`
	ShutdownGrace          time.Duration `yaml:"shutdown_grace"`
	RuntimeMetricsEnabled  bool          `yaml:"runtime_metrics_enabled"`
	RuntimeMetricsInterval time.Duration `yaml:"runtime_metrics_interval"`
}

// Option is a functional option for configuring the SDK
type Option func(*Config)

// DefaultConfig returns a configuration with sensible defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:               "http://localhost:8080",
		Environment:            "local",
		AutoInstrument:         true,
		EnableTraces:           true,
		EnableMetrics:          true,
		EnableLogs:             true,
		LogLevel:               "INFO",
		BufferCapacity:         2048,
		FlushInterval:          5 * time.Second,
		BatchSize:              512,
		ExportTimeout:          10 * time.Second,
		ExportRetryAttempts:    4,
		ExportRetryBaseDelay:   200 * time.Millisecond,
		ExportRetryMaxDelay:    5 * time.Second,
		ShutdownGrace:          5 * time.Second,
		RuntimeMetricsEnabled:  true,
		RuntimeMetricsInterval: 15 * time.Second,
	}
}

// NewConfig creates a configuration using the three-layer priority:
// defaults, then environment variables, then the provided options.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()
	cfg.applyEnv()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv reads OPTIC_* environment variables, falling back to the
// OTEL_* equivalents where a standard one exists.
func (c *Config) applyEnv() {
	if v := getEnv("OPTIC_API_KEY", "OTEL_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := getEnv("OPTIC_SERVICE_NAME", "OTEL_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := getEnv("OPTIC_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv("OPTIC_ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("OPTIC_SERVICE_VERSION"); v != "" {
		c.ServiceVersion = v
	}
	if v := os.Getenv("OPTIC_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("OPTIC_AUTO_INSTRUMENT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.AutoInstrument = b
		}
	}
}

func getEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// LoadDotEnv loads a .env file into the process environment before env
// resolution. Missing files are not an error; a present-but-broken file is.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// LoadFile merges a YAML configuration file into c. File values override
// whatever is currently set, so call it before applying options that
// should win.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return ConfigError(fmt.Sprintf("reading config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return ConfigError(fmt.Sprintf("parsing config file %s", path), err)
	}
	return nil
}

// Validate checks required fields and value sanity. It is called before
// any instrumentation is installed, so a bad configuration can never
// leave the process half-instrumented.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ConfigError("api_key is required: pass WithAPIKey or set OPTIC_API_KEY", ErrMissingAPIKey)
	}
	if c.ServiceName == "" {
		return ConfigError("service_name is required: pass WithServiceName or set OPTIC_SERVICE_NAME", ErrMissingServiceName)
	}
	if _, err := url.ParseRequestURI(c.Endpoint); err != nil {
		return ConfigError(fmt.Sprintf("endpoint %q is not a valid URL", c.Endpoint), ErrInvalidEndpoint)
	}
	if c.BufferCapacity <= 0 {
		return ConfigError("buffer_capacity must be positive", ErrInvalidConfiguration)
	}
	if c.BatchSize <= 0 || c.BatchSize > c.BufferCapacity {
		return ConfigError("batch_size must be positive and no larger than buffer_capacity", ErrInvalidConfiguration)
	}
	if c.FlushInterval <= 0 || c.ExportTimeout <= 0 {
		return ConfigError("flush_interval and export_timeout must be positive", ErrInvalidConfiguration)
	}
	if c.ExportRetryAttempts < 1 {
		return ConfigError("export_retry_attempts must be at least 1", ErrInvalidConfiguration)
	}
	return nil
}

// WithAPIKey sets the team API key used to authenticate with the backend
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithServiceName sets the name of the service being instrumented
func WithServiceName(name string) Option {
	return func(c *Config) { c.ServiceName = name }
}

// WithEndpoint sets the backend collector URL
func WithEndpoint(endpoint string) Option {
	return func(c *Config) { c.Endpoint = endpoint }
}

// WithEnvironment sets the deployment environment tag
func WithEnvironment(env string) Option {
	return func(c *Config) { c.Environment = env }
}

// WithServiceVersion sets the version tag attached to exported batches
func WithServiceVersion(version string) Option {
	return func(c *Config) { c.ServiceVersion = version }
}

// WithAutoInstrument toggles registry activation at Init
func WithAutoInstrument(enabled bool) Option {
	return func(c *Config) { c.AutoInstrument = enabled }
}

// WithTraces toggles the trace signal
func WithTraces(enabled bool) Option {
	return func(c *Config) { c.EnableTraces = enabled }
}

// WithMetrics toggles the metric signal
func WithMetrics(enabled bool) Option {
	return func(c *Config) { c.EnableMetrics = enabled }
}

// WithLogs toggles the log signal
func WithLogs(enabled bool) Option {
	return func(c *Config) { c.EnableLogs = enabled }
}

// WithLogLevel sets the minimum severity captured by the log pipeline
func WithLogLevel(level string) Option {
	return func(c *Config) { c.LogLevel = level }
}

// WithExcludedURLs sets request path patterns that bypass span creation
func WithExcludedURLs(patterns []string) Option {
	return func(c *Config) { c.ExcludedURLs = patterns }
}

// WithBufferCapacity sets the per-signal buffer capacity
func WithBufferCapacity(n int) Option {
	return func(c *Config) { c.BufferCapacity = n }
}

// WithFlushInterval sets the periodic flush cadence
func WithFlushInterval(d time.Duration) Option {
	return func(c *Config) { c.FlushInterval = d }
}

// WithBatchSize sets the size threshold that triggers an early flush
func WithBatchSize(n int) Option {
	return func(c *Config) { c.BatchSize = n }
}

// WithExportTimeout sets the per-attempt export timeout
func WithExportTimeout(d time.Duration) Option {
	return func(c *Config) { c.ExportTimeout = d }
}

// WithExportRetry configures the bounded exponential backoff applied to
// retryable export failures.
func WithExportRetry(attempts int, baseDelay, maxDelay time.Duration) Option {
	return func(c *Config) {
		c.ExportRetryAttempts = attempts
		c.ExportRetryBaseDelay = baseDelay
		c.ExportRetryMaxDelay = maxDelay
	}
}

// WithShutdownGrace bounds the final flush attempted at Shutdown
func WithShutdownGrace(d time.Duration) Option {
	return func(c *Config) { c.ShutdownGrace = d }
}

// WithRuntimeMetrics toggles the background runtime metrics sampler
func WithRuntimeMetrics(enabled bool, interval time.Duration) Option {
	return func(c *Config) {
		c.RuntimeMetricsEnabled = enabled
		if interval > 0 {
			c.RuntimeMetricsInterval = interval
		}
	}
}
