package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main doctalk configuration
type Config struct {
	// Server endpoints
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Reconnect policy
	Retry RetryConfig `json:"retry" mapstructure:"retry"`

	// Inbound frame classification
	Classifier ClassifierConfig `json:"classifier" mapstructure:"classifier"`

	// Document upload limits
	Upload UploadConfig `json:"upload" mapstructure:"upload"`

	// Chat view
	Chat ChatConfig `json:"chat" mapstructure:"chat"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds the document service endpoints
type ServerConfig struct {
	BaseURL            string `json:"base_url" mapstructure:"base_url"`
	WSURL              string `json:"ws_url" mapstructure:"ws_url"` // derived from base_url when empty
	HandshakeTimeoutMs int    `json:"handshake_timeout_ms" mapstructure:"handshake_timeout_ms"`
	RequestTimeoutMs   int    `json:"request_timeout_ms" mapstructure:"request_timeout_ms"`
}

// RetryConfig holds reconnect policy settings
type RetryConfig struct {
	MaxRetries             int `json:"max_retries" mapstructure:"max_retries"`
	BaseDelayMs            int `json:"base_delay_ms" mapstructure:"base_delay_ms"`
	MinIntervalMs          int `json:"min_interval_ms" mapstructure:"min_interval_ms"`
	RateLimitWarnThreshold int `json:"rate_limit_warn_threshold" mapstructure:"rate_limit_warn_threshold"`
}

// ClassifierConfig holds frame classification settings
type ClassifierConfig struct {
	NoDataMarkers []string `json:"no_data_markers" mapstructure:"no_data_markers"`
}

// UploadConfig holds upload guard settings
type UploadConfig struct {
	MaxBytes          int64    `json:"max_bytes" mapstructure:"max_bytes"`
	AllowedExtensions []string `json:"allowed_extensions" mapstructure:"allowed_extensions"`
	WatchDebounceMs   int      `json:"watch_debounce_ms" mapstructure:"watch_debounce_ms"`
}

// ChatConfig holds chat view settings
type ChatConfig struct {
	PageSize int `json:"page_size" mapstructure:"page_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	Console   bool   `json:"console" mapstructure:"console"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Addr string `json:"addr" mapstructure:"addr"` // empty disables the endpoint
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:            "http://localhost:8000",
			HandshakeTimeoutMs: 10000,
			RequestTimeoutMs:   60000,
		},
		Retry: RetryConfig{
			MaxRetries:             3,
			BaseDelayMs:            5000,
			MinIntervalMs:          1000,
			RateLimitWarnThreshold: 5,
		},
		Classifier: ClassifierConfig{
			NoDataMarkers: []string{
				"no resume data found",
				"no document data found",
				"no data available for this session",
			},
		},
		Upload: UploadConfig{
			MaxBytes:          10 * 1024 * 1024,
			AllowedExtensions: []string{".pdf", ".docx", ".doc", ".txt"},
			WatchDebounceMs:   500,
		},
		Chat: ChatConfig{
			PageSize: 20,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// ChatURL returns the origin the chat channel dials
func (c *Config) ChatURL() string {
	if c.Server.WSURL != "" {
		return c.Server.WSURL
	}
	return c.Server.BaseURL
}

// HandshakeTimeout returns the websocket handshake timeout
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Server.HandshakeTimeoutMs) * time.Millisecond
}

// RequestTimeout returns the HTTP request timeout
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutMs) * time.Millisecond
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if errs := NewValidator().ValidateConfig(c); len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errs[0])
	}
	return nil
}
