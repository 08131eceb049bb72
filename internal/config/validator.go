package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateURL validates an endpoint URL against the allowed schemes
func (v *Validator) ValidateURL(name, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid %s: missing host", name)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("invalid %s scheme %q (must be one of: %s)", name, u.Scheme, strings.Join(schemes, ", "))
}

// maxBaseDelayMs caps the first reconnect wait at ten minutes.
const maxBaseDelayMs = 10 * 60 * 1000

// ValidateRetry validates the reconnect policy
func (v *Validator) ValidateRetry(r RetryConfig) []error {
	var errors []error
	if r.MaxRetries < 0 {
		errors = append(errors, fmt.Errorf("retry.max_retries must be >= 0"))
	}
	if r.MaxRetries > 10 {
		errors = append(errors, fmt.Errorf("retry.max_retries too large (max 10), got %d", r.MaxRetries))
	}
	if r.BaseDelayMs <= 0 {
		errors = append(errors, fmt.Errorf("retry.base_delay_ms must be positive"))
	}
	if r.BaseDelayMs > maxBaseDelayMs {
		errors = append(errors, fmt.Errorf("retry.base_delay_ms too large (max %d), got %d", maxBaseDelayMs, r.BaseDelayMs))
	}
	if r.MinIntervalMs < 0 {
		errors = append(errors, fmt.Errorf("retry.min_interval_ms must be >= 0"))
	}
	return errors
}

// ValidateExtensions validates allowed upload extensions
func (v *Validator) ValidateExtensions(exts []string) error {
	for _, ext := range exts {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("invalid upload extension %q (must start with a dot)", ext)
		}
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateURL("server.base_url", cfg.Server.BaseURL, "http", "https"); err != nil {
		errors = append(errors, err)
	}
	if cfg.Server.WSURL != "" {
		if err := v.ValidateURL("server.ws_url", cfg.Server.WSURL, "ws", "wss", "http", "https"); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.Server.HandshakeTimeoutMs < 0 {
		errors = append(errors, fmt.Errorf("server.handshake_timeout_ms must be >= 0"))
	}
	if cfg.Server.RequestTimeoutMs < 0 {
		errors = append(errors, fmt.Errorf("server.request_timeout_ms must be >= 0"))
	}

	errors = append(errors, v.ValidateRetry(cfg.Retry)...)

	for i, marker := range cfg.Classifier.NoDataMarkers {
		if strings.TrimSpace(marker) == "" {
			errors = append(errors, fmt.Errorf("classifier.no_data_markers[%d] cannot be empty", i))
		}
	}

	if cfg.Upload.MaxBytes < 0 {
		errors = append(errors, fmt.Errorf("upload.max_bytes must be >= 0"))
	}
	if err := v.ValidateExtensions(cfg.Upload.AllowedExtensions); err != nil {
		errors = append(errors, err)
	}
	if cfg.Upload.WatchDebounceMs < 0 {
		errors = append(errors, fmt.Errorf("upload.watch_debounce_ms must be >= 0"))
	}

	if cfg.Chat.PageSize < 0 {
		errors = append(errors, fmt.Errorf("chat.page_size must be >= 0"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
