package logger

import (
	"io"
	"regexp"
)

// Redactor redacts credentials from log lines
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a new redactor with default patterns
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// API keys
			regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),

			// Authorization headers
			regexp.MustCompile(`(?i)Bearer\s+[a-zA-Z0-9._~+/=-]+`),
			regexp.MustCompile(`(?i)Basic\s+[a-zA-Z0-9+/=]{8,}`),

			// Userinfo in URLs
			regexp.MustCompile(`://[^/\s:@"]+:[^/\s@"]+@`),

			// Credential query parameters
			regexp.MustCompile(`(?i)[?&](access_token|token|api_key|apikey|key)=[^&\s"]+`),

			// Key/value secrets
			regexp.MustCompile(`(?i)(password|passwd|pwd)["\s:=]+[^\s",}]+`),
			regexp.MustCompile(`(?i)secret["\s:=]+[^\s",}]+`),
			regexp.MustCompile(`(?i)api_key["\s:=]+[^\s",}]+`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact redacts sensitive information from a string
func (r *Redactor) Redact(s string) string {
	result := s
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// Wrap wraps an io.Writer to redact sensitive information
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success; the redacted line may differ in length.
func (w *redactingWriter) Write(p []byte) (int, error) {
	redacted := w.redactor.Redact(string(p))
	if _, err := w.writer.Write([]byte(redacted)); err != nil {
		return 0, err
	}
	return len(p), nil
}
