package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harun/doctalk/internal/observability"
	"github.com/rs/zerolog"
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Detail)
}

// UploadResult is the service's confirmation of an upload.
type UploadResult struct {
	Filename string `json:"filename"`
	FileSize int64  `json:"file_size"`
}

// Config holds backend client configuration
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Guard      Guard
	Logger     zerolog.Logger
}

// Client talks to the document service.
type Client struct {
	base   *url.URL
	http   *http.Client
	guard  Guard
	logger zerolog.Logger
}

// NewClient creates a backend client
func NewClient(cfg Config) (*Client, error) {
	observability.EnsureRegistered()

	if cfg.BaseURL == "" {
		return nil, errors.New("base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", base.Scheme)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Guard.MaxBytes == 0 && cfg.Guard.AllowedExtensions == nil {
		cfg.Guard = DefaultGuard()
	}

	return &Client{
		base:   base,
		http:   cfg.HTTPClient,
		guard:  cfg.Guard,
		logger: cfg.Logger,
	}, nil
}

// Upload sends the document at path to the session. The file is checked
// against the guard first; rejected files are never sent.
func (c *Client) Upload(ctx context.Context, sessionID, path string) (UploadResult, error) {
	size, err := c.guard.Check(path)
	if err != nil {
		observability.RecordUpload(0, 0, false)
		return UploadResult{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()

	start := time.Now()
	result, err := c.upload(ctx, sessionID, filepath.Base(path), f)
	observability.RecordUpload(time.Since(start), size, err == nil)
	if err != nil {
		c.logger.Warn().Err(err).Str("session_id", sessionID).Str("file", filepath.Base(path)).Msg("Upload failed")
		return UploadResult{}, err
	}

	c.logger.Info().
		Str("session_id", sessionID).
		Str("file", result.Filename).
		Int64("bytes", result.FileSize).
		Dur("duration", time.Since(start)).
		Msg("Document uploaded")
	return result, nil
}

func (c *Client) upload(ctx context.Context, sessionID, filename string, r io.Reader) (UploadResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return UploadResult{}, fmt.Errorf("failed to read document: %w", err)
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("failed to finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("upload", sessionID), &body)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var result UploadResult
	if err := c.do(req, &result); err != nil {
		return UploadResult{}, err
	}
	if result.Filename == "" {
		result.Filename = filename
	}
	return result, nil
}

// Score fetches the role fit score computed for the session's document.
func (c *Client) Score(ctx context.Context, sessionID string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("score", sessionID), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	var result struct {
		Score *float64 `json:"score"`
	}
	if err := c.do(req, &result); err != nil {
		return 0, err
	}
	if result.Score == nil {
		return 0, errors.New("score missing from response")
	}
	return *result.Score, nil
}

func (c *Client) endpoint(op, sessionID string) string {
	u := *c.base
	prefix := strings.TrimRight(u.Path, "/") + "/api/" + op + "/"
	u.Path = prefix + sessionID
	u.RawPath = (&url.URL{Path: prefix}).EscapedPath() + url.PathEscape(sessionID)
	return u.String()
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil && len(payload.Detail) > 0 {
		var detail string
		if json.Unmarshal(payload.Detail, &detail) == nil {
			apiErr.Detail = detail
		} else {
			apiErr.Detail = string(payload.Detail)
		}
	} else {
		apiErr.Detail = strings.TrimSpace(string(body))
	}
	return apiErr
}
