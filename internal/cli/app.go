package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harun/doctalk/internal/config"
	"github.com/harun/doctalk/internal/logger"
	"github.com/harun/doctalk/pkg/backend"
	"github.com/harun/doctalk/pkg/chatconn"
	"github.com/harun/doctalk/pkg/transcript"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const transcriptFile = "transcript.db"

// app is the loaded configuration and logger shared by every command.
type app struct {
	cfg    *config.Config
	logger *logger.Logger
}

func loadApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return &app{cfg: cfg, logger: log}, nil
}

func (a *app) Close() error {
	return a.logger.Close()
}

func (a *app) component(name string) zerolog.Logger {
	return a.logger.Component(name)
}

func (a *app) backend() (*backend.Client, error) {
	return backend.NewClient(backend.Config{
		BaseURL: a.cfg.Server.BaseURL,
		Timeout: a.cfg.RequestTimeout(),
		Guard: backend.Guard{
			MaxBytes:          a.cfg.Upload.MaxBytes,
			AllowedExtensions: a.cfg.Upload.AllowedExtensions,
		},
		Logger: a.component("backend"),
	})
}

func (a *app) openStore() (*transcript.Store, error) {
	if err := os.MkdirAll(a.cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return transcript.Open(transcript.Config{
		DBPath: filepath.Join(a.cfg.DataDir, transcriptFile),
		Logger: a.component("transcript"),
	})
}

func (a *app) dialer() (*chatconn.WebSocketDialer, error) {
	return chatconn.NewWebSocketDialer(chatconn.DialerConfig{
		BaseURL:          a.cfg.ChatURL(),
		HandshakeTimeout: a.cfg.HandshakeTimeout(),
	})
}

func (a *app) retryPolicy() chatconn.RetryPolicy {
	return chatconn.RetryPolicy{
		MaxRetries:  a.cfg.Retry.MaxRetries,
		BaseDelay:   time.Duration(a.cfg.Retry.BaseDelayMs) * time.Millisecond,
		MinInterval: time.Duration(a.cfg.Retry.MinIntervalMs) * time.Millisecond,
	}
}

// sessionOrCurrent falls back to the transcript's current session.
func sessionOrCurrent(cmd *cobra.Command, store *transcript.Store, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	current, ok, err := store.Current(cmd.Context())
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("no current session, pass --session")
	}
	return current, nil
}
