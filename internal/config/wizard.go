package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard reading answers from in and writing prompts to out
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run runs the interactive configuration wizard starting from base
func (w *Wizard) Run(base *Config) (*Config, error) {
	fmt.Fprintln(w.out, "=== doctalk Configuration Wizard ===")
	fmt.Fprintln(w.out)

	cfg := *base
	validator := NewValidator()

	// Server
	fmt.Fprintln(w.out, "Server:")
	for {
		fmt.Fprintf(w.out, "Backend URL [%s]: ", cfg.Server.BaseURL)
		raw, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if raw == "" {
			break
		}
		if err := validator.ValidateURL("backend url", raw, "http", "https"); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Server.BaseURL = raw
		break
	}

	for {
		fmt.Fprintf(w.out, "Chat websocket URL (press Enter to derive from backend URL) [%s]: ", cfg.Server.WSURL)
		raw, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if raw == "" {
			break
		}
		if err := validator.ValidateURL("chat url", raw, "ws", "wss"); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Server.WSURL = raw
		break
	}

	fmt.Fprintln(w.out)

	// Reconnect policy
	fmt.Fprintln(w.out, "Reconnect:")
	retries, err := w.readInt(fmt.Sprintf("Max retries [%d]: ", cfg.Retry.MaxRetries), cfg.Retry.MaxRetries, 0, 10)
	if err != nil {
		return nil, err
	}
	cfg.Retry.MaxRetries = retries

	delay, err := w.readInt(fmt.Sprintf("Base delay in ms [%d]: ", cfg.Retry.BaseDelayMs), cfg.Retry.BaseDelayMs, 1, 600000)
	if err != nil {
		return nil, err
	}
	cfg.Retry.BaseDelayMs = delay

	fmt.Fprintln(w.out)

	// Log Level
	fmt.Fprintln(w.out, "Logging:")
	fmt.Fprintf(w.out, "Log level (debug/info/warn/error) [%s]: ", cfg.Logging.Level)
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}

	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Fprintf(w.out, "Warning: %v, keeping %s\n", err, cfg.Logging.Level)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return &cfg, nil
}

func (w *Wizard) readInt(prompt string, current, min, max int) (int, error) {
	for {
		fmt.Fprint(w.out, prompt)
		raw, err := w.readLine()
		if err != nil {
			return 0, err
		}
		if raw == "" {
			return current, nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < min || n > max {
			fmt.Fprintf(w.out, "Error: enter a number between %d and %d\n", min, max)
			continue
		}
		return n, nil
	}
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
