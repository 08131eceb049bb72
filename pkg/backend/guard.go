package backend

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxBytes is the largest document accepted for upload.
const DefaultMaxBytes int64 = 10 * 1024 * 1024

// DefaultAllowedExtensions lists the document types accepted for upload.
var DefaultAllowedExtensions = []string{".pdf", ".docx", ".doc", ".txt"}

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrEmptyFile       = errors.New("file is empty")
)

// Guard rejects documents the service would refuse before any bytes are sent.
type Guard struct {
	MaxBytes          int64
	AllowedExtensions []string
}

// DefaultGuard returns the stock upload guard
func DefaultGuard() Guard {
	return Guard{MaxBytes: DefaultMaxBytes, AllowedExtensions: DefaultAllowedExtensions}
}

// Check validates the file at path and returns its size.
func (g Guard) Check(path string) (int64, error) {
	if err := g.checkExtension(path); err != nil {
		return 0, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat document: %w", err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%s: %w", filepath.Base(path), ErrEmptyFile)
	}
	if g.MaxBytes > 0 && info.Size() > g.MaxBytes {
		return 0, fmt.Errorf("%s is %d bytes, limit is %d: %w", filepath.Base(path), info.Size(), g.MaxBytes, ErrFileTooLarge)
	}
	return info.Size(), nil
}

func (g Guard) checkExtension(path string) error {
	if len(g.AllowedExtensions) == 0 {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range g.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return nil
		}
	}
	return fmt.Errorf("%s: %w (allowed: %s)", filepath.Base(path), ErrUnsupportedType, strings.Join(g.AllowedExtensions, ", "))
}
