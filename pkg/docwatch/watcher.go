// Package docwatch watches an uploaded document and reports when its
// content settles after a change, so the document can be uploaded again.
package docwatch

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ChangeCallback is called once per settled change of the watched file.
type ChangeCallback func(path string) error

// Config holds watcher configuration
type Config struct {
	Path               string
	StabilityThreshold time.Duration
	OnChange           ChangeCallback
	Logger             zerolog.Logger
}

// Watcher reports settled writes to a single file. It watches the parent
// directory so editors that replace the file on save are still seen.
type Watcher struct {
	watcher            *fsnotify.Watcher
	path               string
	stabilityThreshold time.Duration
	onChange           ChangeCallback
	logger             zerolog.Logger

	done      chan struct{}
	debounce  *time.Timer
	armed     uint64
	mu        sync.Mutex
	stopOnce  sync.Once
	startOnce sync.Once
}

// New creates a watcher for cfg.Path
func New(cfg Config) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, errors.New("path is required")
	}
	if cfg.OnChange == nil {
		return nil, errors.New("change callback is required")
	}
	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	if cfg.StabilityThreshold == 0 {
		cfg.StabilityThreshold = 500 * time.Millisecond
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		watcher:            watcher,
		path:               path,
		stabilityThreshold: cfg.StabilityThreshold,
		onChange:           cfg.OnChange,
		logger:             cfg.Logger,
		done:               make(chan struct{}),
	}, nil
}

// Path returns the absolute path being watched
func (w *Watcher) Path() string {
	return w.path
}

// Start begins watching
func (w *Watcher) Start() error {
	var err error
	w.startOnce.Do(func() {
		if addErr := w.watcher.Add(filepath.Dir(w.path)); addErr != nil {
			err = fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), addErr)
			return
		}
		go w.eventLoop()
		w.logger.Info().Str("path", w.path).Msg("Document watcher started")
	})
	return err
}

// Stop stops watching and drops any pending change
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)

		w.mu.Lock()
		if w.debounce != nil {
			w.debounce.Stop()
			w.debounce = nil
		}
		w.mu.Unlock()

		if closeErr := w.watcher.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close watcher: %w", closeErr)
			return
		}
		w.logger.Info().Str("path", w.path).Msg("Document watcher stopped")
	})
	return err
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	// Removal alone is not a new version; the following create or write is.
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	w.schedule()
}

// schedule restarts the stability timer; only the last event of a burst fires.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.armed++
	generation := w.armed
	w.debounce = time.AfterFunc(w.stabilityThreshold, func() {
		w.fire(generation)
	})
}

// fire reports the change armed as generation. A timer that fired while a
// newer one was being armed is stale and does nothing.
func (w *Watcher) fire(generation uint64) {
	w.mu.Lock()
	if generation != w.armed {
		w.mu.Unlock()
		return
	}
	w.debounce = nil
	w.mu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}

	if err := w.onChange(w.path); err != nil {
		w.logger.Error().Err(err).Str("path", w.path).Msg("Error handling document change")
	}
}
