// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/persona-chat/internal/logging"
)

// =============================================================================
// CONFIG WATCHER
// =============================================================================

// debounceWindow suppresses the duplicate events editors emit when they
// save a file (write + chmod, or remove + create for atomic renames).
const debounceWindow = 250 * time.Millisecond

// Watcher watches the config file for changes and invokes a callback with
// the freshly loaded configuration. Reload failures keep the previous
// config and are logged.
type Watcher struct {
	path     string
	onChange func(*Config)

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	lastFire time.Time
	running  bool
}

// NewWatcher creates a watcher for the given config file path.
// The callback runs on the watcher goroutine.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		path:     path,
		onChange: onChange,
		watcher:  fw,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Watch starts watching the config file's directory. Watching the directory
// rather than the file survives atomic-rename saves.
func (w *Watcher) Watch() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	go w.processEvents()
	return nil
}

// Stop stops the watcher and releases its resources.
func (w *Watcher) Stop() error {
	w.cancel()
	return w.watcher.Close()
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !w.shouldFire() {
				continue
			}
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warnf("config watcher error: %v", err)
		}
	}
}

func (w *Watcher) shouldFire() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	if now.Sub(w.lastFire) < debounceWindow {
		return false
	}
	w.lastFire = now
	return true
}

func (w *Watcher) reload() {
	cfg, err := LoadFromPath(w.path)
	if err != nil {
		logging.Warnf("config reload failed, keeping previous config: %v", err)
		return
	}
	logging.Infof("config reloaded from %s", w.path)
	w.onChange(cfg)
}
