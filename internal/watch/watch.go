// Package watch reports filesystem changes to a chronicle's files.
//
// Stores into mapped memory do not generate filesystem events, so records
// are never discovered through this package: readers poll Excerpt.Index.
// The watcher covers the lifecycle around that loop: waiting for a chronicle
// to be created, and noticing when its files are truncated (Clear) or
// removed.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"chronicle/internal/logging"

	"github.com/fsnotify/fsnotify"
)

type Kind uint8

const (
	Created Kind = iota + 1
	// Modified covers truncation and extension. Writes through a mapping do
	// not produce it.
	Modified
	Removed
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is one change to the data or index file.
type Event struct {
	Kind Kind
	Path string
	// Size is the file size after the change, or -1 if it could not be read.
	Size int64
}

// Index reports whether the event concerns the index file.
func (e Event) Index() bool { return filepath.Ext(e.Path) == ".index" }

// Watcher watches the directory holding one chronicle.
type Watcher struct {
	fsw    *fsnotify.Watcher
	files  map[string]bool
	logger *slog.Logger
}

// New starts watching the directory of the chronicle at basePath, creating
// the directory if needed.
func New(basePath string, logger *slog.Logger) (*Watcher, error) {
	dir := filepath.Dir(basePath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return &Watcher{
		fsw: fsw,
		files: map[string]bool{
			filepath.Clean(basePath + ".data"):  true,
			filepath.Clean(basePath + ".index"): true,
		},
		logger: logging.Component(logger, "watch", "path", basePath),
	}, nil
}

func (w *Watcher) Close() error { return w.fsw.Close() }

func (w *Watcher) allExist() bool {
	for name := range w.files {
		if _, err := os.Stat(name); err != nil {
			return false
		}
	}
	return true
}

// WaitForFiles blocks until both chronicle files exist.
func (w *Watcher) WaitForFiles(ctx context.Context) error {
	if w.allExist() {
		return nil
	}
	w.logger.Info("waiting for chronicle to be created")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if event.Has(fsnotify.Create) && w.files[filepath.Clean(event.Name)] && w.allExist() {
				return nil
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			w.logger.Warn("fsnotify error", "error", err)
		}
	}
}

// Run delivers events for the chronicle files to fn until ctx is done.
func (w *Watcher) Run(ctx context.Context, fn func(Event)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(event.Name)
			if !w.files[name] {
				continue
			}
			var kind Kind
			switch {
			case event.Has(fsnotify.Create):
				kind = Created
			case event.Has(fsnotify.Write):
				kind = Modified
			case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
				kind = Removed
			default:
				continue
			}
			size := int64(-1)
			if info, err := os.Stat(name); err == nil {
				size = info.Size()
			}
			fn(Event{Kind: kind, Path: name, Size: size})
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fsnotify error", "error", err)
		}
	}
}
