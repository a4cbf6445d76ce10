package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const fileSuffix = ".json"

// FileBackend stores each key in its own file under a directory.
//
// Writes go to a hidden temp file that is fsynced and renamed over the
// target, so readers in other processes never observe a partial value.
type FileBackend struct {
	dir    string
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	nextID uint64
	stops  map[uint64]func()
}

// NewFileBackend creates dir (0700) if needed and returns a backend rooted
// there.
func NewFileBackend(dir string, logger *slog.Logger) (*FileBackend, error) {
	if dir == "" {
		return nil, fmt.Errorf("file backend: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("file backend: create dir: %w", err)
	}
	return &FileBackend{dir: dir, logger: logger, stops: make(map[uint64]func())}, nil
}

// Dir returns the backend directory.
func (f *FileBackend) Dir() string {
	return f.dir
}

// Path returns the file that holds key.
func (f *FileBackend) Path(key string) string {
	return filepath.Join(f.dir, url.PathEscape(key)+fileSuffix)
}

// keyFromPath is the inverse of Path; ok is false for foreign files.
func (f *FileBackend) keyFromPath(path string) (string, bool) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileSuffix) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimSuffix(name, fileSuffix))
	if err != nil {
		return "", false
	}
	return key, true
}

// Get reads the file for key.
func (f *FileBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("file backend: read: %w", err)
	}
	return data, nil
}

// Set atomically replaces the file for key.
func (f *FileBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := f.checkOpen(); err != nil {
		return err
	}

	target := f.Path(key)
	tmp, err := os.CreateTemp(f.dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("file backend: create temp: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if err := tmp.Chmod(0o600); err != nil {
		cleanup()
		return fmt.Errorf("file backend: chmod: %w", err)
	}
	if _, err := tmp.Write(value); err != nil {
		cleanup()
		return fmt.Errorf("file backend: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("file backend: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file backend: close: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file backend: rename: %w", err)
	}
	return nil
}

// Delete removes the file for key. A missing file is not an error.
func (f *FileBackend) Delete(ctx context.Context, key string) error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if err := os.Remove(f.Path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("file backend: remove: %w", err)
	}
	return nil
}

// Watch implements Watcher with an fsnotify watch on the directory.
// The directory, not the file, is watched so that renames over the
// target are seen.
func (f *FileBackend) Watch(fn func(Change)) (func(), error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("file backend: new watcher: %w", err)
	}
	if err := w.Add(f.dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("file backend: watch %s: %w", f.dir, err)
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		w.Close()
		return nil, ErrClosed
	}
	f.nextID++
	id := f.nextID

	done := make(chan struct{})

	// stop does not wait for the loop, so fn may call it.
	var once sync.Once
	stop := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.stops, id)
			f.mu.Unlock()
			close(done)
			w.Close()
		})
	}
	f.stops[id] = stop
	f.mu.Unlock()

	go f.watchLoop(w, done, fn)

	f.logger.Debug("watching session directory", "dir", f.dir)
	return stop, nil
}

func (f *FileBackend) watchLoop(w *fsnotify.Watcher, done <-chan struct{}, fn func(Change)) {
	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			key, ok := f.keyFromPath(event.Name)
			if !ok {
				continue
			}

			var op ChangeOp
			switch {
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				op = OpSet
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				op = OpDelete
			default:
				continue
			}

			select {
			case <-done:
				return
			default:
			}
			fn(Change{Key: key, Op: op})

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			f.logger.Error("session directory watcher error", "error", err)

		case <-done:
			return
		}
	}
}

// Close stops all watchers.
func (f *FileBackend) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	stops := make([]func(), 0, len(f.stops))
	for _, stop := range f.stops {
		stops = append(stops, stop)
	}
	f.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	return nil
}

func (f *FileBackend) checkOpen() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrClosed
	}
	return nil
}
