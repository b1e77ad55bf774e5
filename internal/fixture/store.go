package fixture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Store tracks the current snapshot of one datastore file.
//
// The file is opened, read and closed on every Reload; no handle or lock is
// held between calls because the application under test is the only writer.
type Store struct {
	path   string
	logger *slog.Logger

	mu         sync.RWMutex
	current    *Snapshot
	generation int64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used for reload and watch events.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open loads path and returns a Store positioned at generation 1.
func Open(path string, opts ...StoreOption) (*Store, error) {
	s := NewStore(path, opts...)
	if _, err := s.Reload(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStore returns a Store for path without reading it.
func NewStore(path string, opts ...StoreOption) *Store {
	s := &Store{
		path:   path,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the datastore path.
func (s *Store) Path() string {
	return s.path
}

// Snapshot returns the current snapshot, or nil before the first Reload.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Reload re-reads the datastore and replaces the current snapshot.
// On failure the previous snapshot is kept and the error is returned.
func (s *Store) Reload(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap, err := Load(s.path)
	if err != nil {
		s.logger.Debug("datastore reload failed", "path", s.path, "error", err)
		return nil, err
	}

	s.mu.Lock()
	s.generation++
	snap.Generation = s.generation
	s.current = snap
	s.mu.Unlock()

	s.logger.Debug("datastore reloaded",
		"path", s.path,
		"generation", snap.Generation,
		"users", len(snap.Users),
		"comments", len(snap.Comments),
	)
	return snap, nil
}

// Watch signals on the returned channel whenever the datastore file is written
// or replaced. Signals are coalesced: the channel has capacity one and a
// pending signal is never duplicated. The watcher stops when ctx is done.
//
// The parent directory is watched rather than the file itself so that
// atomic rename-over writes are observed too.
func (s *Store) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create datastore watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	changes := make(chan struct{}, 1)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case changes <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Debug("datastore watcher error", "path", s.path, "error", err)
			}
		}
	}()

	return changes, nil
}
