// ABOUTME: File-backed credential store writing a sealed token pair atomically
// ABOUTME: Loading a missing file reports "no pair"; unreadable or unsealable files report errors

package credstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/2389/coven-client/internal/auth"
	"github.com/2389/coven-client/internal/fsutil"
)

// FileStore keeps the sealed pair in a single file.
type FileStore struct {
	mu     sync.Mutex
	path   string
	sealer *sealer
	logger *slog.Logger
}

// NewFileStore creates a store at path, sealing with a key derived from secret.
// Parent directories are created if needed.
func NewFileStore(path string, secret []byte) (*FileStore, error) {
	s, err := newSealer(secret, "file")
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating credentials directory: %w", err)
	}

	return &FileStore{
		path:   path,
		sealer: s,
		logger: slog.Default().With("component", "credstore", "backend", "file"),
	}, nil
}

// Load reads and opens the stored pair.
func (f *FileStore) Load(_ context.Context) (auth.TokenPair, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	blob, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return auth.TokenPair{}, false, nil
	}
	if err != nil {
		return auth.TokenPair{}, false, fmt.Errorf("reading credentials: %w", err)
	}

	pair, err := f.sealer.open(blob)
	if err != nil {
		return auth.TokenPair{}, false, err
	}
	return pair, true, nil
}

// Save seals the pair and atomically replaces the file.
func (f *FileStore) Save(_ context.Context, pair auth.TokenPair) error {
	if err := validate(pair); err != nil {
		return err
	}

	blob, err := f.sealer.seal(pair)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := fsutil.WriteFileAtomic(f.path, blob, 0600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}

	f.logger.Debug("saved credentials", "path", f.path)
	return nil
}

// Clear removes the file.
func (f *FileStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing credentials: %w", err)
	}
	return nil
}
