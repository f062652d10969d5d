// Package store is a small JSON-file key/value store. Values live in memory
// and are flushed to disk atomically when they change.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("store: closed")

// Options configure a Store.
type Options struct {
	// FlushInterval is how often Run writes pending changes.
	FlushInterval time.Duration
	// Backups is how many timestamped copies of the previous file to keep.
	Backups int
}

// Store is safe for concurrent use.
type Store struct {
	path string
	opts Options

	mu       sync.RWMutex
	data     map[string]json.RawMessage
	checksum string
	closed   bool
}

// Open loads path, creating an empty store file if it does not exist.
func Open(path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, errors.New("store: empty path")
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 10 * time.Second
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	s := &Store{path: path, opts: opts, data: make(map[string]json.RawMessage)}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := writeAtomic(path, []byte("{}")); err != nil {
			return nil, fmt.Errorf("create store file: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("read store file: %w", err)
	default:
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("decode store file %s: %w", path, err)
		}
		s.checksum = checksum(raw)
	}
	return s, nil
}

// Get decodes the value at key into out. ok is false when key is absent.
func (s *Store) Get(key string, out any) (ok bool, err error) {
	s.mu.RLock()
	raw, found := s.data[key]
	s.mu.RUnlock()
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// Put stores value at key.
func (s *Store) Put(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.data[key] = raw
	return nil
}

func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Keys returns every key in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Flush writes the store to disk if it changed since the last write.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	sum := checksum(raw)
	if sum == s.checksum {
		return nil
	}
	if s.opts.Backups > 0 {
		if err := s.backup(); err != nil {
			log.Warn().Err(err).Str("path", s.path).Msg("store backup failed")
		}
	}
	if err := writeAtomic(s.path, raw); err != nil {
		return err
	}
	s.checksum = sum
	return nil
}

// Run flushes every FlushInterval until ctx is done, then flushes once more.
func (s *Store) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return s.Flush()
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				log.Error().Err(err).Str("path", s.path).Msg("store flush failed")
			}
		}
	}
}

// Close flushes and rejects further writes.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.flushLocked()
}

func (s *Store) backup() error {
	src, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer src.Close()

	name := fmt.Sprintf("%s.backup.%s", s.path, time.Now().Format("20060102_150405.000"))
	dst, err := os.Create(name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}

	old, err := filepath.Glob(s.path + ".backup.*")
	if err != nil || len(old) <= s.opts.Backups {
		return err
	}
	// timestamped names sort oldest first
	slices.Sort(old)
	for _, p := range old[:len(old)-s.opts.Backups] {
		_ = os.Remove(p)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
