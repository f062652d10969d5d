package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/keshon/kupumalam/internal/logging"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const watchDebounce = 250 * time.Millisecond

// Watcher reloads single commands when their manifest changes on disk.
// BaseDir is the OS directory the registry's FS is rooted at.
type Watcher struct {
	reg     *Registry
	baseDir string
	fsw     *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher starts watching every directory of reg's tree.
func NewWatcher(reg *Registry, baseDir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		reg:     reg,
		baseDir: baseDir,
		fsw:     fsw,
		pending: make(map[string]*time.Timer),
	}
	for _, d := range reg.Dirs() {
		if err := fsw.Add(filepath.Join(baseDir, filepath.FromSlash(d))); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Run processes filesystem events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			for _, t := range w.pending {
				t.Stop()
			}
			w.mu.Unlock()
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("command watcher error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
		if err := w.fsw.Add(ev.Name); err != nil {
			log.Warn().Err(err).Str("dir", ev.Name).Msg("cannot watch new command directory")
		}
		return
	}
	if !isManifest(ev.Name) {
		return
	}
	rel, err := filepath.Rel(w.baseDir, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[rel]; ok {
		t.Reset(watchDebounce)
		return
	}
	w.pending[rel] = time.AfterFunc(watchDebounce, func() {
		defer logging.Recover("command watcher")
		w.mu.Lock()
		delete(w.pending, rel)
		w.mu.Unlock()

		if _, err := w.reg.ReloadPath(rel); err != nil && !errors.Is(err, ErrNotFound) {
			log.Error().Err(err).Str("path", rel).Msg("hot reload failed")
		}
	})
}
