// Package registry holds the live set of command definitions keyed by
// dispatch key. Readers never take a lock: the whole map is published through
// an atomic pointer and writers build a fresh copy before swapping it in.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/keshon/kupumalam/internal/command"

	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when a key or command name is not resolvable.
var ErrNotFound = errors.New("command not found")

// Source locates the command tree. Commands is required; ContextMenus may
// name a directory that does not exist.
type Source struct {
	FS           fs.FS
	Commands     string
	ContextMenus string
}

// LoadReport summarises one Load.
type LoadReport struct {
	Loaded  int
	Skipped []string
}

type table map[string]*command.Definition

// Registry is safe for concurrent use.
type Registry struct {
	src Source

	mu   sync.Mutex // serialises writers
	defs atomic.Pointer[table]
}

// New returns an empty registry reading from src.
func New(src Source) *Registry {
	r := &Registry{src: src}
	empty := table{}
	r.defs.Store(&empty)
	return r
}

// Load walks the whole tree and replaces the registry contents in a single
// swap. Units that cannot be parsed are logged and skipped.
func (r *Registry) Load() (LoadReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := table{}
	var report LoadReport
	err := r.walk(func(u unit) bool {
		def, err := u.parse(r.src.FS)
		if err != nil {
			log.Error().Err(err).Str("path", u.path).Msg("skipping command")
			report.Skipped = append(report.Skipped, u.path)
			return true
		}
		if prev, dup := next[def.Key]; dup {
			log.Warn().Str("key", def.Key).Str("path", u.path).Str("kept", prev.Source).Msg("duplicate dispatch key")
			report.Skipped = append(report.Skipped, u.path)
			return true
		}
		next[def.Key] = def
		log.Debug().Str("key", def.Key).Str("kind", def.Kind.String()).Msg("command loaded")
		return true
	})
	if err != nil {
		return report, err
	}

	r.defs.Store(&next)
	report.Loaded = len(next)
	return report, nil
}

// Reload re-reads the first unit whose declared name (or dispatch key)
// matches name and replaces only that entry.
func (r *Registry) Reload(name string) (*command.Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		found    *command.Definition
		parseErr error
	)
	err := r.walk(func(u unit) bool {
		def, err := u.parse(r.src.FS)
		if err != nil {
			if errors.Is(err, command.ErrMissingName) {
				return true
			}
			// the unit may be the one being fixed; remember and keep looking
			parseErr = err
			return true
		}
		if strings.EqualFold(def.Name, name) || def.Key == name {
			found = def
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		if parseErr != nil {
			return nil, fmt.Errorf("%w: %s (last parse error: %v)", ErrNotFound, name, parseErr)
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	cur := *r.defs.Load()
	next := make(table, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[found.Key] = found
	r.defs.Store(&next)

	log.Info().Str("key", found.Key).Str("path", found.Source).Msg("command reloaded")
	return found, nil
}

// ReloadPath re-reads the unit at p, as reported by a filesystem watcher.
func (r *Registry) ReloadPath(p string) (*command.Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var target *unit
	err := r.walk(func(u unit) bool {
		if u.path == p {
			target = &u
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	def, err := target.parse(r.src.FS)
	if err != nil {
		return nil, err
	}

	cur := *r.defs.Load()
	next := make(table, len(cur)+1)
	for k, v := range cur {
		if v.Source == p && k != def.Key {
			// the manifest was renamed; drop the old key
			continue
		}
		next[k] = v
	}
	next[def.Key] = def
	r.defs.Store(&next)

	log.Info().Str("key", def.Key).Str("path", p).Msg("command reloaded")
	return def, nil
}

// Resolve returns the definition stored under key.
func (r *Registry) Resolve(key string) (*command.Definition, error) {
	if def, ok := (*r.defs.Load())[key]; ok {
		return def, nil
	}
	return nil, ErrNotFound
}

// All returns every definition ordered by dispatch key.
func (r *Registry) All() []*command.Definition {
	cur := *r.defs.Load()
	out := make([]*command.Definition, 0, len(cur))
	for _, d := range cur {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of live definitions.
func (r *Registry) Len() int {
	return len(*r.defs.Load())
}

// Dirs lists every directory of the tree, for watchers.
func (r *Registry) Dirs() []string {
	var dirs []string
	for _, root := range []string{r.src.Commands, r.src.ContextMenus} {
		if root == "" {
			continue
		}
		_ = fs.WalkDir(r.src.FS, root, func(p string, d fs.DirEntry, err error) error {
			if err == nil && d.IsDir() {
				dirs = append(dirs, p)
			}
			return nil
		})
	}
	return dirs
}

type unit struct {
	path      string
	placement command.Placement
}

func (u unit) parse(fsys fs.FS) (*command.Definition, error) {
	data, err := fs.ReadFile(fsys, u.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u.path, err)
	}
	return command.ParseManifest(data, u.path, u.placement)
}

func isManifest(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// walk visits units in a stable order: top-level files and directories of the
// commands root, then context menus. visit returns false to stop early.
func (r *Registry) walk(visit func(unit) bool) error {
	entries, err := fs.ReadDir(r.src.FS, r.src.Commands)
	if err != nil {
		return fmt.Errorf("read command tree %s: %w", r.src.Commands, err)
	}

	for _, e := range entries {
		p := path.Join(r.src.Commands, e.Name())
		if !e.IsDir() {
			if isManifest(e.Name()) && !visit(unit{path: p, placement: command.Placement{Kind: command.KindSlash}}) {
				return nil
			}
			continue
		}
		if !r.walkDir(p, e.Name(), visit) {
			return nil
		}
	}

	if r.src.ContextMenus == "" {
		return nil
	}
	ctxEntries, err := fs.ReadDir(r.src.FS, r.src.ContextMenus)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read context menu tree %s: %w", r.src.ContextMenus, err)
	}
	for _, e := range ctxEntries {
		if e.IsDir() || !isManifest(e.Name()) {
			continue
		}
		if !visit(unit{path: path.Join(r.src.ContextMenus, e.Name()), placement: command.Placement{Kind: command.KindContext}}) {
			return nil
		}
	}
	return nil
}

func (r *Registry) walkDir(dirPath, dir string, visit func(unit) bool) bool {
	children, err := fs.ReadDir(r.src.FS, dirPath)
	if err != nil {
		log.Error().Err(err).Str("path", dirPath).Msg("skipping command directory")
		return true
	}
	for _, c := range children {
		p := path.Join(dirPath, c.Name())
		if !c.IsDir() {
			if isManifest(c.Name()) && !visit(unit{path: p, placement: command.Placement{Kind: command.KindSubcommand, Dir: dir}}) {
				return false
			}
			continue
		}
		group, err := fs.ReadDir(r.src.FS, p)
		if err != nil {
			log.Error().Err(err).Str("path", p).Msg("skipping command group")
			continue
		}
		for _, g := range group {
			if g.IsDir() || !isManifest(g.Name()) {
				continue
			}
			u := unit{path: path.Join(p, g.Name()), placement: command.Placement{Kind: command.KindGroup, Dir: dir, Group: c.Name()}}
			if !visit(u) {
				return false
			}
		}
	}
	return true
}
