// Package jobmgr runs named background jobs that can be stopped by name and
// are all cancelled together at shutdown.
//
//	jm := jobmgr.NewManager(ctx)
//	_ = jm.Start("cooldown-sweeper", func(ctx context.Context) error {
//	    return limiter.RunSweeper(ctx, time.Minute)
//	})
//	defer jm.Shutdown()
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

var ErrNotRunning = errors.New("jobmgr: job not running")

// Status is a job lifecycle event.
type Status string

const (
	Running Status = "running"
	Done    Status = "done"
	Failed  Status = "error"
)

// Reporter receives lifecycle events. err is set for Failed.
type Reporter func(name string, s Status, err error)

// LogReporter writes lifecycle events to the global zerolog logger.
func LogReporter(name string, s Status, err error) {
	switch s {
	case Failed:
		log.Error().Err(err).Str("job", name).Msg("job failed")
	case Running:
		log.Debug().Str("job", name).Msg("job started")
	default:
		log.Debug().Str("job", name).Msg("job finished")
	}
}

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager is safe for concurrent use.
type Manager struct {
	parent   context.Context
	reporter Reporter

	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup
}

// NewManager returns a manager whose jobs derive from parent.
func NewManager(parent context.Context, opts ...Option) *Manager {
	m := &Manager{parent: parent, reporter: LogReporter, jobs: make(map[string]*job)}
	for _, o := range opts {
		o(m)
	}
	return m
}

type Option func(*Manager)

// WithReporter replaces LogReporter. A nil reporter silences events.
func WithReporter(r Reporter) Option {
	return func(m *Manager) { m.reporter = r }
}

// Start runs fn in its own goroutine under name. A panic in fn is recovered
// and reported as a failure. Starting a name that is already running is an
// error.
func (m *Manager) Start(name string, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[name]; exists {
		return fmt.Errorf("job %q is already running", name)
	}

	ctx, cancel := context.WithCancel(m.parent)
	j := &job{cancel: cancel, done: make(chan struct{})}
	m.jobs[name] = j
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		defer close(j.done)
		defer m.remove(name, j)
		defer cancel()

		m.report(name, Running, nil)
		if err := run(ctx, fn); err != nil && !errors.Is(err, context.Canceled) {
			m.report(name, Failed, err)
			return
		}
		m.report(name, Done, nil)
	}()
	return nil
}

func run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
		}
	}()
	return fn(ctx)
}

// Stop cancels the job and waits for it to return.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	j, ok := m.jobs[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	j.cancel()
	<-j.done
	return nil
}

// Shutdown cancels every job and waits for all of them.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for _, j := range m.jobs {
		j.cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// List returns the running job names, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Status summarises running jobs, e.g. "Running jobs: presence, sweeper".
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return "Running jobs: " + strings.Join(active, ", ")
}

func (m *Manager) remove(name string, j *job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jobs[name] == j {
		delete(m.jobs, name)
	}
}

func (m *Manager) report(name string, s Status, err error) {
	if m.reporter != nil {
		m.reporter(name, s, err)
	}
}
