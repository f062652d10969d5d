package paginator

import (
	"context"
	"strings"
	"sync"

	"github.com/keshon/kupumalam/internal/reply"

	"github.com/google/uuid"
)

// CustomIDPrefix marks component and modal IDs owned by the paginator:
// "pager:<session>:<control>".
const CustomIDPrefix = "pager:"

// ParseCustomID splits a paginator custom ID. ok is false for IDs that belong
// to something else.
func ParseCustomID(id string) (session, part string, ok bool) {
	rest, found := strings.CutPrefix(id, CustomIDPrefix)
	if !found {
		return "", "", false
	}
	session, part, found = strings.Cut(rest, ":")
	if !found || session == "" || part == "" {
		return "", "", false
	}
	return session, part, true
}

// Manager tracks live sessions by ID and routes control interactions to
// them. Closed sessions are forgotten.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	defaults Options
}

// NewManager returns a manager whose sessions use defaults for any option
// left zero at Start.
func NewManager(defaults Options) *Manager {
	return &Manager{sessions: make(map[string]*Session), defaults: defaults}
}

// Start opens a session. It is registered before the first page is shown so
// an immediate click finds it.
func (m *Manager) Start(ctx context.Context, view View, pages []reply.Message, owner string, opts Options) (*Session, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = m.defaults.Timeout
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = m.defaults.AfterFunc
	}
	id := uuid.NewString()
	opts.OnClose = func() { m.forget(id) }

	s, err := newSession(id, view, pages, owner, opts)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	if err := s.start(ctx, opts); err != nil {
		m.forget(id)
		return nil, err
	}
	return s, nil
}

// Get returns the live session with id, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// HandleComponent routes a button press. handled is false when customID is
// not a paginator ID. A press on a session that has closed is handled and
// ignored.
func (m *Manager) HandleComponent(ctx context.Context, customID, actorID string, r ControlReply) (handled bool, err error) {
	id, part, ok := ParseCustomID(customID)
	if !ok || part == modalSuffix {
		return false, nil
	}
	s := m.Get(id)
	if s == nil {
		return true, nil
	}
	return true, s.OnControl(ctx, actorID, Control(part), r)
}

// HandleModal routes a goto modal submission. values maps text input IDs to
// what the user typed.
func (m *Manager) HandleModal(ctx context.Context, customID, actorID string, values map[string]string, r ControlReply) (handled bool, err error) {
	id, part, ok := ParseCustomID(customID)
	if !ok || part != modalSuffix {
		return false, nil
	}
	s := m.Get(id)
	if s == nil {
		return true, nil
	}
	return true, s.SubmitGoto(ctx, actorID, values[PageInput], r)
}

// CloseAll closes every live session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	for _, s := range live {
		s.Close()
	}
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}
