// Package paginator drives multi-page replies navigated with buttons and a
// page-number modal. A session is Active until stop or timeout, then Closed
// for good.
package paginator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/keshon/kupumalam/internal/logging"
	"github.com/keshon/kupumalam/internal/reply"

	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidArgument is returned by Start when there is nothing to page.
	ErrInvalidArgument = errors.New("paginator: pages must not be empty")
	// ErrValidation is returned for an unusable page number. The session stays
	// open and keeps its page.
	ErrValidation = errors.New("paginator: invalid page number")
)

// Control is one navigation button.
type Control string

const (
	Prev Control = "prev"
	Home Control = "home"
	Next Control = "next"
	Goto Control = "goto"
	Stop Control = "stop"
)

const (
	// minGotoPages is the smallest page count that enables the goto control.
	minGotoPages = 5

	modalSuffix = "goto-modal"
	// PageInput is the text input ID of the goto modal.
	PageInput = "page-number"

	DefaultTimeout = time.Minute
)

// View is the paged message itself.
type View interface {
	// Show sends the first page as the reply to the invoking interaction.
	Show(ctx context.Context, m reply.Message) error
	// Edit changes the paged message outside of any control interaction.
	Edit(ctx context.Context, m reply.Message) error
}

// ControlReply answers one button press or modal submission.
type ControlReply interface {
	// Update replaces the paged message in response to the interaction.
	Update(ctx context.Context, m reply.Message) error
	// Reply sends a separate message, used for transient notices.
	Reply(ctx context.Context, m reply.Message) error
	ShowModal(ctx context.Context, m reply.Modal) error
}

// Timer is the part of *time.Timer a session uses.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Options tune a session.
type Options struct {
	Timeout   time.Duration
	Ephemeral bool
	// AfterFunc replaces time.AfterFunc.
	AfterFunc AfterFunc
	// OnClose runs once when the session closes, with the session locked.
	OnClose func()
}

// Session is one live paged reply. Control handling is serialised per
// session; distinct sessions share nothing.
type Session struct {
	id    string
	owner string
	pages []reply.Message
	view  View

	mu      sync.Mutex
	index   int
	closed  bool
	timer   Timer
	onClose func()
}

// Start shows page 0 to the owner with navigation controls attached. The
// timeout runs from here and is not extended by navigation.
func Start(ctx context.Context, id string, view View, pages []reply.Message, owner string, opts Options) (*Session, error) {
	s, err := newSession(id, view, pages, owner, opts)
	if err != nil {
		return nil, err
	}
	if err := s.start(ctx, opts); err != nil {
		return nil, err
	}
	return s, nil
}

func newSession(id string, view View, pages []reply.Message, owner string, opts Options) (*Session, error) {
	if len(pages) == 0 {
		return nil, ErrInvalidArgument
	}
	return &Session{
		id:      id,
		owner:   owner,
		pages:   append([]reply.Message(nil), pages...),
		view:    view,
		onClose: opts.OnClose,
	}, nil
}

func (s *Session) start(ctx context.Context, opts Options) error {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	after := opts.AfterFunc
	if after == nil {
		after = stdAfterFunc
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	first := s.render()
	first.Ephemeral = opts.Ephemeral
	if err := s.view.Show(ctx, first); err != nil {
		return fmt.Errorf("show first page: %w", err)
	}
	s.timer = after(opts.Timeout, s.expire)
	return nil
}

func (s *Session) ID() string { return s.id }

// Index returns the zero-based current page.
func (s *Session) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// OnControl applies one button press. Presses by anyone but the owner, and
// anything after Closed, are ignored.
func (s *Session) OnControl(ctx context.Context, actorID string, c Control, r ControlReply) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || actorID != s.owner {
		return nil
	}

	switch c {
	case Prev:
		s.index = max(s.index-1, 0)
	case Home:
		s.index = 0
	case Next:
		s.index = min(s.index+1, len(s.pages)-1)
	case Goto:
		if len(s.pages) < minGotoPages {
			return r.Reply(ctx, reply.Text("Go to page is disabled for less than 5 pages.").Private())
		}
		return r.ShowModal(ctx, s.gotoModal())
	case Stop:
		s.closeLocked()
		return r.Update(ctx, s.render())
	default:
		return fmt.Errorf("paginator: unknown control %q", c)
	}
	return r.Update(ctx, s.render())
}

// SubmitGoto handles the goto modal. value is the 1-based page number as
// typed by the owner.
func (s *Session) SubmitGoto(ctx context.Context, actorID, value string, r ControlReply) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || actorID != s.owner {
		return nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 1 || n > len(s.pages) {
		msg := fmt.Sprintf("Invalid page number. Please choose a number between 1 and %d.", len(s.pages))
		if rerr := r.Reply(ctx, reply.Text(msg).Private()); rerr != nil {
			return rerr
		}
		return fmt.Errorf("%w: %q", ErrValidation, value)
	}
	s.index = n - 1
	return r.Update(ctx, s.render())
}

// Close stops the session without a control interaction, e.g. at shutdown.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) expire() {
	defer logging.Recover("paginator.expire")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closeLocked()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.view.Edit(ctx, s.render()); err != nil {
		log.Debug().Err(err).Str("session", s.id).Msg("paged message no longer editable")
	}
}

func (s *Session) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.onClose != nil {
		s.onClose()
	}
}

// render returns the current page with its control row. Must hold s.mu or
// be called before the session is shared.
func (s *Session) render() reply.Message {
	m := s.pages[s.index]
	m.Ephemeral = false
	m.Buttons = s.controls()
	return m
}

func (s *Session) controls() []reply.Button {
	last := len(s.pages) - 1
	gotoBtn := reply.Button{ID: s.customID(string(Goto)), Style: reply.Secondary, Disabled: s.closed || len(s.pages) < minGotoPages}
	if len(s.pages) >= minGotoPages {
		gotoBtn.Emoji = "🔢"
	} else {
		gotoBtn.Label = "\u200b"
	}
	return []reply.Button{
		{ID: s.customID(string(Prev)), Emoji: "◀️", Style: reply.Secondary, Disabled: s.closed || s.index == 0},
		{ID: s.customID(string(Home)), Emoji: "🏠", Style: reply.Secondary, Disabled: s.closed},
		{ID: s.customID(string(Next)), Emoji: "▶️", Style: reply.Secondary, Disabled: s.closed || s.index == last},
		gotoBtn,
		{ID: s.customID(string(Stop)), Emoji: "⏹", Style: reply.Secondary, Disabled: s.closed},
	}
}

func (s *Session) gotoModal() reply.Modal {
	return reply.Modal{
		ID:    s.customID(modalSuffix),
		Title: "Go to Page",
		Inputs: []reply.TextInput{{
			ID:          PageInput,
			Label:       "Page Number",
			Placeholder: fmt.Sprintf("1 - %d", len(s.pages)),
			Required:    true,
		}},
	}
}

func (s *Session) customID(part string) string {
	return CustomIDPrefix + s.id + ":" + part
}
