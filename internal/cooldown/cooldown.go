// Package cooldown implements the per-user, per-guild and global burst
// admission checks consulted on every dispatch.
package cooldown

import (
	"fmt"
	"hash/fnv"
	"slices"
	"strings"
	"sync"
	"time"
)

// Tier names one cooldown scope.
type Tier string

const (
	TierUser   Tier = "user"
	TierGuild  Tier = "guild"
	TierGlobal Tier = "global"
)

// Error reports a rejected admission. Remaining is whole seconds, at least one.
type Error struct {
	Tier      Tier
	Remaining time.Duration
	Command   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s on %s cooldown for %s", e.Command, e.Tier, e.Remaining)
}

// Override is a set of categories and command names sharing a default guild
// cooldown.
type Override struct {
	Categories []string
	Commands   []string
	Default    time.Duration
}

func (o Override) matches(name, category string) bool {
	if category != "" && slices.ContainsFunc(o.Categories, func(c string) bool { return strings.EqualFold(c, category) }) {
		return true
	}
	return slices.ContainsFunc(o.Commands, func(c string) bool { return strings.EqualFold(c, name) })
}

// Policy is the limiter configuration shared by every command.
type Policy struct {
	High        Override
	General     Override
	BurstMax    int
	BurstWindow time.Duration
}

// GuildDuration returns the guild-tier duration for a command: its own value
// if set, otherwise the first matching override default.
func (p Policy) GuildDuration(declared time.Duration, name, category string) time.Duration {
	if declared > 0 {
		return declared
	}
	if p.High.matches(name, category) {
		return p.High.Default
	}
	if p.General.matches(name, category) {
		return p.General.Default
	}
	return 0
}

// Request describes one admission check.
type Request struct {
	UserID  string
	GuildID string
	// Key identifies the command in cooldown maps; Name and Category select
	// override defaults.
	Key      string
	Name     string
	Category string
	User     time.Duration
	Guild    time.Duration
}

const shardCount = 32

// Limiter holds cooldown state for the life of the process. It is safe for
// concurrent use; each check is atomic per (tier, entity).
type Limiter struct {
	policy Policy
	now    func() time.Time

	users  [shardCount]expiryShard
	guilds [shardCount]expiryShard
	bursts [shardCount]windowShard
}

type expiryShard struct {
	mu sync.Mutex
	m  map[string]map[string]time.Time
}

type windowShard struct {
	mu sync.Mutex
	m  map[string][]time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New returns a limiter enforcing p.
func New(p Policy, opts ...Option) *Limiter {
	l := &Limiter{policy: p, now: time.Now}
	for i := range l.users {
		l.users[i].m = make(map[string]map[string]time.Time)
		l.guilds[i].m = make(map[string]map[string]time.Time)
		l.bursts[i].m = make(map[string][]time.Time)
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Policy returns the limiter configuration.
func (l *Limiter) Policy() Policy { return l.policy }

// Check runs the user, guild and global tiers in order and returns a *Error
// from the first tier that rejects. A tier that admits records the attempt
// before the next tier runs.
func (l *Limiter) Check(req Request) error {
	now := l.now()

	if req.User > 0 {
		if err := admit(shardOf(&l.users, req.UserID), req.UserID, req.Key, req.User, now); err != nil {
			err.Tier, err.Command = TierUser, req.Name
			return err
		}
	}

	if req.GuildID != "" {
		if d := l.policy.GuildDuration(req.Guild, req.Name, req.Category); d > 0 {
			if err := admit(shardOf(&l.guilds, req.GuildID), req.GuildID, req.Key, d, now); err != nil {
				err.Tier, err.Command = TierGuild, req.Name
				return err
			}
		}
	}

	if l.policy.BurstMax > 0 && l.policy.BurstWindow > 0 {
		if err := l.admitBurst(req.UserID, now); err != nil {
			err.Command = req.Name
			return err
		}
	}
	return nil
}

func shardOf[T any](shards *[shardCount]T, key string) *T {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &shards[h.Sum32()%shardCount]
}

func admit(s *expiryShard, entity, key string, d time.Duration, now time.Time) *Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byCmd := s.m[entity]
	if exp, ok := byCmd[key]; ok && now.Before(exp) {
		return &Error{Remaining: remaining(exp.Sub(now))}
	}
	if byCmd == nil {
		byCmd = make(map[string]time.Time)
		s.m[entity] = byCmd
	}
	byCmd[key] = now.Add(d)
	return nil
}

func (l *Limiter) admitBurst(userID string, now time.Time) *Error {
	s := shardOf(&l.bursts, userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	window := prune(s.m[userID], now, l.policy.BurstWindow)
	if len(window) >= l.policy.BurstMax {
		s.m[userID] = window
		return &Error{
			Tier:      TierGlobal,
			Remaining: remaining(window[0].Add(l.policy.BurstWindow).Sub(now)),
		}
	}
	s.m[userID] = append(window, now)
	return nil
}

// prune drops instants older than window, keeping the slice ordered.
func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(ts) && now.Sub(ts[i]) > window {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0:0], ts[i:]...)
}

func remaining(d time.Duration) time.Duration {
	r := d.Round(time.Second)
	if r < time.Second {
		return time.Second
	}
	return r
}

// Sweep removes expired entries and empty burst windows. It returns the
// number of entries removed.
func (l *Limiter) Sweep() int {
	now := l.now()
	removed := 0
	for _, shards := range []*[shardCount]expiryShard{&l.users, &l.guilds} {
		for i := range shards {
			s := &shards[i]
			s.mu.Lock()
			for entity, byCmd := range s.m {
				for k, exp := range byCmd {
					if !now.Before(exp) {
						delete(byCmd, k)
						removed++
					}
				}
				if len(byCmd) == 0 {
					delete(s.m, entity)
				}
			}
			s.mu.Unlock()
		}
	}
	for i := range l.bursts {
		s := &l.bursts[i]
		s.mu.Lock()
		for user, ts := range s.m {
			kept := prune(ts, now, l.policy.BurstWindow)
			removed += len(ts) - len(kept)
			if len(kept) == 0 {
				delete(s.m, user)
			} else {
				s.m[user] = kept
			}
		}
		s.mu.Unlock()
	}
	return removed
}
