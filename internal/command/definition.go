// Package command defines the loaded shape of a bot command: its identity in
// the dispatch hierarchy, the policy the dispatch pipeline enforces for it, and
// the option descriptors handed to the platform when commands are published.
package command

import "time"

// Kind is the position of a command in the dispatch hierarchy.
type Kind int

const (
	KindSlash Kind = iota
	KindSubcommand
	KindGroup
	KindContext
)

func (k Kind) String() string {
	switch k {
	case KindSlash:
		return "slash"
	case KindSubcommand:
		return "subcommand"
	case KindGroup:
		return "group"
	case KindContext:
		return "context"
	}
	return "unknown"
}

// ContextType selects the target of a context-menu command.
type ContextType int

const (
	ContextMessage ContextType = iota
	ContextUser
)

// Cooldown holds per-tier durations. Zero disables a tier unless a category
// default applies to it.
type Cooldown struct {
	User  time.Duration
	Guild time.Duration
	// Global is decoded from manifests but not enforced. The burst tier is
	// process-wide and configured by COOLDOWN_BURST_MAX and
	// COOLDOWN_BURST_WINDOW, never per command.
	Global time.Duration
}

// Response is a static reply rendered by the built-in "respond" handler.
type Response struct {
	Content     string `yaml:"content"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Ephemeral   bool   `yaml:"ephemeral"`
}

// Definition is one loaded command. A Definition is never mutated once it is
// stored in a registry; reloads replace the pointer.
type Definition struct {
	Key         string
	Kind        Kind
	Name        string
	Description string
	Category    string

	// Dir is the top-level command a subcommand belongs to, Group the
	// subcommand group between them. Both are lowercase.
	Dir   string
	Group string

	Cooldown           Cooldown
	GuildOnly          bool
	DeveloperOnly      bool
	Hidden             bool
	MustPermissions    []int64
	AllowedPermissions []int64
	Options            []Option

	// Handler names the compiled command body bound to this definition.
	Handler     string
	Response    *Response
	ContextType ContextType

	// Source is the manifest path the definition was read from.
	Source string
}

// Path returns the invocation path as typed by a user, e.g. "/developers reload command".
func (d *Definition) Path() string {
	switch d.Kind {
	case KindSubcommand:
		return "/" + d.Dir + " " + d.Name
	case KindGroup:
		return "/" + d.Dir + " " + d.Group + " " + d.Name
	case KindContext:
		return d.Name
	}
	return "/" + d.Name
}
