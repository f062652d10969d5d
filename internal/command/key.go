package command

import "strings"

const (
	prefixSlash      = "slashcmd"
	prefixSubcommand = "subcmd"
	prefixGroup      = "groupcmd"
	prefixContext    = "contextcmd"
)

// EventPath is the routing part of an inbound interaction: the invoked
// command name plus the optional subcommand group and subcommand.
type EventPath struct {
	Name       string
	Group      string
	Subcommand string
	Context    bool
}

// DispatchKey returns the registry key for a command at the given position.
// Directory segments are lowercased; context-menu names are lowercased whole.
func DispatchKey(kind Kind, dir, group, name string) string {
	switch kind {
	case KindSubcommand:
		return join(prefixSubcommand, strings.ToLower(dir), name)
	case KindGroup:
		return join(prefixGroup, strings.ToLower(group), strings.ToLower(dir), name)
	case KindContext:
		return join(prefixContext, strings.ToLower(name))
	}
	return join(prefixSlash, name)
}

// BuildDispatchKey reconstructs the key a loaded definition was stored under
// from an inbound event. It is the inverse of DispatchKey.
func BuildDispatchKey(p EventPath) string {
	switch {
	case p.Context:
		return DispatchKey(KindContext, "", "", p.Name)
	case p.Group != "" && p.Subcommand != "":
		return DispatchKey(KindGroup, p.Name, p.Group, p.Subcommand)
	case p.Subcommand != "":
		return DispatchKey(KindSubcommand, p.Name, "", p.Subcommand)
	}
	return DispatchKey(KindSlash, "", "", p.Name)
}

// PathOf returns the event that would invoke d.
func PathOf(d *Definition) EventPath {
	switch d.Kind {
	case KindSubcommand:
		return EventPath{Name: d.Dir, Subcommand: d.Name}
	case KindGroup:
		return EventPath{Name: d.Dir, Group: d.Group, Subcommand: d.Name}
	case KindContext:
		return EventPath{Name: d.Name, Context: true}
	}
	return EventPath{Name: d.Name}
}

func join(parts ...string) string {
	return strings.Join(parts, "_")
}
