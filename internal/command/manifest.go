package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingName is returned for manifests that do not declare a name.
	ErrMissingName = errors.New("manifest does not declare a name")
	// ErrSegmentUnderscore is returned for manifests under a directory whose
	// name contains "_". Dispatch keys join segments with "_", so such a
	// directory could collide with another command's key.
	ErrSegmentUnderscore = errors.New(`command directory names must not contain "_"`)
)

// Duration decodes either a Go duration string ("5s", "400ms") or a bare
// integer number of milliseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = 0
		return nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, raw)
	}
	*d = Duration(v)
	return nil
}

type manifest struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	Cooldown    struct {
		User   Duration `yaml:"user"`
		Guild  Duration `yaml:"guild"`
		Global Duration `yaml:"global"`
	} `yaml:"cooldown"`
	GuildOnly          bool             `yaml:"guild_only"`
	DeveloperOnly      bool             `yaml:"developer_only"`
	Hidden             bool             `yaml:"hidden"`
	MustPermissions    []string         `yaml:"must_permissions"`
	AllowedPermissions []string         `yaml:"allowed_permissions"`
	Options            []optionManifest `yaml:"options"`
	Handler            string           `yaml:"handler"`
	Response           *Response        `yaml:"response"`
	Type               string           `yaml:"type"`
}

type optionManifest struct {
	Name         string           `yaml:"name"`
	Description  string           `yaml:"description"`
	Type         string           `yaml:"type"`
	Required     bool             `yaml:"required"`
	Min          *float64         `yaml:"min"`
	Max          *float64         `yaml:"max"`
	MinLength    *int             `yaml:"min_length"`
	MaxLength    *int             `yaml:"max_length"`
	Choices      []choiceManifest `yaml:"choices"`
	ChannelTypes []string         `yaml:"channel_types"`
}

type choiceManifest struct {
	Name  string    `yaml:"name"`
	Value yaml.Node `yaml:"value"`
}

// Placement tells ParseManifest where in the source tree a manifest was found.
type Placement struct {
	Kind  Kind
	Dir   string
	Group string
}

const defaultDescription = "No description provided"

// ParseManifest decodes one manifest into a Definition placed at p.
func ParseManifest(data []byte, source string, p Placement) (*Definition, error) {
	if strings.Contains(p.Dir, "_") || strings.Contains(p.Group, "_") {
		return nil, fmt.Errorf("%s: %w", source, ErrSegmentUnderscore)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", source, err)
	}
	if strings.TrimSpace(m.Name) == "" {
		return nil, fmt.Errorf("%s: %w", source, ErrMissingName)
	}

	def := &Definition{
		Kind:          p.Kind,
		Name:          strings.TrimSpace(m.Name),
		Description:   m.Description,
		Category:      m.Category,
		Dir:           strings.ToLower(p.Dir),
		Group:         strings.ToLower(p.Group),
		GuildOnly:     m.GuildOnly,
		DeveloperOnly: m.DeveloperOnly,
		Hidden:        m.Hidden,
		Handler:       m.Handler,
		Response:      m.Response,
		Source:        source,
		Cooldown: Cooldown{
			User:   time.Duration(m.Cooldown.User),
			Guild:  time.Duration(m.Cooldown.Guild),
			Global: time.Duration(m.Cooldown.Global),
		},
	}
	if p.Kind != KindContext {
		def.Name = strings.ToLower(def.Name)
	}
	if def.Description == "" && p.Kind != KindContext {
		def.Description = defaultDescription
	}
	if def.Handler == "" {
		if def.Response != nil {
			def.Handler = "respond"
		} else {
			def.Handler = def.Name
		}
	}

	switch strings.ToLower(m.Type) {
	case "", "message":
		def.ContextType = ContextMessage
	case "user":
		def.ContextType = ContextUser
	default:
		return nil, fmt.Errorf("%s: unknown context type %q", source, m.Type)
	}

	var err error
	if def.MustPermissions, err = parsePermissions(m.MustPermissions); err != nil {
		return nil, fmt.Errorf("%s: must_permissions: %w", source, err)
	}
	if def.AllowedPermissions, err = parsePermissions(m.AllowedPermissions); err != nil {
		return nil, fmt.Errorf("%s: allowed_permissions: %w", source, err)
	}

	for _, om := range m.Options {
		opt, err := om.option()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		def.Options = append(def.Options, opt)
	}

	def.Key = DispatchKey(def.Kind, def.Dir, def.Group, def.Name)
	return def, nil
}

func parsePermissions(names []string) ([]int64, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]int64, 0, len(names))
	for _, n := range names {
		bit, err := ParsePermission(n)
		if err != nil {
			return nil, err
		}
		out = append(out, bit)
	}
	return out, nil
}

func (om optionManifest) option() (Option, error) {
	kind, err := ParseOptionKind(om.Type)
	if err != nil {
		return Option{}, fmt.Errorf("option %s: %w", om.Name, err)
	}
	opt := Option{
		Kind:        kind,
		Name:        strings.ToLower(om.Name),
		Description: om.Description,
		Required:    om.Required,
	}
	if opt.Description == "" {
		opt.Description = defaultDescription
	}

	switch kind {
	case OptionString:
		opt.MinLength, opt.MaxLength = om.MinLength, om.MaxLength
	case OptionNumber:
		opt.MinValue, opt.MaxValue = om.Min, om.Max
	case OptionChannel:
		for _, ct := range om.ChannelTypes {
			t, err := parseChannelType(ct)
			if err != nil {
				return Option{}, fmt.Errorf("option %s: %w", om.Name, err)
			}
			opt.ChannelTypes = append(opt.ChannelTypes, t)
		}
	case OptionStringChoice:
		for _, c := range om.Choices {
			opt.StringChoices = append(opt.StringChoices, StringChoice{Name: c.Name, Value: c.Value.Value})
		}
	case OptionNumberChoice:
		for _, c := range om.Choices {
			v, err := strconv.ParseFloat(c.Value.Value, 64)
			if err != nil {
				return Option{}, fmt.Errorf("option %s: choice %s: %q is not a number", om.Name, c.Name, c.Value.Value)
			}
			opt.NumberChoices = append(opt.NumberChoices, NumberChoice{Name: c.Name, Value: v})
		}
	}
	return opt, opt.Validate()
}
