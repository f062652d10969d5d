package command

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// OptionKind is the closed set of parameter types a command may declare.
type OptionKind int

const (
	OptionString OptionKind = iota + 1
	OptionNumber
	OptionBoolean
	OptionUser
	OptionRole
	OptionChannel
	OptionAttachment
	OptionStringChoice
	OptionNumberChoice
)

var optionKindNames = map[string]OptionKind{
	"string":        OptionString,
	"number":        OptionNumber,
	"boolean":       OptionBoolean,
	"user":          OptionUser,
	"role":          OptionRole,
	"channel":       OptionChannel,
	"attachment":    OptionAttachment,
	"stringchoices": OptionStringChoice,
	"numberchoices": OptionNumberChoice,
}

// ParseOptionKind maps a manifest type name to its kind. Matching ignores case.
func ParseOptionKind(s string) (OptionKind, error) {
	k, ok := optionKindNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown option type %q", s)
	}
	return k, nil
}

func (k OptionKind) String() string {
	for name, v := range optionKindNames {
		if v == k {
			return name
		}
	}
	return "invalid"
}

type StringChoice struct {
	Name  string
	Value string
}

type NumberChoice struct {
	Name  string
	Value float64
}

// Option describes one command parameter. Which fields are meaningful
// depends on Kind:
//
//	OptionString        MinLength, MaxLength
//	OptionNumber        MinValue, MaxValue
//	OptionChannel       ChannelTypes
//	OptionStringChoice  StringChoices
//	OptionNumberChoice  NumberChoices
type Option struct {
	Kind        OptionKind
	Name        string
	Description string
	Required    bool

	MinValue  *float64
	MaxValue  *float64
	MinLength *int
	MaxLength *int

	StringChoices []StringChoice
	NumberChoices []NumberChoice
	ChannelTypes  []discordgo.ChannelType
}

// Validate checks that per-kind fields are consistent.
func (o Option) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("option without a name")
	}
	switch o.Kind {
	case OptionString:
		if o.MinLength != nil && o.MaxLength != nil && *o.MinLength > *o.MaxLength {
			return fmt.Errorf("option %s: min_length %d exceeds max_length %d", o.Name, *o.MinLength, *o.MaxLength)
		}
	case OptionNumber:
		if o.MinValue != nil && o.MaxValue != nil && *o.MinValue > *o.MaxValue {
			return fmt.Errorf("option %s: min %v exceeds max %v", o.Name, *o.MinValue, *o.MaxValue)
		}
	case OptionStringChoice:
		if len(o.StringChoices) == 0 {
			return fmt.Errorf("option %s: stringchoices needs at least one choice", o.Name)
		}
	case OptionNumberChoice:
		if len(o.NumberChoices) == 0 {
			return fmt.Errorf("option %s: numberchoices needs at least one choice", o.Name)
		}
	case OptionBoolean, OptionUser, OptionRole, OptionChannel, OptionAttachment:
	default:
		return fmt.Errorf("option %s: invalid kind %d", o.Name, o.Kind)
	}
	return nil
}

var channelTypeNames = map[string]discordgo.ChannelType{
	"text":          discordgo.ChannelTypeGuildText,
	"voice":         discordgo.ChannelTypeGuildVoice,
	"category":      discordgo.ChannelTypeGuildCategory,
	"news":          discordgo.ChannelTypeGuildNews,
	"stage":         discordgo.ChannelTypeGuildStageVoice,
	"forum":         discordgo.ChannelTypeGuildForum,
	"thread":        discordgo.ChannelTypeGuildPublicThread,
	"privatethread": discordgo.ChannelTypeGuildPrivateThread,
}

func parseChannelType(s string) (discordgo.ChannelType, error) {
	t, ok := channelTypeNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown channel type %q", s)
	}
	return t, nil
}
