package discord

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/keshon/kupumalam/internal/command"
	"github.com/keshon/kupumalam/internal/store"
	"github.com/keshon/kupumalam/pkg/retrylimit"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

// CommandWriter is the REST call used to publish a command tree.
type CommandWriter interface {
	ApplicationCommandBulkOverwrite(appID, guildID string, cmds []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// publishRecord is what the store keeps per scope.
type publishRecord struct {
	Hash string            `json:"hash"`
	IDs  map[string]string `json:"ids"`
}

// Publisher declares the loaded command tree to the platform and remembers
// the IDs it got back so commands can be mentioned.
type Publisher struct {
	rest    CommandWriter
	store   *store.Store
	limiter *retrylimit.AdaptiveLimiter
	retry   retrylimit.RetryConfig

	mu  sync.RWMutex
	ids map[string]string
}

func NewPublisher(rest CommandWriter, st *store.Store) *Publisher {
	return &Publisher{
		rest:  rest,
		store: st,
		limiter: retrylimit.NewAdaptiveLimiter(retrylimit.LimiterConfig{
			Initial: 1, Min: 0.2, Max: 5, StepUp: 0.5, StepDown: 0.5, Quiet: 30 * time.Second,
		}),
		retry: retrylimit.DefaultRetryConfig(),
		ids:   make(map[string]string),
	}
}

func scopeKey(guildID string) string {
	if guildID == "" {
		return "commands:global"
	}
	return "commands:guild:" + guildID
}

// Publish overwrites the commands of appID in guildID (globally when empty).
// An unchanged tree is not sent again; the stored IDs are reused.
func (p *Publisher) Publish(ctx context.Context, appID, guildID string, defs []*command.Definition) error {
	cmds := BuildCommands(defs)
	hash := HashCommands(cmds)
	key := scopeKey(guildID)
	logger := log.With().Str("scope", key).Int("commands", len(cmds)).Logger()

	if p.store != nil {
		var prev publishRecord
		if ok, err := p.store.Get(key, &prev); err != nil {
			logger.Warn().Err(err).Msg("stored command record unreadable, republishing")
		} else if ok && prev.Hash == hash {
			p.remember(prev.IDs)
			logger.Info().Msg("command tree unchanged, skipping publish")
			return nil
		}
	}

	var created []*discordgo.ApplicationCommand
	err := retrylimit.Do(ctx, p.limiter, p.retry, func(ctx context.Context) error {
		var err error
		created, err = p.rest.ApplicationCommandBulkOverwrite(appID, guildID, cmds, discordgo.WithContext(ctx))
		return wrapREST(err)
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}

	ids := make(map[string]string, len(created))
	for _, c := range created {
		ids[c.Name] = c.ID
	}
	p.remember(ids)

	if p.store != nil {
		if err := p.store.Put(key, publishRecord{Hash: hash, IDs: ids}); err != nil {
			logger.Warn().Err(err).Msg("could not record published commands")
		}
	}
	logger.Info().Msg("commands published")
	return nil
}

func (p *Publisher) remember(ids map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, id := range ids {
		p.ids[name] = id
	}
}

// Mention renders a clickable command mention, falling back to the typed
// path when the command ID is not known yet.
func (p *Publisher) Mention(def *command.Definition) string {
	if def.Kind == command.KindContext {
		return "**" + def.Name + "**"
	}
	path := strings.TrimPrefix(def.Path(), "/")
	top := def.Name
	if def.Kind != command.KindSlash {
		top = def.Dir
	}
	p.mu.RLock()
	id, ok := p.ids[top]
	p.mu.RUnlock()
	if !ok {
		return "`/" + path + "`"
	}
	return "</" + path + ":" + id + ">"
}

// ShardForGuild returns the shard that receives events for guildID.
func ShardForGuild(guildID string, total int) (int, error) {
	id, err := strconv.ParseUint(guildID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("guild id %q: %w", guildID, err)
	}
	if total < 1 {
		total = 1
	}
	return int((id >> 22) % uint64(total)), nil
}

// BuildCommands turns definitions into the platform command tree. Commands
// in a directory become subcommands of a top-level command named after it;
// commands in a group directory nest one level deeper.
func BuildCommands(defs []*command.Definition) []*discordgo.ApplicationCommand {
	var out []*discordgo.ApplicationCommand
	dirs := make(map[string]*discordgo.ApplicationCommand)
	groups := make(map[string]*discordgo.ApplicationCommandOption)

	dir := func(name string) *discordgo.ApplicationCommand {
		if c, ok := dirs[name]; ok {
			return c
		}
		c := &discordgo.ApplicationCommand{
			Type:        discordgo.ChatApplicationCommand,
			Name:        name,
			Description: "Subcommands for " + name,
		}
		dirs[name] = c
		out = append(out, c)
		return c
	}

	sorted := append([]*command.Definition(nil), defs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	for _, d := range sorted {
		switch d.Kind {
		case command.KindSlash:
			out = append(out, &discordgo.ApplicationCommand{
				Type:        discordgo.ChatApplicationCommand,
				Name:        d.Name,
				Description: d.Description,
				Options:     buildOptions(d.Options),
			})
		case command.KindSubcommand:
			parent := dir(d.Dir)
			parent.Options = append(parent.Options, subcommand(d))
		case command.KindGroup:
			parent := dir(d.Dir)
			gk := d.Dir + "/" + d.Group
			g, ok := groups[gk]
			if !ok {
				g = &discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
					Name:        d.Group,
					Description: "Group of " + d.Group + " subcommands",
				}
				groups[gk] = g
				parent.Options = append(parent.Options, g)
			}
			g.Options = append(g.Options, subcommand(d))
		case command.KindContext:
			t := discordgo.MessageApplicationCommand
			if d.ContextType == command.ContextUser {
				t = discordgo.UserApplicationCommand
			}
			out = append(out, &discordgo.ApplicationCommand{Type: t, Name: d.Name})
		}
	}
	return out
}

func subcommand(d *command.Definition) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        d.Name,
		Description: d.Description,
		Options:     buildOptions(d.Options),
	}
}

var optionTypes = map[command.OptionKind]discordgo.ApplicationCommandOptionType{
	command.OptionString:       discordgo.ApplicationCommandOptionString,
	command.OptionNumber:       discordgo.ApplicationCommandOptionNumber,
	command.OptionBoolean:      discordgo.ApplicationCommandOptionBoolean,
	command.OptionUser:         discordgo.ApplicationCommandOptionUser,
	command.OptionRole:         discordgo.ApplicationCommandOptionRole,
	command.OptionChannel:      discordgo.ApplicationCommandOptionChannel,
	command.OptionAttachment:   discordgo.ApplicationCommandOptionAttachment,
	command.OptionStringChoice: discordgo.ApplicationCommandOptionString,
	command.OptionNumberChoice: discordgo.ApplicationCommandOptionNumber,
}

func buildOptions(opts []command.Option) []*discordgo.ApplicationCommandOption {
	if len(opts) == 0 {
		return nil
	}
	out := make([]*discordgo.ApplicationCommandOption, 0, len(opts))
	for _, o := range opts {
		opt := &discordgo.ApplicationCommandOption{
			Type:         optionTypes[o.Kind],
			Name:         o.Name,
			Description:  o.Description,
			Required:     o.Required,
			ChannelTypes: o.ChannelTypes,
			MinValue:     o.MinValue,
			MinLength:    o.MinLength,
		}
		if o.MaxValue != nil {
			opt.MaxValue = *o.MaxValue
		}
		if o.MaxLength != nil {
			opt.MaxLength = *o.MaxLength
		}
		for _, c := range o.StringChoices {
			opt.Choices = append(opt.Choices, &discordgo.ApplicationCommandOptionChoice{Name: c.Name, Value: c.Value})
		}
		for _, c := range o.NumberChoices {
			opt.Choices = append(opt.Choices, &discordgo.ApplicationCommandOptionChoice{Name: c.Name, Value: c.Value})
		}
		out = append(out, opt)
	}
	// The platform rejects required options after optional ones.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Required && !out[j].Required })
	return out
}

// restError exposes the HTTP status of a discordgo REST failure to
// retrylimit.
type restError struct {
	err  *discordgo.RESTError
	code int
}

func (e *restError) Error() string   { return e.err.Error() }
func (e *restError) Unwrap() error   { return e.err }
func (e *restError) StatusCode() int { return e.code }

func wrapREST(err error) error {
	var re *discordgo.RESTError
	if errors.As(err, &re) && re.Response != nil {
		return &restError{err: re, code: re.Response.StatusCode}
	}
	return err
}
