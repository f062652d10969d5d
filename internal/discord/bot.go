// Package discord connects the bot to the Discord gateway: it runs this
// process's shards, decodes interactions for the dispatch pipeline and the
// paginator, and publishes the command tree.
package discord

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keshon/kupumalam/internal/cluster"
	"github.com/keshon/kupumalam/internal/command"
	"github.com/keshon/kupumalam/internal/dispatch"
	"github.com/keshon/kupumalam/internal/logging"
	"github.com/keshon/kupumalam/internal/paginator"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

// Options configures the shard sessions of one process.
type Options struct {
	Token string
	// ShardCount is the bot-wide shard total; zero asks the gateway.
	ShardCount int
	// ShardIDs picks the shards this process runs out of the total.
	ShardIDs  func(total int) []int
	ClusterID int

	ClientID    string
	PublicSlash bool
	DevGuild    string
}

// Handlers receive decoded events. Commands returns the definitions to
// publish once the first shard is ready.
type Handlers struct {
	Pipeline  *dispatch.Pipeline
	Pager     *paginator.Manager
	Publisher *Publisher
	Commands  func() []*command.Definition
}

// Bot owns the shard sessions of this process.
type Bot struct {
	opts    Options
	total   int
	shards  []*discordgo.Session
	started time.Time

	h           Handlers
	ctx         context.Context
	user        atomic.Pointer[discordgo.User]
	publishOnce sync.Once
}

// New prepares one session per owned shard without connecting.
func New(opts Options) (*Bot, error) {
	total := opts.ShardCount
	if total <= 0 {
		probe, err := discordgo.New("Bot " + opts.Token)
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		gw, err := probe.GatewayBot()
		if err != nil {
			return nil, fmt.Errorf("failed to read recommended shard count: %w", err)
		}
		total = max(gw.Shards, 1)
	}

	ids := opts.ShardIDs(total)
	if len(ids) == 0 {
		return nil, fmt.Errorf("cluster %d owns no shards out of %d", opts.ClusterID, total)
	}

	b := &Bot{opts: opts, total: total, started: time.Now(), ctx: context.Background()}
	for _, id := range ids {
		s, err := discordgo.New("Bot " + opts.Token)
		if err != nil {
			return nil, fmt.Errorf("failed to create session for shard %d: %w", id, err)
		}
		s.ShardID = id
		s.ShardCount = total
		s.Identify.Intents = discordgo.IntentsGuilds
		b.shards = append(b.shards, s)
	}
	return b, nil
}

// Access returns the capability and identity source backed by this bot's
// shard caches.
func (b *Bot) Access() *Access {
	rest := b.shards[0]
	return NewAccess(b.botID, b.states, rest)
}

// REST is a session for calls that are not bound to a shard.
func (b *Bot) REST() *discordgo.Session { return b.shards[0] }

// Run connects every shard and serves events until ctx is done.
func (b *Bot) Run(ctx context.Context, h Handlers) error {
	b.h = h
	b.ctx = ctx

	for i, s := range b.shards {
		s.AddHandler(b.onReady)
		s.AddHandler(b.onInteractionCreate)
		if err := s.Open(); err != nil {
			for _, opened := range b.shards[:i] {
				_ = opened.Close()
			}
			return fmt.Errorf("failed to open shard %d: %w", s.ShardID, err)
		}
		log.Info().Int("shard", s.ShardID).Int("total", b.total).Msg("shard connected")
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, closing shards")
	var errs []error
	for _, s := range b.shards {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("shard %d: %w", s.ShardID, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	defer logging.Recover("ready")
	if r.User == nil {
		return
	}
	b.user.Store(r.User)
	log.Info().Int("shard", s.ShardID).Int("guilds", len(r.Guilds)).Str("user", r.User.Username).Msg("shard ready")

	b.publishOnce.Do(func() {
		logging.Go("publish", func() { b.publish(b.ctx) })
	})
}

// publish declares commands globally from cluster 0, or to the development
// guild from the cluster that runs the guild's shard.
func (b *Bot) publish(ctx context.Context) {
	if b.h.Publisher == nil || b.h.Commands == nil {
		return
	}
	appID := b.opts.ClientID
	if appID == "" {
		appID = b.botID()
	}
	defs := b.h.Commands()

	switch {
	case b.opts.PublicSlash:
		if b.opts.ClusterID != 0 {
			return
		}
		if err := b.h.Publisher.Publish(ctx, appID, "", defs); err != nil {
			log.Error().Err(err).Msg("failed to publish global commands")
		}
	case b.opts.DevGuild != "":
		shard, err := ShardForGuild(b.opts.DevGuild, b.total)
		if err != nil {
			log.Error().Err(err).Msg("invalid development guild")
			return
		}
		if !slices.Contains(b.ShardIDs(), shard) {
			return
		}
		if err := b.h.Publisher.Publish(ctx, appID, b.opts.DevGuild, defs); err != nil {
			log.Error().Err(err).Str("guild", b.opts.DevGuild).Msg("failed to publish guild commands")
		}
	default:
		log.Warn().Msg("PUBLIC_SLASH is off and DEV_GUILD is empty, commands are not published")
	}
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	defer logging.Recover("interaction")

	if i.GuildID != "" {
		if _, err := s.State.Guild(i.GuildID); err != nil {
			log.Debug().Str("guild", i.GuildID).Msg("interaction from uncached guild dropped")
			return
		}
	}

	ctx := withInteraction(b.ctx, i.Interaction)
	r := newResponder(s, i.Interaction, b.renderer())
	actor := ""
	if u := invoker(i.Interaction); u != nil {
		actor = u.ID
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		in := toInteraction(i.Interaction, s.ShardID)
		if _, err := b.h.Pipeline.Dispatch(ctx, in, r); err != nil {
			log.Warn().Err(err).Str("key", command.BuildDispatchKey(in.Path)).Msg("could not answer interaction")
		}
	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		handled, err := b.h.Pager.HandleComponent(ctx, data.CustomID, actor, r)
		b.logControl(data.CustomID, handled, err)
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		handled, err := b.h.Pager.HandleModal(ctx, data.CustomID, actor, modalValues(data), r)
		b.logControl(data.CustomID, handled, err)
	default:
		log.Debug().Int("type", int(i.Type)).Msg("unhandled interaction type")
	}
}

func (b *Bot) logControl(customID string, handled bool, err error) {
	switch {
	case err != nil && !errors.Is(err, paginator.ErrValidation):
		log.Warn().Err(err).Str("custom_id", customID).Msg("component handling failed")
	case !handled:
		log.Debug().Str("custom_id", customID).Msg("no handler for component")
	}
}

func (b *Bot) renderer() renderer {
	brand := ""
	if u := b.user.Load(); u != nil {
		brand = u.Username
	}
	return renderer{brand: brand, now: time.Now}
}

func (b *Bot) botID() string {
	if u := b.user.Load(); u != nil {
		return u.ID
	}
	return b.opts.ClientID
}

func (b *Bot) states() []*discordgo.State {
	out := make([]*discordgo.State, 0, len(b.shards))
	for _, s := range b.shards {
		out = append(out, s.State)
	}
	return out
}

func (b *Bot) shard(id int) *discordgo.Session {
	for _, s := range b.shards {
		if s.ShardID == id {
			return s
		}
	}
	return nil
}

// ShardIDs returns the shards this process runs.
func (b *Bot) ShardIDs() []int {
	ids := make([]int, 0, len(b.shards))
	for _, s := range b.shards {
		ids = append(ids, s.ShardID)
	}
	return ids
}

// SetStatus sets the custom status of one local shard.
func (b *Bot) SetStatus(shardID int, text string) error {
	s := b.shard(shardID)
	if s == nil {
		return fmt.Errorf("shard %d is not run by this process", shardID)
	}
	return s.UpdateCustomStatus(text)
}

// Latency is the last heartbeat round trip of a shard.
func (b *Bot) Latency(shardID int) time.Duration {
	if s := b.shard(shardID); s != nil {
		return s.HeartbeatLatency()
	}
	return 0
}

func (b *Bot) StartedAt() time.Time { return b.started }

// Guilds lists cached guilds of every local shard, largest first.
func (b *Bot) Guilds() []cluster.GuildSummary {
	var out []cluster.GuildSummary
	for _, s := range b.shards {
		s.State.RLock()
		for _, g := range s.State.Guilds {
			out = append(out, cluster.GuildSummary{ID: g.ID, Name: g.Name, Members: g.MemberCount})
		}
		s.State.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Members != out[j].Members {
			return out[i].Members > out[j].Members
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Snapshot summarises local shard state for cluster queries.
func (b *Bot) Snapshot() cluster.Snapshot {
	snap := cluster.Snapshot{ClusterID: b.opts.ClusterID, Shards: b.ShardIDs()}
	var latency time.Duration
	for _, s := range b.shards {
		s.State.RLock()
		snap.Guilds += len(s.State.Guilds)
		for _, g := range s.State.Guilds {
			snap.Members += g.MemberCount
		}
		s.State.RUnlock()
		latency += s.HeartbeatLatency()
	}
	if n := len(b.shards); n > 0 {
		snap.LatencyMS = int((latency / time.Duration(n)).Milliseconds())
	}
	return snap
}
