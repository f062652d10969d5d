// Package dispatch runs every inbound command interaction through the ordered
// validation stages and executes the bound command body.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/keshon/kupumalam/internal/command"
	"github.com/keshon/kupumalam/internal/cooldown"
	"github.com/keshon/kupumalam/internal/reply"
	"github.com/keshon/kupumalam/pkg/cmd"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	capsChannel = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages
	capsEmbed   = discordgo.PermissionEmbedLinks
)

var tracer = otel.Tracer("github.com/keshon/kupumalam/internal/dispatch")

// Config wires a Pipeline to its collaborators.
type Config struct {
	Registry     Resolver
	Handlers     *cmd.Registry
	Cooldowns    Admitter
	Capabilities Capabilities
	Identity     Identity
	Developers   Developers
}

// Pipeline is safe for concurrent use; it holds no per-dispatch state.
type Pipeline struct {
	cfg Config
}

// New returns a pipeline using cfg.
func New(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

type dispatchOptions struct {
	skipCooldown bool
}

// Option adjusts a single dispatch.
type Option func(*dispatchOptions)

// WithoutCooldown skips cooldown admission, for callers re-running a command
// on the user's behalf.
func WithoutCooldown() Option {
	return func(o *dispatchOptions) { o.skipCooldown = true }
}

// Dispatch runs in through every stage. Stage failures are answered to the
// user and reported as the Outcome; the error is only set when a reply could
// not be delivered.
func (p *Pipeline) Dispatch(ctx context.Context, in *Interaction, r Responder, opts ...Option) (Outcome, error) {
	var o dispatchOptions
	for _, opt := range opts {
		opt(&o)
	}

	key := command.BuildDispatchKey(in.Path)
	ctx, span := tracer.Start(ctx, "dispatch "+key,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("command.key", key),
			attribute.String("discord.user", in.UserID),
			attribute.String("discord.guild", in.GuildID),
			attribute.Int("discord.shard", in.ShardID),
		),
	)
	defer span.End()

	outcome, err := p.run(ctx, key, in, r, o)
	span.SetAttributes(attribute.String("dispatch.outcome", outcome.String()))
	if outcome == Failed {
		span.SetStatus(codes.Error, "execution failed")
	}
	return outcome, err
}

func (p *Pipeline) run(ctx context.Context, key string, in *Interaction, r Responder, o dispatchOptions) (Outcome, error) {
	logger := log.With().Str("key", key).Str("user", in.UserID).Str("guild", in.GuildID).Logger()
	logger.Debug().Msg("dispatch")

	if cerr := p.checkChannel(ctx, in.ChannelID, capsChannel); cerr != nil {
		capabilityDenied(ctx, logger, cerr)
		return ChannelDenied, r.Reply(ctx, errorNotice("Permission Error", "I can't view or send messages in this channel."))
	}

	def, err := p.cfg.Registry.Resolve(key)
	if err != nil {
		logger.Debug().Err(err).Msg("no command for key")
		return NotFound, nil
	}

	if cerr := p.checkChannel(ctx, in.ChannelID, capsEmbed); cerr != nil {
		capabilityDenied(ctx, logger, cerr)
		return EmbedDenied, r.Reply(ctx, reply.Text("I need permission to embed links in this channel.").Private())
	}

	if def.GuildOnly && in.GuildID == "" {
		return GuildRequired, r.Reply(ctx, errorNotice("Guilds Only", "You can use this command only in a guild."))
	}

	if len(def.MustPermissions) > 0 || len(def.AllowedPermissions) > 0 {
		if outcome, perr := p.checkPermissions(ctx, def, in); perr != nil {
			var desc string
			if perr.Any {
				desc = "You need at least one of these permissions: " + command.FormatPermissions(perr.Required)
			} else {
				desc = "You need the following permissions: " + command.FormatPermissions(perr.Required)
			}
			return outcome, r.Reply(ctx, errorNotice("Missing Permissions", desc))
		}
	}

	if !o.skipCooldown && p.cfg.Cooldowns != nil {
		err := p.cfg.Cooldowns.Check(cooldown.Request{
			UserID:   in.UserID,
			GuildID:  in.GuildID,
			Key:      def.Key,
			Name:     def.Name,
			Category: def.Category,
			User:     def.Cooldown.User,
			Guild:    def.Cooldown.Guild,
		})
		var cd *cooldown.Error
		if errors.As(err, &cd) {
			return OnCooldown, r.Reply(ctx, reply.Notice(reply.Warning, "Slow Down!", ">>> "+p.cooldownText(cd)).Private())
		}
		if err != nil {
			logger.Error().Err(err).Msg("cooldown check failed")
		}
	}

	if def.DeveloperOnly && (p.cfg.Developers == nil || !p.cfg.Developers.IsDeveloper(in.UserID)) {
		return DeveloperOnly, r.Reply(ctx, errorNotice("Developer Only Command", "Only bot developers can use this command."))
	}

	if err := p.execute(ctx, def, in, r); err != nil {
		logger.Error().Err(err).Str("handler", def.Handler).Msg("command failed")
		trace.SpanFromContext(ctx).RecordError(err)
		return Failed, p.reportFailure(ctx, def, r, err)
	}
	return Executed, nil
}

// checkChannel returns nil when the bot holds caps in channelID. A failed
// lookup counts as denied.
func (p *Pipeline) checkChannel(ctx context.Context, channelID string, caps int64) *CapabilityError {
	if p.cfg.Capabilities == nil {
		return nil
	}
	ok, err := p.cfg.Capabilities.HasChannelCapabilities(ctx, channelID, caps)
	if err != nil {
		return &CapabilityError{ChannelID: channelID, Missing: caps, Err: err}
	}
	if !ok {
		return &CapabilityError{ChannelID: channelID, Missing: caps}
	}
	return nil
}

func capabilityDenied(ctx context.Context, logger zerolog.Logger, cerr *CapabilityError) {
	ev := logger.Debug()
	if cerr.Err != nil {
		ev = logger.Warn()
	}
	ev.Err(cerr).Msg("channel capabilities missing")
	trace.SpanFromContext(ctx).RecordError(cerr)
}

// checkPermissions applies mustPermissions (all) then allowedPermissions (any).
// Guild owners and administrators pass both.
func (p *Pipeline) checkPermissions(ctx context.Context, def *command.Definition, in *Interaction) (Outcome, *PermissionError) {
	if in.GuildID != "" && p.overrides(ctx, in) {
		return Executed, nil
	}

	for _, bit := range def.MustPermissions {
		if !p.has(ctx, in, bit) {
			return MissingPermissions, &PermissionError{Required: def.MustPermissions}
		}
	}

	if len(def.AllowedPermissions) > 0 {
		for _, bit := range def.AllowedPermissions {
			if p.has(ctx, in, bit) {
				return Executed, nil
			}
		}
		return MissingAnyPermission, &PermissionError{Required: def.AllowedPermissions, Any: true}
	}
	return Executed, nil
}

func (p *Pipeline) overrides(ctx context.Context, in *Interaction) bool {
	if p.cfg.Identity == nil {
		return false
	}
	if owner, err := p.cfg.Identity.IsGuildOwner(ctx, in.GuildID, in.UserID); err == nil && owner {
		return true
	}
	return p.has(ctx, in, discordgo.PermissionAdministrator)
}

func (p *Pipeline) has(ctx context.Context, in *Interaction, bit int64) bool {
	if in.GuildID == "" || p.cfg.Identity == nil {
		return false
	}
	ok, err := p.cfg.Identity.MemberHasPermissions(ctx, in.GuildID, in.UserID, bit)
	if err != nil {
		log.Warn().Err(err).Str("guild", in.GuildID).Str("user", in.UserID).Msg("permission lookup failed")
		return false
	}
	return ok
}

func (p *Pipeline) cooldownText(cd *cooldown.Error) string {
	secs := int(cd.Remaining.Seconds())
	switch cd.Tier {
	case cooldown.TierGuild:
		return fmt.Sprintf("This guild can use this command again in `%ds`.", secs)
	case cooldown.TierGlobal:
		if pol, ok := p.cfg.Cooldowns.(interface{ Policy() cooldown.Policy }); ok {
			bp := pol.Policy()
			return fmt.Sprintf("You can only use %d commands per %d seconds. Try again in `%ds`.", bp.BurstMax, int(bp.BurstWindow.Seconds()), secs)
		}
		return fmt.Sprintf("You are sending commands too fast. Try again in `%ds`.", secs)
	}
	return fmt.Sprintf("You can use this command again in `%ds`.", secs)
}

// execute runs the bound handler, converting panics into errors.
func (p *Pipeline) execute(ctx context.Context, def *command.Definition, in *Interaction, r Responder) (err error) {
	handler := p.cfg.Handlers.Get(def.Handler)
	if handler == nil {
		return &ExecutionError{Key: def.Key, Err: fmt.Errorf("no handler %q is registered", def.Handler)}
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("key", def.Key).Interface("panic", rec).Str("stack", string(debug.Stack())).Msg("command panicked")
			err = &ExecutionError{Key: def.Key, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	inv := &cmd.Invocation{Data: &Context{Interaction: in, Command: def, Responder: r}}
	if err := handler.Run(ctx, inv); err != nil {
		return &ExecutionError{Key: def.Key, Err: err}
	}
	return nil
}

// reportFailure shows the error excerpt to the user. Once an initial reply
// exists the excerpt goes out as a follow-up, falling back to the channel.
func (p *Pipeline) reportFailure(ctx context.Context, def *command.Definition, r Responder, err error) error {
	var ee *ExecutionError
	cause := err
	if errors.As(err, &ee) {
		cause = ee.Err
	}
	msg := errorNotice("Execution Error", errorExcerpt(def.Name, cause))

	if r.Replied() {
		if ferr := r.FollowUp(ctx, msg); ferr == nil {
			return nil
		}
		msg.Ephemeral = false
		return r.ChannelMessage(ctx, msg)
	}
	if rerr := r.Reply(ctx, msg); rerr == nil {
		return nil
	}
	msg.Ephemeral = false
	return r.ChannelMessage(ctx, msg)
}

func errorNotice(title, description string) reply.Message {
	return reply.Notice(reply.Error, title, ">>> "+description).Private()
}
