package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

type interactionKey struct{}

// withInteraction attaches the event being dispatched so permission lookups
// can use the values the gateway already computed for it.
func withInteraction(ctx context.Context, i *discordgo.Interaction) context.Context {
	return context.WithValue(ctx, interactionKey{}, i)
}

func interactionFrom(ctx context.Context) *discordgo.Interaction {
	i, _ := ctx.Value(interactionKey{}).(*discordgo.Interaction)
	return i
}

// GuildFetcher reads a guild over REST when it is not cached.
type GuildFetcher interface {
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
}

// Access answers capability and identity questions for the dispatch pipeline.
// The interaction in ctx is preferred; the shard state caches are the
// fallback.
type Access struct {
	botID  func() string
	states func() []*discordgo.State
	rest   GuildFetcher
}

func NewAccess(botID func() string, states func() []*discordgo.State, rest GuildFetcher) *Access {
	return &Access{botID: botID, states: states, rest: rest}
}

// HasChannelCapabilities reports whether the bot holds every bit of caps in
// channelID. DM channels grant everything.
func (a *Access) HasChannelCapabilities(ctx context.Context, channelID string, caps int64) (bool, error) {
	if i := interactionFrom(ctx); i != nil && i.ChannelID == channelID {
		if i.GuildID == "" {
			return true, nil
		}
		if i.AppPermissions != 0 {
			return i.AppPermissions&caps == caps, nil
		}
	}
	for _, st := range a.states() {
		ch, err := st.Channel(channelID)
		if err != nil {
			continue
		}
		if ch.GuildID == "" {
			return true, nil
		}
		perms, err := st.UserChannelPermissions(a.botID(), channelID)
		if err != nil {
			return false, fmt.Errorf("bot permissions in %s: %w", channelID, err)
		}
		return perms&caps == caps, nil
	}
	return false, fmt.Errorf("channel %s: %w", channelID, discordgo.ErrStateNotFound)
}

// IsGuildOwner reports whether userID owns guildID.
func (a *Access) IsGuildOwner(ctx context.Context, guildID, userID string) (bool, error) {
	if g := a.cachedGuild(guildID); g != nil {
		return g.OwnerID == userID, nil
	}
	if a.rest == nil {
		return false, fmt.Errorf("guild %s: %w", guildID, discordgo.ErrStateNotFound)
	}
	g, err := a.rest.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("fetch guild %s: %w", guildID, err)
	}
	return g.OwnerID == userID, nil
}

// MemberHasPermissions reports whether userID holds every bit of perms in
// guildID through its roles.
func (a *Access) MemberHasPermissions(ctx context.Context, guildID, userID string, perms int64) (bool, error) {
	if i := interactionFrom(ctx); i != nil && i.GuildID == guildID && i.Member != nil && i.Member.User != nil && i.Member.User.ID == userID {
		return i.Member.Permissions&perms == perms, nil
	}
	for _, st := range a.states() {
		m, err := st.Member(guildID, userID)
		if err != nil {
			continue
		}
		var total int64
		if everyone, err := st.Role(guildID, guildID); err == nil {
			total |= everyone.Permissions
		}
		for _, roleID := range m.Roles {
			if role, err := st.Role(guildID, roleID); err == nil {
				total |= role.Permissions
			}
		}
		return total&perms == perms, nil
	}
	return false, fmt.Errorf("member %s in %s: %w", userID, guildID, discordgo.ErrStateNotFound)
}

func (a *Access) cachedGuild(guildID string) *discordgo.Guild {
	for _, st := range a.states() {
		if g, err := st.Guild(guildID); err == nil {
			return g
		}
	}
	return nil
}
