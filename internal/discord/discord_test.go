package discord

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/keshon/kupumalam/internal/command"
	"github.com/keshon/kupumalam/internal/reply"
	"github.com/keshon/kupumalam/internal/store"
	"github.com/keshon/kupumalam/pkg/retrylimit"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedRenderer() renderer {
	return renderer{brand: "kupumalam", now: func() time.Time { return time.Unix(1700000000, 0) }}
}

func TestEmbedStyling(t *testing.T) {
	r := fixedRenderer()
	m := reply.Notice(reply.Error, "Oops", "broken")
	m.Embeds = append(m.Embeds, reply.Embed{Kind: reply.Success, Title: "ok", Footer: "custom"})

	out := r.embeds(m)
	require.Len(t, out, 2)
	assert.Equal(t, ColorError, out[0].Color)
	assert.Equal(t, "kupumalam", out[0].Footer.Text)
	assert.Equal(t, "2023-11-14T22:13:20Z", out[0].Timestamp)
	assert.Equal(t, ColorSuccess, out[1].Color)
	assert.Equal(t, "custom", out[1].Footer.Text)
	assert.Nil(t, r.embeds(reply.Text("plain")))
}

func TestComponentsSingleRow(t *testing.T) {
	comps := components([]reply.Button{
		{ID: "a", Emoji: "◀️", Style: reply.Primary},
		{ID: "b", Label: "Stop", Style: reply.Danger, Disabled: true},
	})
	require.Len(t, comps, 1)
	row, ok := comps[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 2)

	first := row.Components[0].(discordgo.Button)
	assert.Equal(t, "a", first.CustomID)
	assert.Equal(t, discordgo.PrimaryButton, first.Style)
	require.NotNil(t, first.Emoji)
	assert.Equal(t, "◀️", first.Emoji.Name)

	second := row.Components[1].(discordgo.Button)
	assert.True(t, second.Disabled)
	assert.Equal(t, discordgo.DangerButton, second.Style)
	assert.Nil(t, second.Emoji)
}

func TestUpdateDataClearsButtons(t *testing.T) {
	d := fixedRenderer().updateData(reply.Text("closed").Private())
	assert.NotNil(t, d.Components)
	assert.Empty(t, d.Components)
	assert.Zero(t, d.Flags)
}

func TestModalData(t *testing.T) {
	d := modalData(reply.Modal{ID: "pager:x:goto-modal", Title: "Go to page", Inputs: []reply.TextInput{{ID: "page-number", Label: "Page", Required: true}}})
	assert.Equal(t, "pager:x:goto-modal", d.CustomID)
	require.Len(t, d.Components, 1)
	row := d.Components[0].(discordgo.ActionsRow)
	ti := row.Components[0].(discordgo.TextInput)
	assert.Equal(t, "page-number", ti.CustomID)
	assert.Equal(t, discordgo.TextInputShort, ti.Style)
}

func commandEvent(data discordgo.ApplicationCommandInteractionData) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:        "i1",
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   "g1",
		ChannelID: "c1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "u1", Username: "alice"}},
		Data:      data,
	}
}

func TestToInteractionUnwrapsGroup(t *testing.T) {
	i := commandEvent(discordgo.ApplicationCommandInteractionData{
		Name:        "developers",
		CommandType: discordgo.ChatApplicationCommand,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{{
			Name: "reload",
			Type: discordgo.ApplicationCommandOptionSubCommandGroup,
			Options: []*discordgo.ApplicationCommandInteractionDataOption{{
				Name: "command",
				Type: discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "name", Type: discordgo.ApplicationCommandOptionString, Value: "ping"},
				},
			}},
		}},
	})

	in := toInteraction(i, 3)
	assert.Equal(t, command.EventPath{Name: "developers", Group: "reload", Subcommand: "command"}, in.Path)
	assert.Equal(t, "groupcmd_reload_developers_command", command.BuildDispatchKey(in.Path))
	assert.Equal(t, "ping", in.String("name"))
	assert.Equal(t, "u1", in.UserID)
	assert.Equal(t, "alice", in.Username)
	assert.Equal(t, 3, in.ShardID)
}

func TestToInteractionOptionsAndDM(t *testing.T) {
	i := commandEvent(discordgo.ApplicationCommandInteractionData{
		Name:        "guilds",
		CommandType: discordgo.ChatApplicationCommand,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "limit", Type: discordgo.ApplicationCommandOptionNumber, Value: float64(5)},
			{Name: "silent", Type: discordgo.ApplicationCommandOptionBoolean, Value: true},
		},
	})
	i.Member = nil
	i.GuildID = ""
	i.User = &discordgo.User{ID: "u2", Username: "bob"}

	in := toInteraction(i, 0)
	n, ok := in.Number("limit")
	assert.True(t, ok)
	assert.Equal(t, 5.0, n)
	assert.True(t, in.Bool("silent"))
	assert.Equal(t, "u2", in.UserID)
	assert.Equal(t, "slashcmd_guilds", command.BuildDispatchKey(in.Path))
}

func TestToInteractionContextMenu(t *testing.T) {
	joined := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	i := commandEvent(discordgo.ApplicationCommandInteractionData{
		Name:        "User Info",
		CommandType: discordgo.UserApplicationCommand,
		TargetID:    "u9",
		Resolved: &discordgo.ApplicationCommandInteractionDataResolved{
			Users:   map[string]*discordgo.User{"u9": {ID: "u9", Username: "zed", Bot: true}},
			Members: map[string]*discordgo.Member{"u9": {Nick: "Z", JoinedAt: joined, Roles: []string{"r1"}}},
		},
	})

	in := toInteraction(i, 0)
	assert.True(t, in.Path.Context)
	assert.Equal(t, "contextcmd_user info", command.BuildDispatchKey(in.Path))
	assert.Equal(t, "u9", in.TargetID)
	require.Contains(t, in.Users, "u9")
	u := in.Users["u9"]
	assert.Equal(t, "zed", u.Username)
	assert.True(t, u.Bot)
	assert.Equal(t, "Z", u.Nickname)
	assert.Equal(t, joined, u.JoinedAt)
	assert.Equal(t, []string{"r1"}, u.Roles)
}

func TestModalValues(t *testing.T) {
	values := modalValues(discordgo.ModalSubmitInteractionData{
		CustomID: "pager:x:goto-modal",
		Components: []discordgo.MessageComponent{
			&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				&discordgo.TextInput{CustomID: "page-number", Value: "4"},
			}},
		},
	})
	assert.Equal(t, map[string]string{"page-number": "4"}, values)
}

type fakeSender struct {
	responses []*discordgo.InteractionResponse
	edits     []*discordgo.WebhookEdit
	followUps []*discordgo.WebhookParams
	channel   []*discordgo.MessageSend
	fail      error
}

func (f *fakeSender) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	if f.fail != nil {
		return f.fail
	}
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeSender) InteractionResponseEdit(_ *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.edits = append(f.edits, edit)
	return &discordgo.Message{}, nil
}

func (f *fakeSender) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.followUps = append(f.followUps, data)
	return &discordgo.Message{}, nil
}

func (f *fakeSender) ChannelMessageSendComplex(_ string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channel = append(f.channel, data)
	return &discordgo.Message{}, nil
}

func TestResponderLifecycle(t *testing.T) {
	ctx := context.Background()
	s := &fakeSender{}
	r := newResponder(s, &discordgo.Interaction{ChannelID: "c1"}, fixedRenderer())

	assert.False(t, r.Replied())
	assert.ErrorIs(t, r.EditReply(ctx, reply.Text("too early")), errNoReply)

	require.NoError(t, r.Reply(ctx, reply.Text("hi").Private()))
	assert.True(t, r.Replied())
	require.Len(t, s.responses, 1)
	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, s.responses[0].Type)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, s.responses[0].Data.Flags)

	require.NoError(t, r.Edit(ctx, reply.Text("edited")))
	require.Len(t, s.edits, 1)
	assert.Equal(t, "edited", *s.edits[0].Content)

	require.NoError(t, r.FollowUp(ctx, reply.Text("more")))
	require.NoError(t, r.ChannelMessage(ctx, reply.Text("fallback")))
	assert.Len(t, s.followUps, 1)
	assert.Len(t, s.channel, 1)
}

func TestResponderDeferAndControls(t *testing.T) {
	ctx := context.Background()
	s := &fakeSender{}
	r := newResponder(s, &discordgo.Interaction{}, fixedRenderer())

	require.NoError(t, r.Defer(ctx, true))
	require.NoError(t, r.Update(ctx, reply.Text("page 2")))
	require.NoError(t, r.ShowModal(ctx, reply.Modal{ID: "m", Title: "t"}))
	require.Len(t, s.responses, 3)
	assert.Equal(t, discordgo.InteractionResponseDeferredChannelMessageWithSource, s.responses[0].Type)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, s.responses[0].Data.Flags)
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, s.responses[1].Type)
	assert.Equal(t, discordgo.InteractionResponseModal, s.responses[2].Type)
}

func TestResponderFailedReplyIsNotReplied(t *testing.T) {
	s := &fakeSender{fail: errors.New("unknown interaction")}
	r := newResponder(s, &discordgo.Interaction{}, fixedRenderer())
	assert.Error(t, r.Reply(context.Background(), reply.Text("x")))
	assert.False(t, r.Replied())
}

func newState(t *testing.T) *discordgo.State {
	t.Helper()
	st := discordgo.NewState()
	require.NoError(t, st.GuildAdd(&discordgo.Guild{ID: "g1", OwnerID: "owner"}))
	require.NoError(t, st.RoleAdd("g1", &discordgo.Role{ID: "g1", Permissions: discordgo.PermissionSendMessages}))
	require.NoError(t, st.RoleAdd("g1", &discordgo.Role{ID: "mods", Permissions: discordgo.PermissionManageMessages}))
	require.NoError(t, st.MemberAdd(&discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u1"}, Roles: []string{"mods"}}))
	require.NoError(t, st.ChannelAdd(&discordgo.Channel{ID: "dm", Type: discordgo.ChannelTypeDM}))
	return st
}

func newTestAccess(t *testing.T) *Access {
	st := newState(t)
	return NewAccess(func() string { return "bot" }, func() []*discordgo.State { return []*discordgo.State{st} }, nil)
}

func TestCapabilitiesFromInteraction(t *testing.T) {
	a := newTestAccess(t)
	ctx := withInteraction(context.Background(), &discordgo.Interaction{
		GuildID:        "g1",
		ChannelID:      "c1",
		AppPermissions: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages,
	})

	ok, err := a.HasChannelCapabilities(ctx, "c1", discordgo.PermissionViewChannel|discordgo.PermissionSendMessages)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.HasChannelCapabilities(ctx, "c1", discordgo.PermissionEmbedLinks)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCapabilitiesInDMs(t *testing.T) {
	a := newTestAccess(t)
	ctx := withInteraction(context.Background(), &discordgo.Interaction{ChannelID: "c9"})
	ok, err := a.HasChannelCapabilities(ctx, "c9", discordgo.PermissionEmbedLinks)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.HasChannelCapabilities(context.Background(), "dm", discordgo.PermissionEmbedLinks)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = a.HasChannelCapabilities(context.Background(), "nowhere", discordgo.PermissionEmbedLinks)
	assert.ErrorIs(t, err, discordgo.ErrStateNotFound)
}

func TestIdentity(t *testing.T) {
	a := newTestAccess(t)
	ctx := context.Background()

	owner, err := a.IsGuildOwner(ctx, "g1", "owner")
	require.NoError(t, err)
	assert.True(t, owner)
	owner, err = a.IsGuildOwner(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.False(t, owner)
	_, err = a.IsGuildOwner(ctx, "g404", "u1")
	assert.Error(t, err)

	ok, err := a.MemberHasPermissions(ctx, "g1", "u1", discordgo.PermissionManageMessages|discordgo.PermissionSendMessages)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = a.MemberHasPermissions(ctx, "g1", "u1", discordgo.PermissionKickMembers)
	require.NoError(t, err)
	assert.False(t, ok)

	withEvent := withInteraction(ctx, &discordgo.Interaction{
		GuildID: "g1",
		Member:  &discordgo.Member{User: &discordgo.User{ID: "u7"}, Permissions: discordgo.PermissionKickMembers},
	})
	ok, err = a.MemberHasPermissions(withEvent, "g1", "u7", discordgo.PermissionKickMembers)
	require.NoError(t, err)
	assert.True(t, ok)
}

func defs() []*command.Definition {
	minLen := 1
	maxVal := 25.0
	return []*command.Definition{
		{Key: "slashcmd_help", Kind: command.KindSlash, Name: "help", Description: "Show help",
			Options: []command.Option{{Kind: command.OptionStringChoice, Name: "silent", Description: "Hide reply", StringChoices: []command.StringChoice{{Name: "Yes", Value: "yes"}}}}},
		{Key: "subcmd_bot_ping", Kind: command.KindSubcommand, Name: "ping", Description: "Latency", Dir: "bot"},
		{Key: "subcmd_bot_uptime", Kind: command.KindSubcommand, Name: "uptime", Description: "Uptime", Dir: "bot"},
		{Key: "groupcmd_reload_developers_command", Kind: command.KindGroup, Name: "command", Description: "Reload", Dir: "developers", Group: "reload",
			Options: []command.Option{
				{Kind: command.OptionNumber, Name: "limit", Description: "Max", MaxValue: &maxVal},
				{Kind: command.OptionString, Name: "name", Description: "Command", Required: true, MinLength: &minLen},
			}},
		{Key: "contextcmd_user info", Kind: command.KindContext, Name: "User Info", ContextType: command.ContextUser},
	}
}

func find(cmds []*discordgo.ApplicationCommand, name string) *discordgo.ApplicationCommand {
	for _, c := range cmds {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestBuildCommands(t *testing.T) {
	cmds := BuildCommands(defs())
	require.Len(t, cmds, 4)

	help := find(cmds, "help")
	require.NotNil(t, help)
	require.Len(t, help.Options, 1)
	assert.Equal(t, discordgo.ApplicationCommandOptionString, help.Options[0].Type)
	assert.Equal(t, "yes", help.Options[0].Choices[0].Value)

	bot := find(cmds, "bot")
	require.NotNil(t, bot)
	assert.Equal(t, "Subcommands for bot", bot.Description)
	require.Len(t, bot.Options, 2)
	assert.Equal(t, discordgo.ApplicationCommandOptionSubCommand, bot.Options[0].Type)

	dev := find(cmds, "developers")
	require.NotNil(t, dev)
	require.Len(t, dev.Options, 1)
	group := dev.Options[0]
	assert.Equal(t, discordgo.ApplicationCommandOptionSubCommandGroup, group.Type)
	assert.Equal(t, "Group of reload subcommands", group.Description)
	leaf := group.Options[0]
	require.Len(t, leaf.Options, 2)
	assert.Equal(t, "name", leaf.Options[0].Name, "required options come first")
	assert.Equal(t, 1, *leaf.Options[0].MinLength)
	assert.Equal(t, 25.0, leaf.Options[1].MaxValue)

	menu := find(cmds, "User Info")
	require.NotNil(t, menu)
	assert.Equal(t, discordgo.UserApplicationCommand, menu.Type)
	assert.Empty(t, menu.Description)
}

func TestHashIgnoresOrder(t *testing.T) {
	d := defs()
	a := HashCommands(BuildCommands(d))
	reversed := []*command.Definition{d[4], d[3], d[2], d[1], d[0]}
	assert.Equal(t, a, HashCommands(BuildCommands(reversed)))

	d[1].Description = "changed"
	assert.NotEqual(t, a, HashCommands(BuildCommands(d)))
}

func TestShardForGuild(t *testing.T) {
	id, err := ShardForGuild("81384788765712384", 4)
	require.NoError(t, err)
	assert.Equal(t, int((uint64(81384788765712384)>>22)%4), id)

	id, err = ShardForGuild("81384788765712384", 0)
	require.NoError(t, err)
	assert.Zero(t, id)

	_, err = ShardForGuild("not-a-snowflake", 4)
	assert.Error(t, err)
}

type fakeWriter struct {
	calls int
	fail  []error
}

func (f *fakeWriter) ApplicationCommandBulkOverwrite(_, _ string, cmds []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	f.calls++
	if len(f.fail) > 0 {
		err := f.fail[0]
		f.fail = f.fail[1:]
		return nil, err
	}
	out := make([]*discordgo.ApplicationCommand, 0, len(cmds))
	for i, c := range cmds {
		out = append(out, &discordgo.ApplicationCommand{ID: string(rune('1' + i)), Name: c.Name})
	}
	return out, nil
}

func testPublisher(t *testing.T, w CommandWriter) (*Publisher, *store.Store) {
	st, err := store.Open(filepath.Join(t.TempDir(), "store.json"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	p := NewPublisher(w, st)
	p.limiter = nil
	p.retry = retrylimit.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, RateLimitDelay: time.Millisecond}
	return p, st
}

func TestPublishSkipsUnchangedTree(t *testing.T) {
	w := &fakeWriter{}
	p, st := testPublisher(t, w)
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, "app", "", defs()))
	require.NoError(t, p.Publish(ctx, "app", "", defs()))
	assert.Equal(t, 1, w.calls)

	var rec publishRecord
	ok, err := st.Get("commands:global", &rec)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, rec.IDs, 4)

	require.NoError(t, p.Publish(ctx, "app", "g1", defs()))
	assert.Equal(t, 2, w.calls, "guild scope has its own record")
}

func TestPublishRetriesServerErrors(t *testing.T) {
	serverErr := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusBadGateway}}
	w := &fakeWriter{fail: []error{serverErr}}
	p, _ := testPublisher(t, w)
	require.NoError(t, p.Publish(context.Background(), "app", "", defs()))
	assert.Equal(t, 2, w.calls)
}

func TestPublishStopsOnClientErrors(t *testing.T) {
	badReq := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusBadRequest}}
	w := &fakeWriter{fail: []error{badReq}}
	p, _ := testPublisher(t, w)
	assert.Error(t, p.Publish(context.Background(), "app", "", defs()))
	assert.Equal(t, 1, w.calls)
}

func TestMention(t *testing.T) {
	p, _ := testPublisher(t, &fakeWriter{})
	d := defs()
	assert.Equal(t, "`/bot ping`", p.Mention(d[1]))

	require.NoError(t, p.Publish(context.Background(), "app", "", d))
	assert.Equal(t, "</help:"+p.ids["help"]+">", p.Mention(d[0]))
	assert.Equal(t, "</bot ping:"+p.ids["bot"]+">", p.Mention(d[1]))
	assert.Equal(t, "</developers reload command:"+p.ids["developers"]+">", p.Mention(d[3]))
	assert.Equal(t, "**User Info**", p.Mention(d[4]))
}
