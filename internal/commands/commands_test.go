package commands

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/keshon/kupumalam/internal/cluster"
	"github.com/keshon/kupumalam/internal/command"
	"github.com/keshon/kupumalam/internal/dispatch"
	"github.com/keshon/kupumalam/internal/paginator"
	"github.com/keshon/kupumalam/internal/registry"
	"github.com/keshon/kupumalam/internal/reply"
	"github.com/keshon/kupumalam/pkg/cmd"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	replies   []reply.Message
	edits     []reply.Message
	followUps []reply.Message
	deferred  bool
}

func (r *recorder) Reply(_ context.Context, m reply.Message) error {
	r.replies = append(r.replies, m)
	return nil
}

func (r *recorder) FollowUp(_ context.Context, m reply.Message) error {
	r.followUps = append(r.followUps, m)
	return nil
}

func (r *recorder) EditReply(_ context.Context, m reply.Message) error {
	r.edits = append(r.edits, m)
	return nil
}

func (r *recorder) ChannelMessage(context.Context, reply.Message) error { return nil }

func (r *recorder) Defer(context.Context, bool) error {
	r.deferred = true
	return nil
}

func (r *recorder) Replied() bool { return r.deferred || len(r.replies) > 0 }

type fakeRuntime struct {
	latency time.Duration
	started time.Time
	guilds  []cluster.GuildSummary
}

func (f fakeRuntime) Latency(int) time.Duration      { return f.latency }
func (f fakeRuntime) StartedAt() time.Time           { return f.started }
func (f fakeRuntime) Guilds() []cluster.GuildSummary { return f.guilds }

type fakeCatalog struct {
	defs     []*command.Definition
	reloaded []string
}

func (f *fakeCatalog) All() []*command.Definition { return f.defs }

func (f *fakeCatalog) Reload(name string) (*command.Definition, error) {
	for _, d := range f.defs {
		if d.Name == name {
			f.reloaded = append(f.reloaded, name)
			return d, nil
		}
	}
	return nil, registry.ErrNotFound
}

type pathMentions struct{}

func (pathMentions) Mention(d *command.Definition) string { return "`" + d.Path() + "`" }

type fakeTotals struct {
	t   cluster.Totals
	err error
}

func (f fakeTotals) Totals(context.Context) (cluster.Totals, error) { return f.t, f.err }

type noopTimer struct{}

func (noopTimer) Stop() bool { return true }

func newPager() *paginator.Manager {
	return paginator.NewManager(paginator.Options{
		AfterFunc: func(time.Duration, func()) paginator.Timer { return noopTimer{} },
	})
}

func sampleDefs() []*command.Definition {
	return []*command.Definition{
		{Key: "slashcmd_help", Kind: command.KindSlash, Name: "help", Description: "Shows the list of commands", Category: "bot"},
		{Key: "subcmd_bot_ping", Kind: command.KindSubcommand, Name: "ping", Dir: "bot", Description: "Shows the Bot's Ping", Category: "bot"},
		{Key: "subcmd_demo_paginate", Kind: command.KindSubcommand, Name: "paginate", Dir: "demo", Description: "Test", Category: "demo", Hidden: true},
		{Key: "subcmd_developers_eval", Kind: command.KindSubcommand, Name: "eval", Dir: "developers", Description: "Evaluates JavaScript code", Category: "developers"},
		{Key: "groupcmd_reload_developers_command", Kind: command.KindGroup, Name: "command", Dir: "developers", Group: "reload", Description: "Reload a specific command"},
	}
}

type harness struct {
	reg     *cmd.Registry
	deps    Deps
	catalog *fakeCatalog
}

func newHarness(t *testing.T, mutate ...func(*Deps)) *harness {
	t.Helper()
	cat := &fakeCatalog{defs: sampleDefs()}
	d := Deps{
		Runtime: fakeRuntime{
			latency: 42 * time.Millisecond,
			started: time.Unix(1700000000, 0),
			guilds: []cluster.GuildSummary{
				{ID: "1", Name: "Alpha", Members: 30},
				{ID: "2", Name: "Beta"},
			},
		},
		Catalog:     cat,
		Mentions:    pathMentions{},
		Pager:       newPager(),
		EvalTimeout: time.Second,
	}
	for _, m := range mutate {
		m(&d)
	}
	reg := cmd.NewRegistry()
	require.NoError(t, Register(reg, d))
	return &harness{reg: reg, deps: d, catalog: cat}
}

func (h *harness) run(t *testing.T, handler string, in *dispatch.Interaction, def *command.Definition) (*recorder, error) {
	t.Helper()
	if in.Options == nil {
		in.Options = map[string]any{}
	}
	if def == nil {
		def = &command.Definition{Key: "slashcmd_" + handler, Name: handler}
	}
	r := &recorder{}
	c := h.reg.Get(handler)
	require.NotNil(t, c, handler)
	err := c.Run(context.Background(), &cmd.Invocation{Data: &dispatch.Context{Interaction: in, Command: def, Responder: r}})
	return r, err
}

func TestRegisterAllHandlers(t *testing.T) {
	h := newHarness(t)
	for _, name := range []string{"help", "ping", "uptime", "paginate", "guilds", "eval", "reload", "userinfo", "respond"} {
		assert.NotNil(t, h.reg.Get(name), name)
	}
	assert.ErrorIs(t, h.reg.Get("ping").Run(context.Background(), &cmd.Invocation{}), errNoContext)
}

func TestPing(t *testing.T) {
	h := newHarness(t)
	r, err := h.run(t, "ping", &dispatch.Interaction{}, nil)
	require.NoError(t, err)
	require.Len(t, r.replies, 1)
	assert.Equal(t, "🏓 Pong `42ms`", r.replies[0].Content)
	assert.True(t, r.replies[0].Ephemeral)
}

func TestUptime(t *testing.T) {
	h := newHarness(t)
	r, err := h.run(t, "uptime", &dispatch.Interaction{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "🏓 I'm running since <t:1700000000:R>", r.replies[0].Content)
}

func TestHelpPages(t *testing.T) {
	h := newHarness(t)
	r, err := h.run(t, "help", &dispatch.Interaction{UserID: "u1", Username: "alice", Options: map[string]any{"silent": "true"}}, nil)
	require.NoError(t, err)
	require.Len(t, r.replies, 1)
	first := r.replies[0]
	assert.True(t, first.Ephemeral)
	require.Len(t, first.Embeds, 1)
	assert.Equal(t, "Welcome to the Help Command", first.Embeds[0].Title)
	assert.Equal(t, "Requested by alice | Page 1 of 3", first.Embeds[0].Footer)
	assert.Len(t, first.Buttons, 5)

	pages := h.deps.helpPages("alice")
	require.Len(t, pages, 3, "hidden and uncategorised commands are left out")
	assert.Equal(t, "Bot Category", pages[1].Embeds[0].Title)
	assert.Equal(t, "**1**. `/help` - Shows the list of commands\n**2**. `/bot ping` - Shows the Bot's Ping", pages[1].Embeds[0].Description)
	assert.Equal(t, "Developers Category", pages[2].Embeds[0].Title)
	assert.Equal(t, "Requested by alice | Page 3 of 3", pages[2].Embeds[0].Footer)
}

func TestHelpWithoutCommands(t *testing.T) {
	h := newHarness(t)
	h.catalog.defs = nil
	r, err := h.run(t, "help", &dispatch.Interaction{}, nil)
	require.NoError(t, err)
	require.Len(t, r.replies, 1)
	assert.Equal(t, "No commands available.", r.replies[0].Content)
	assert.False(t, r.replies[0].Ephemeral)
}

func TestPaginateDemo(t *testing.T) {
	h := newHarness(t)
	r, err := h.run(t, "paginate", &dispatch.Interaction{UserID: "u1", Options: map[string]any{"ephemeral": "false"}}, nil)
	require.NoError(t, err)
	require.Len(t, r.replies, 1)
	assert.Equal(t, "Page 1", r.replies[0].Content)
	assert.False(t, r.replies[0].Ephemeral)
	assert.Equal(t, 1, h.deps.Pager.(*paginator.Manager).Len())
}

func TestGuilds(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		d.Cluster = fakeTotals{t: cluster.Totals{Guilds: 10, Members: 500, Processes: 2, Missing: []string{"2"}}}
	})
	r, err := h.run(t, "guilds", &dispatch.Interaction{}, nil)
	require.NoError(t, err)
	require.Len(t, r.replies, 1)
	want := "📋 **Guilds (Showing 2/2):**\n```yaml\n- name: Alpha\n  id: 1\n  members: 30\n\n- name: Beta\n  id: 2\n  members: Unknown\n```\n" +
		"🌐 Cluster: **10** guilds and **500** members across 2 processes (no answer from 2)"
	assert.Equal(t, want, r.replies[0].Content)
	assert.True(t, r.replies[0].Ephemeral)
}

func TestGuildsLimit(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Cluster = fakeTotals{err: cluster.ErrNoPeers} })

	r, err := h.run(t, "guilds", &dispatch.Interaction{Options: map[string]any{"limit": float64(1)}}, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(r.replies[0].Content, "📋 **Guilds (Showing 1/2):**"))
	assert.NotContains(t, r.replies[0].Content, "Beta")
	assert.NotContains(t, r.replies[0].Content, "Cluster")

	r, err = h.run(t, "guilds", &dispatch.Interaction{Options: map[string]any{"limit": float64(-3)}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "❌ The limit must be a positive number.", r.replies[0].Content)
}

func TestReload(t *testing.T) {
	h := newHarness(t)
	r, err := h.run(t, "reload", &dispatch.Interaction{Options: map[string]any{"name": "ping"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "✅ Successfully reloaded command: **ping**.", r.replies[0].Content)
	assert.Equal(t, []string{"ping"}, h.catalog.reloaded)

	r, err = h.run(t, "reload", &dispatch.Interaction{Options: map[string]any{"name": "nope"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "❌ Failed to reload command: **nope**. Check the logs for details.", r.replies[0].Content)
	assert.True(t, r.replies[0].Ephemeral)
}

func evalIn(code string) *dispatch.Interaction {
	return &dispatch.Interaction{UserID: "dev", Options: map[string]any{"code": code}}
}

func TestEvalResults(t *testing.T) {
	h := newHarness(t)
	cases := map[string]string{
		"1 + 1":                 "2",
		"'hello'":               "hello",
		"({a: 1})":              "{\n  \"a\": 1\n}",
		"undefined":             "undefined",
		"interaction.user":      "dev",
		"bot.guilds":            "2",
		"const x = await Promise.resolve(3); return x * 2": "6",
	}
	for code, want := range cases {
		r, err := h.run(t, "eval", evalIn(code), nil)
		require.NoError(t, err, code)
		assert.True(t, r.deferred)
		require.Len(t, r.edits, 1, code)
		assert.Equal(t, "✅ **Result:**\n```js\n"+want+"\n```", r.edits[0].Content, code)
	}
}

func TestEvalErrors(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.EvalTimeout = 50 * time.Millisecond })

	r, err := h.run(t, "eval", evalIn("throw new Error('kaput')"), nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(r.edits[0].Content, "❌ **Error:**\n```js\n"))
	assert.Contains(t, r.edits[0].Content, "kaput")

	r, err = h.run(t, "eval", evalIn("while (true) {}"), nil)
	require.NoError(t, err)
	assert.Contains(t, r.edits[0].Content, "timed out")

	r, err = h.run(t, "eval", evalIn("await Promise.reject('no')"), nil)
	require.NoError(t, err)
	assert.Contains(t, r.edits[0].Content, "rejected")
}

func TestEvalChunksLongResults(t *testing.T) {
	h := newHarness(t)
	r, err := h.run(t, "eval", evalIn("'x'.repeat(4000)"), nil)
	require.NoError(t, err)
	require.Len(t, r.edits, 1)
	assert.Equal(t, "📋 **Result too long. Splitting into chunks:**", r.edits[0].Content)
	require.Len(t, r.followUps, 3)
	assert.Equal(t, "```js\n"+strings.Repeat("x", evalChunkSize)+"\n```", r.followUps[0].Content)
	assert.Equal(t, "```js\n"+strings.Repeat("x", 4000-2*evalChunkSize)+"\n```", r.followUps[2].Content)
	assert.True(t, r.followUps[1].Ephemeral)
}

func TestChunkRunes(t *testing.T) {
	assert.Equal(t, []string{"ab", "cd", "e"}, chunkRunes("abcde", 2))
	assert.Equal(t, []string{"éé", "é"}, chunkRunes("ééé", 2))
	assert.Nil(t, chunkRunes("", 2))
}

func TestUserInfo(t *testing.T) {
	h := newHarness(t)
	joined := time.Unix(1600000000, 0)
	in := &dispatch.Interaction{
		TargetID: "u9",
		Users: map[string]*dispatch.User{
			"u9": {ID: "u9", Username: "zed", GlobalName: "Zed", JoinedAt: joined, Roles: []string{"r1", "r2"}},
		},
	}
	r, err := h.run(t, "userinfo", in, nil)
	require.NoError(t, err)
	require.Len(t, r.replies, 1)
	e := r.replies[0].Embeds[0]
	assert.Equal(t, "Zed", e.Title)
	assert.True(t, r.replies[0].Ephemeral)

	values := map[string]string{}
	for _, f := range e.Fields {
		values[f.Name] = f.Value
	}
	assert.Equal(t, "zed", values["Username"])
	assert.Equal(t, "No", values["Bot"])
	assert.Equal(t, "<t:1600000000:R>", values["Joined"])
	assert.Equal(t, "<@&r1> <@&r2>", values["Roles (2)"])

	r, err = h.run(t, "userinfo", &dispatch.Interaction{TargetID: "ghost"}, nil)
	require.NoError(t, err)
	assert.Equal(t, reply.Warning, r.replies[0].Embeds[0].Kind)
}

func TestRespond(t *testing.T) {
	h := newHarness(t)
	def := &command.Definition{Key: "slashcmd_rules", Name: "rules", Response: &command.Response{Title: "Rules", Description: "Be nice", Ephemeral: true}}
	r, err := h.run(t, "respond", &dispatch.Interaction{}, def)
	require.NoError(t, err)
	require.Len(t, r.replies, 1)
	assert.Equal(t, "Rules", r.replies[0].Embeds[0].Title)
	assert.True(t, r.replies[0].Ephemeral)

	_, err = h.run(t, "respond", &dispatch.Interaction{}, &command.Definition{Key: "slashcmd_empty", Name: "empty"})
	assert.Error(t, err)
}

func TestCommandLoggerPassesThrough(t *testing.T) {
	boom := errors.New("boom")
	base := &cmd.Func{CommandName: "x", RunFunc: func(context.Context, *cmd.Invocation) error { return boom }}
	wrapped := cmd.Apply(base, WithCommandLogger())
	inv := &cmd.Invocation{Data: &dispatch.Context{Interaction: &dispatch.Interaction{}, Command: &command.Definition{Key: "slashcmd_x"}}}
	assert.ErrorIs(t, wrapped.Run(context.Background(), inv), boom)
	assert.Same(t, base, cmd.Base(wrapped))
}
