package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/keshon/kupumalam/internal/dispatch"
	"github.com/keshon/kupumalam/internal/reply"

	"github.com/rs/zerolog/log"
)

const (
	defaultGuildLimit = 10
	// guildListBudget keeps the guild list inside one message.
	guildListBudget = 1700
)

func (d Deps) guilds(ctx context.Context, c *dispatch.Context) error {
	limit := defaultGuildLimit
	if n, ok := c.Interaction.Number("limit"); ok && n != 0 {
		limit = int(n)
	}
	if limit <= 0 {
		return c.Reply(ctx, reply.Text("❌ The limit must be a positive number.").Private())
	}

	all := d.Runtime.Guilds()
	var entries []string
	size := 0
	for _, g := range all {
		if len(entries) == limit {
			break
		}
		members := "Unknown"
		if g.Members > 0 {
			members = strconv.Itoa(g.Members)
		}
		entry := fmt.Sprintf("- name: %s\n  id: %s\n  members: %s", g.Name, g.ID, members)
		if size+len(entry) > guildListBudget {
			break
		}
		size += len(entry) + 2
		entries = append(entries, entry)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 **Guilds (Showing %d/%d):**\n```yaml\n%s\n```", len(entries), len(all), strings.Join(entries, "\n\n"))
	if line := d.clusterLine(ctx); line != "" {
		b.WriteString("\n" + line)
	}
	return c.Reply(ctx, reply.Text(b.String()).Private())
}

func (d Deps) clusterLine(ctx context.Context) string {
	if d.Cluster == nil {
		return ""
	}
	t, err := d.Cluster.Totals(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("cluster totals unavailable")
		return ""
	}
	line := fmt.Sprintf("🌐 Cluster: **%d** guilds and **%d** members across %d processes", t.Guilds, t.Members, t.Processes)
	if len(t.Missing) > 0 {
		line += " (no answer from " + strings.Join(t.Missing, ", ") + ")"
	}
	return line
}

func (d Deps) reload(ctx context.Context, c *dispatch.Context) error {
	name := c.Interaction.String("name")
	if _, err := d.Catalog.Reload(name); err != nil {
		log.Error().Err(err).Str("command", name).Msg("reload failed")
		return c.Reply(ctx, reply.Text(fmt.Sprintf("❌ Failed to reload command: **%s**. Check the logs for details.", name)).Private())
	}
	return c.Reply(ctx, reply.Text(fmt.Sprintf("✅ Successfully reloaded command: **%s**.", name)).Private())
}
