package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/keshon/kupumalam/internal/dispatch"
	"github.com/keshon/kupumalam/internal/paginator"
	"github.com/keshon/kupumalam/internal/reply"
)

func (d Deps) ping(ctx context.Context, c *dispatch.Context) error {
	ms := d.Runtime.Latency(c.Interaction.ShardID).Milliseconds()
	return c.Reply(ctx, reply.Text(fmt.Sprintf("🏓 Pong `%dms`", ms)).Private())
}

func (d Deps) uptime(ctx context.Context, c *dispatch.Context) error {
	since := d.Runtime.StartedAt().Unix()
	return c.Reply(ctx, reply.Text("🏓 I'm running since <t:"+strconv.FormatInt(since, 10)+":R>"))
}

const demoPages = 10

func (d Deps) paginate(ctx context.Context, c *dispatch.Context) error {
	pages := make([]reply.Message, demoPages)
	for i := range pages {
		pages[i] = reply.Text(fmt.Sprintf("Page %d", i+1))
	}
	_, err := d.Pager.Start(ctx, view{c.Responder}, pages, c.Interaction.UserID, paginator.Options{
		Timeout:   2 * time.Minute,
		Ephemeral: flag(c.Interaction, "ephemeral"),
	})
	return err
}
