package commands

import (
	"context"
	"fmt"

	"github.com/keshon/kupumalam/internal/dispatch"
	"github.com/keshon/kupumalam/internal/reply"
)

const respondHandler = "respond"

// respond renders the static response declared in a manifest.
func respond(ctx context.Context, c *dispatch.Context) error {
	r := c.Command.Response
	if r == nil {
		return fmt.Errorf("%s declares no response", c.Command.Key)
	}
	m := reply.Text(r.Content)
	if r.Title != "" || r.Description != "" {
		m.Embeds = []reply.Embed{{Title: r.Title, Description: r.Description}}
	}
	m.Ephemeral = r.Ephemeral
	return c.Reply(ctx, m)
}
