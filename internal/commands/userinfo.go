package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/keshon/kupumalam/internal/dispatch"
	"github.com/keshon/kupumalam/internal/reply"
)

func (d Deps) userInfo(ctx context.Context, c *dispatch.Context) error {
	in := c.Interaction
	u, ok := in.Users[in.TargetID]
	if !ok {
		return c.Reply(ctx, reply.Notice(reply.Warning, "User Info", "I could not resolve that user.").Private())
	}

	name := u.GlobalName
	if name == "" {
		name = u.Username
	}
	fields := []reply.Field{
		{Name: "Username", Value: u.Username, Inline: true},
		{Name: "ID", Value: "`" + u.ID + "`", Inline: true},
		{Name: "Bot", Value: yesNo(u.Bot), Inline: true},
	}
	if u.Nickname != "" {
		fields = append(fields, reply.Field{Name: "Nickname", Value: u.Nickname, Inline: true})
	}
	if !u.JoinedAt.IsZero() {
		fields = append(fields, reply.Field{Name: "Joined", Value: fmt.Sprintf("<t:%d:R>", u.JoinedAt.Unix()), Inline: true})
	}
	if len(u.Roles) > 0 {
		roles := make([]string, len(u.Roles))
		for i, r := range u.Roles {
			roles[i] = "<@&" + r + ">"
		}
		fields = append(fields, reply.Field{Name: fmt.Sprintf("Roles (%d)", len(roles)), Value: strings.Join(roles, " ")})
	}

	m := reply.Message{Embeds: []reply.Embed{{Title: name, Fields: fields}}}
	return c.Reply(ctx, m.Private())
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
