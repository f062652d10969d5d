package commands

import (
	"context"
	"time"

	"github.com/keshon/kupumalam/internal/dispatch"
	"github.com/keshon/kupumalam/pkg/cmd"

	"github.com/rs/zerolog/log"
)

// WithCommandLogger logs every command run with its caller and duration.
func WithCommandLogger() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			start := time.Now()
			err := c.Run(ctx, inv)

			ev := log.Info()
			if err != nil {
				ev = log.Warn().Err(err)
			}
			ev = ev.Str("handler", c.Name()).Dur("took", time.Since(start))
			if dc, ok := dispatch.FromInvocation(inv); ok {
				ev = ev.Str("key", dc.Command.Key).
					Str("user", dc.Interaction.UserID).
					Str("guild", dc.Interaction.GuildID).
					Str("channel", dc.Interaction.ChannelID)
			}
			ev.Msg("command executed")
			return err
		})
	}
}
