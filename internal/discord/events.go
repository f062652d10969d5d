package discord

import (
	"github.com/keshon/kupumalam/internal/command"
	"github.com/keshon/kupumalam/internal/dispatch"

	"github.com/bwmarrin/discordgo"
)

// toInteraction decodes an application command event. Subcommand groups and
// subcommands are unwrapped into the path; the options that remain are the
// leaf command's.
func toInteraction(i *discordgo.Interaction, shardID int) *dispatch.Interaction {
	data := i.ApplicationCommandData()
	in := &dispatch.Interaction{
		ID:        i.ID,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		ShardID:   shardID,
		Path:      command.EventPath{Name: data.Name},
		Options:   map[string]any{},
		Raw:       i,
	}
	if u := invoker(i); u != nil {
		in.UserID = u.ID
		in.Username = u.Username
	}

	switch data.CommandType {
	case discordgo.UserApplicationCommand, discordgo.MessageApplicationCommand:
		in.Path.Context = true
		in.TargetID = data.TargetID
	default:
		opts := data.Options
		if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommandGroup {
			in.Path.Group = opts[0].Name
			opts = opts[0].Options
		}
		if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
			in.Path.Subcommand = opts[0].Name
			opts = opts[0].Options
		}
		for _, o := range opts {
			in.Options[o.Name] = o.Value
		}
	}

	in.Users = resolvedUsers(data.Resolved)
	return in
}

func invoker(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func resolvedUsers(r *discordgo.ApplicationCommandInteractionDataResolved) map[string]*dispatch.User {
	if r == nil || len(r.Users) == 0 {
		return nil
	}
	out := make(map[string]*dispatch.User, len(r.Users))
	for id, u := range r.Users {
		du := &dispatch.User{
			ID:         u.ID,
			Username:   u.Username,
			GlobalName: u.GlobalName,
			Bot:        u.Bot,
			AvatarURL:  u.AvatarURL("256"),
		}
		if m, ok := r.Members[id]; ok && m != nil {
			du.Nickname = m.Nick
			du.JoinedAt = m.JoinedAt
			du.Roles = m.Roles
		}
		out[id] = du
	}
	return out
}

// modalValues collects text input values of a modal submission by custom ID.
func modalValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	values := make(map[string]string)
	for _, c := range data.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, rc := range row.Components {
			if ti, ok := rc.(*discordgo.TextInput); ok {
				values[ti.CustomID] = ti.Value
			}
		}
	}
	return values
}
