package discord

import (
	"time"

	"github.com/keshon/kupumalam/internal/reply"

	"github.com/bwmarrin/discordgo"
)

// Embed colours per reply kind.
const (
	ColorNormal  = 0x5865f2
	ColorSuccess = 0x57f287
	ColorWarning = 0xfee75c
	ColorError   = 0xed4245
)

func color(k reply.Kind) int {
	switch k {
	case reply.Success:
		return ColorSuccess
	case reply.Warning:
		return ColorWarning
	case reply.Error:
		return ColorError
	}
	return ColorNormal
}

// renderer turns transport-neutral replies into discordgo payloads. brand is
// the footer text used when an embed does not set its own.
type renderer struct {
	brand string
	now   func() time.Time
}

func (r renderer) embeds(m reply.Message) []*discordgo.MessageEmbed {
	if len(m.Embeds) == 0 {
		return nil
	}
	out := make([]*discordgo.MessageEmbed, 0, len(m.Embeds))
	for _, e := range m.Embeds {
		footer := e.Footer
		if footer == "" {
			footer = r.brand
		}
		me := &discordgo.MessageEmbed{
			Title:       e.Title,
			Description: e.Description,
			Color:       color(e.Kind),
			Timestamp:   r.now().UTC().Format(time.RFC3339),
		}
		if footer != "" {
			me.Footer = &discordgo.MessageEmbedFooter{Text: footer}
		}
		for _, f := range e.Fields {
			me.Fields = append(me.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
		out = append(out, me)
	}
	return out
}

func components(buttons []reply.Button) []discordgo.MessageComponent {
	if len(buttons) == 0 {
		return nil
	}
	row := discordgo.ActionsRow{}
	for _, b := range buttons {
		btn := discordgo.Button{
			CustomID: b.ID,
			Label:    b.Label,
			Style:    buttonStyle(b.Style),
			Disabled: b.Disabled,
		}
		if b.Emoji != "" {
			btn.Emoji = &discordgo.ComponentEmoji{Name: b.Emoji}
		}
		row.Components = append(row.Components, btn)
	}
	return []discordgo.MessageComponent{row}
}

func buttonStyle(s reply.ButtonStyle) discordgo.ButtonStyle {
	switch s {
	case reply.Primary:
		return discordgo.PrimaryButton
	case reply.Successful:
		return discordgo.SuccessButton
	case reply.Danger:
		return discordgo.DangerButton
	}
	return discordgo.SecondaryButton
}

func flags(m reply.Message) discordgo.MessageFlags {
	if m.Ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

func (r renderer) responseData(m reply.Message) *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{
		Content:    m.Content,
		Embeds:     r.embeds(m),
		Components: components(m.Buttons),
		Flags:      flags(m),
	}
}

// updateData is responseData for an in-place message update. Components are
// always set so that removing every button clears the row.
func (r renderer) updateData(m reply.Message) *discordgo.InteractionResponseData {
	d := r.responseData(m)
	d.Flags = 0
	if d.Components == nil {
		d.Components = []discordgo.MessageComponent{}
	}
	return d
}

func (r renderer) webhookParams(m reply.Message) *discordgo.WebhookParams {
	return &discordgo.WebhookParams{
		Content:    m.Content,
		Embeds:     r.embeds(m),
		Components: components(m.Buttons),
		Flags:      flags(m),
	}
}

func (r renderer) webhookEdit(m reply.Message) *discordgo.WebhookEdit {
	content := m.Content
	embeds := r.embeds(m)
	if embeds == nil {
		embeds = []*discordgo.MessageEmbed{}
	}
	comps := components(m.Buttons)
	if comps == nil {
		comps = []discordgo.MessageComponent{}
	}
	return &discordgo.WebhookEdit{Content: &content, Embeds: &embeds, Components: &comps}
}

func (r renderer) messageSend(m reply.Message) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content:    m.Content,
		Embeds:     r.embeds(m),
		Components: components(m.Buttons),
	}
}

func modalData(m reply.Modal) *discordgo.InteractionResponseData {
	rows := make([]discordgo.MessageComponent, 0, len(m.Inputs))
	for _, in := range m.Inputs {
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID:    in.ID,
				Label:       in.Label,
				Style:       discordgo.TextInputShort,
				Placeholder: in.Placeholder,
				Required:    in.Required,
				MinLength:   in.MinLength,
				MaxLength:   in.MaxLength,
			},
		}})
	}
	return &discordgo.InteractionResponseData{CustomID: m.ID, Title: m.Title, Components: rows}
}
