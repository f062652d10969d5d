package discord

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/keshon/kupumalam/internal/reply"

	"github.com/bwmarrin/discordgo"
)

// Sender is the subset of *discordgo.Session used to answer interactions.
type Sender interface {
	InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(i *discordgo.Interaction, edit *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(i *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var errNoReply = errors.New("interaction has no initial reply")

// Responder answers one interaction. It also serves as the paginator's view
// (Show, Edit) and, for component events, its control reply (Update,
// ShowModal).
type Responder struct {
	s       Sender
	i       *discordgo.Interaction
	r       renderer
	replied atomic.Bool
}

func newResponder(s Sender, i *discordgo.Interaction, r renderer) *Responder {
	return &Responder{s: s, i: i, r: r}
}

func (rs *Responder) Reply(ctx context.Context, m reply.Message) error {
	err := rs.s.InteractionRespond(rs.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: rs.r.responseData(m),
	}, discordgo.WithContext(ctx))
	if err == nil {
		rs.replied.Store(true)
	}
	return err
}

func (rs *Responder) Defer(ctx context.Context, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := rs.s.InteractionRespond(rs.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: data,
	}, discordgo.WithContext(ctx))
	if err == nil {
		rs.replied.Store(true)
	}
	return err
}

func (rs *Responder) FollowUp(ctx context.Context, m reply.Message) error {
	_, err := rs.s.FollowupMessageCreate(rs.i, true, rs.r.webhookParams(m), discordgo.WithContext(ctx))
	return err
}

func (rs *Responder) EditReply(ctx context.Context, m reply.Message) error {
	if !rs.replied.Load() {
		return errNoReply
	}
	_, err := rs.s.InteractionResponseEdit(rs.i, rs.r.webhookEdit(m), discordgo.WithContext(ctx))
	return err
}

func (rs *Responder) ChannelMessage(ctx context.Context, m reply.Message) error {
	_, err := rs.s.ChannelMessageSendComplex(rs.i.ChannelID, rs.r.messageSend(m), discordgo.WithContext(ctx))
	return err
}

func (rs *Responder) Replied() bool { return rs.replied.Load() }

// Show sends m as the initial reply.
func (rs *Responder) Show(ctx context.Context, m reply.Message) error {
	return rs.Reply(ctx, m)
}

// Edit replaces the initial reply.
func (rs *Responder) Edit(ctx context.Context, m reply.Message) error {
	return rs.EditReply(ctx, m)
}

// Update edits the message a component belongs to as the response to that
// component interaction.
func (rs *Responder) Update(ctx context.Context, m reply.Message) error {
	err := rs.s.InteractionRespond(rs.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: rs.r.updateData(m),
	}, discordgo.WithContext(ctx))
	if err == nil {
		rs.replied.Store(true)
	}
	return err
}

func (rs *Responder) ShowModal(ctx context.Context, m reply.Modal) error {
	err := rs.s.InteractionRespond(rs.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: modalData(m),
	}, discordgo.WithContext(ctx))
	if err == nil {
		rs.replied.Store(true)
	}
	return err
}
