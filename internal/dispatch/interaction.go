package dispatch

import (
	"context"
	"time"

	"github.com/keshon/kupumalam/internal/command"
	"github.com/keshon/kupumalam/internal/cooldown"
	"github.com/keshon/kupumalam/internal/reply"
	"github.com/keshon/kupumalam/pkg/cmd"
)

// Interaction is a decoded inbound command event.
type Interaction struct {
	ID        string
	Path      command.EventPath
	UserID    string
	Username  string
	GuildID   string
	ChannelID string
	ShardID   int

	// Options holds option values by name: string, float64, bool, or the
	// snowflake string of a user, role, channel or attachment.
	Options map[string]any

	// TargetID is the user or message a context-menu command was used on.
	TargetID string

	// Users holds the users the event resolved, keyed by ID. It always has
	// the target of a user context-menu command.
	Users map[string]*User

	// Raw is the transport's own event value.
	Raw any
}

// User is a resolved platform user.
type User struct {
	ID         string
	Username   string
	GlobalName string
	Bot        bool
	AvatarURL  string
	Nickname   string
	JoinedAt   time.Time
	Roles      []string
}

// String returns the option value for name, or "" if absent.
func (in *Interaction) String(name string) string {
	s, _ := in.Options[name].(string)
	return s
}

// Number returns the numeric option value for name.
func (in *Interaction) Number(name string) (float64, bool) {
	v, ok := in.Options[name].(float64)
	return v, ok
}

// Bool returns the boolean option value for name.
func (in *Interaction) Bool(name string) bool {
	b, _ := in.Options[name].(bool)
	return b
}

// Responder delivers replies for one interaction.
type Responder interface {
	Reply(ctx context.Context, m reply.Message) error
	FollowUp(ctx context.Context, m reply.Message) error
	EditReply(ctx context.Context, m reply.Message) error
	ChannelMessage(ctx context.Context, m reply.Message) error
	// Defer acknowledges the interaction now; the answer follows through
	// EditReply.
	Defer(ctx context.Context, ephemeral bool) error
	// Replied reports whether an initial reply has been sent.
	Replied() bool
}

// Capabilities answers what the bot itself may do in a channel.
type Capabilities interface {
	HasChannelCapabilities(ctx context.Context, channelID string, caps int64) (bool, error)
}

// Identity answers questions about the invoking member.
type Identity interface {
	IsGuildOwner(ctx context.Context, guildID, userID string) (bool, error)
	MemberHasPermissions(ctx context.Context, guildID, userID string, perms int64) (bool, error)
}

// Developers is the static developer allow-list.
type Developers interface {
	IsDeveloper(userID string) bool
}

// Resolver looks up definitions by dispatch key.
type Resolver interface {
	Resolve(key string) (*command.Definition, error)
}

// Admitter is the cooldown check.
type Admitter interface {
	Check(req cooldown.Request) error
}

// Context is what a command body receives through cmd.Invocation.Data.
type Context struct {
	Interaction *Interaction
	Command     *command.Definition
	Responder   Responder
}

// FromInvocation extracts the dispatch context from inv.
func FromInvocation(inv *cmd.Invocation) (*Context, bool) {
	if inv == nil {
		return nil, false
	}
	c, ok := inv.Data.(*Context)
	return c, ok
}

// Reply is shorthand for c.Responder.Reply.
func (c *Context) Reply(ctx context.Context, m reply.Message) error {
	return c.Responder.Reply(ctx, m)
}
