// Package commands holds the compiled bodies of the built-in commands.
// Manifests in the command tree bind to them by handler name.
package commands

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/keshon/kupumalam/internal/cluster"
	"github.com/keshon/kupumalam/internal/command"
	"github.com/keshon/kupumalam/internal/dispatch"
	"github.com/keshon/kupumalam/internal/paginator"
	"github.com/keshon/kupumalam/internal/reply"
	"github.com/keshon/kupumalam/pkg/cmd"
)

var errNoContext = errors.New("invocation carries no dispatch context")

// Runtime is the local process state commands report on.
type Runtime interface {
	Latency(shardID int) time.Duration
	StartedAt() time.Time
	Guilds() []cluster.GuildSummary
}

// Catalog lists and reloads loaded definitions.
type Catalog interface {
	All() []*command.Definition
	Reload(name string) (*command.Definition, error)
}

// Mentioner renders a reference to a command.
type Mentioner interface {
	Mention(def *command.Definition) string
}

// Totaler reports bot-wide counters.
type Totaler interface {
	Totals(ctx context.Context) (cluster.Totals, error)
}

// Pager opens paged replies.
type Pager interface {
	Start(ctx context.Context, view paginator.View, pages []reply.Message, owner string, opts paginator.Options) (*paginator.Session, error)
}

// Deps are the collaborators of the built-in commands. Cluster may be nil on
// a single-process deployment.
type Deps struct {
	Runtime  Runtime
	Catalog  Catalog
	Mentions Mentioner
	Cluster  Totaler
	Pager    Pager

	EvalTimeout time.Duration
}

type handlerFunc func(ctx context.Context, c *dispatch.Context) error

func bind(name, help string, fn handlerFunc) cmd.Command {
	return &cmd.Func{
		CommandName: name,
		Help:        help,
		RunFunc: func(ctx context.Context, inv *cmd.Invocation) error {
			c, ok := dispatch.FromInvocation(inv)
			if !ok {
				return errNoContext
			}
			return fn(ctx, c)
		},
	}
}

// Register adds every built-in handler to r, each wrapped in mws.
func Register(r *cmd.Registry, d Deps, mws ...cmd.Middleware) error {
	if d.EvalTimeout <= 0 {
		d.EvalTimeout = defaultEvalTimeout
	}
	all := []cmd.Command{
		bind("help", "Paged list of commands by category", d.help),
		bind("ping", "Gateway heartbeat latency", d.ping),
		bind("uptime", "Time since the process started", d.uptime),
		bind("paginate", "Paginator demo", d.paginate),
		bind("guilds", "Guilds cached by this process", d.guilds),
		bind("eval", "Evaluate JavaScript", d.eval),
		bind("reload", "Reload one command from disk", d.reload),
		bind("userinfo", "Details about a user", d.userInfo),
		bind(respondHandler, "Static manifest response", respond),
	}
	for _, c := range all {
		if err := r.Register(c, mws...); err != nil {
			return err
		}
	}
	return nil
}

// view shows paged replies through the interaction's initial response.
type view struct{ r dispatch.Responder }

func (v view) Show(ctx context.Context, m reply.Message) error { return v.r.Reply(ctx, m) }
func (v view) Edit(ctx context.Context, m reply.Message) error { return v.r.EditReply(ctx, m) }

// flag reads a yes/no option declared either as a boolean or as a
// "true"/"false" string choice.
func flag(in *dispatch.Interaction, name string) bool {
	switch v := in.Options[name].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	return false
}
