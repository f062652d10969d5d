package cmd

import "context"

// Middleware wraps a command (logging, tracing, access checks). The wrapped
// value is still a Command and keeps the inner command's name.
type Middleware func(Command) Command

// Apply applies middlewares in order; the last in the list is the outermost.
func Apply(c Command, mws ...Middleware) Command {
	for _, mw := range mws {
		c = mw(c)
	}
	return c
}

type layer struct {
	inner Command
	run   func(ctx context.Context, inv *Invocation) error
}

func (l *layer) Name() string        { return l.inner.Name() }
func (l *layer) Description() string { return l.inner.Description() }

func (l *layer) Run(ctx context.Context, inv *Invocation) error {
	if l.run == nil {
		return l.inner.Run(ctx, inv)
	}
	return l.run(ctx, inv)
}

// Wrap returns a command named like c that runs run instead of c.Run. A nil
// run falls through to c.
func Wrap(c Command, run func(ctx context.Context, inv *Invocation) error) Command {
	return &layer{inner: c, run: run}
}

// Base peels every Wrap layer off c and returns the command underneath.
func Base(c Command) Command {
	for {
		l, ok := c.(*layer)
		if !ok {
			return c
		}
		c = l.inner
	}
}
