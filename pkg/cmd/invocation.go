// Package cmd is the transport-agnostic command contract: a command has a
// name, a description and a Run. Adapters decide how commands are declared to
// a platform and what they put in an Invocation.
package cmd

import "context"

// Invocation is the input handed to Run. Args carries positional arguments
// for line-oriented adapters; Data carries the adapter's own context, e.g.
// *dispatch.Context for interactions.
type Invocation struct {
	Args []string
	Data any
}

// Command is identity plus execution.
type Command interface {
	Name() string
	Description() string
	Run(ctx context.Context, inv *Invocation) error
}

// Func adapts a plain function to Command.
type Func struct {
	CommandName string
	Help        string
	RunFunc     func(ctx context.Context, inv *Invocation) error
}

func (f *Func) Name() string        { return f.CommandName }
func (f *Func) Description() string { return f.Help }

func (f *Func) Run(ctx context.Context, inv *Invocation) error {
	return f.RunFunc(ctx, inv)
}
