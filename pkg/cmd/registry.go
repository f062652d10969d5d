package cmd

import (
	"fmt"
	"sort"
	"sync"
)

// Registry stores command bodies by name. It does not dispatch; adapters look
// commands up and invoke them with their own Invocation.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds c, optionally wrapped in middlewares. Registering a name twice
// is an error.
func (r *Registry) Register(c Command, mws ...Middleware) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[c.Name()]; exists {
		return fmt.Errorf("command %q already registered", c.Name())
	}
	r.commands[c.Name()] = Apply(c, mws...)
	return nil
}

// MustRegister is Register for setup code that cannot continue on error.
func (r *Registry) MustRegister(c Command, mws ...Middleware) {
	if err := r.Register(c, mws...); err != nil {
		panic(err)
	}
}

// Get returns the command with the given name, or nil.
func (r *Registry) Get(name string) Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commands[name]
}

// GetAll returns all registered commands, sorted by name.
func (r *Registry) GetAll() []Command {
	r.mu.RLock()
	list := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		list = append(list, c)
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})
	return list
}
