package handlers

import (
	"context"
	"fmt"
	"runtime"

	"preflight/internal/config"
	"preflight/internal/logging"
	"preflight/internal/ux"
)

// Registry is an ordered set of handler registrations.
type Registry struct {
	regs   []Registration
	byName map[string]int
}

// NewRegistry validates regs: names must be unique and non-empty, every
// registration needs a constructor and a known capability.
func NewRegistry(regs ...Registration) (*Registry, error) {
	r := &Registry{byName: make(map[string]int, len(regs))}
	for _, reg := range regs {
		switch {
		case reg.Name == "":
			return nil, fmt.Errorf("handler registration without a name")
		case reg.New == nil:
			return nil, fmt.Errorf("handler %s has no constructor", reg.Name)
		case !reg.Capability.Valid():
			return nil, fmt.Errorf("handler %s has invalid %s", reg.Name, reg.Capability)
		}
		if _, dup := r.byName[reg.Name]; dup {
			return nil, fmt.Errorf("handler %s registered twice", reg.Name)
		}
		r.byName[reg.Name] = len(r.regs)
		r.regs = append(r.regs, reg)
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics on an invalid registration.
func MustRegistry(regs ...Registration) *Registry {
	r, err := NewRegistry(regs...)
	if err != nil {
		panic(err)
	}
	return r
}

var builtin = MustRegistry(
	Registration{
		Name:        "file-adder",
		Capability:  Mutating,
		Description: "asks an auxiliary agent which workspace files the request needs and adds the confirmed ones",
		New:         newFileAdder,
	},
	Registration{
		Name:        "mcp",
		Capability:  Mutating,
		Description: "lets an auxiliary agent call tools on configured MCP servers and adds the confirmed results",
		New:         newMCPHandler,
	},
	Registration{
		Name:        "advisor",
		Capability:  Observing,
		Description: "prints an auxiliary agent's review of the request without changing the context",
		New:         newAdvisor,
	},
)

// Builtin returns the registry of handlers compiled into preflight.
func Builtin() *Registry {
	return builtin
}

// Registrations returns the registrations in declaration order.
func (r *Registry) Registrations() []Registration {
	return append([]Registration(nil), r.regs...)
}

// Lookup finds a registration by name.
func (r *Registry) Lookup(name string) (Registration, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Registration{}, false
	}
	return r.regs[i], true
}

// Load constructs handlers for entries with the builtin registry.
func Load(ctx context.Context, entries []config.HandlerEntry, deps Deps) []Loaded {
	return builtin.Load(ctx, entries, deps)
}

// Load constructs handlers for entries in order. Malformed entries, unknown
// names and failing constructors are reported as warnings and skipped.
func (r *Registry) Load(ctx context.Context, entries []config.HandlerEntry, deps Deps) []Loaded {
	if deps.Out == nil {
		deps.Out = ux.Discard
	}
	warn := func(format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)
		logging.Get(logging.CategoryHandlers).Warn("%s", msg)
		deps.Out.Warning(msg)
	}

	var loaded []Loaded
	for _, e := range entries {
		if e.Invalid != nil {
			warn("Invalid handler configuration: %v", e.Invalid)
			continue
		}
		if e.Name == "" {
			warn("Handler configuration missing name: %s", e)
			continue
		}
		reg, ok := r.Lookup(e.Name)
		if !ok {
			warn("Unknown handler: %s", e.Name)
			continue
		}

		h, err := construct(ctx, reg, e.Options, deps)
		if err != nil {
			warn("Failed to instantiate handler %s: %v", e.Name, err)
			continue
		}
		logging.HandlersDebug("Loaded handler %s (%s)", reg.Name, reg.Capability)
		loaded = append(loaded, Loaded{Name: reg.Name, Capability: reg.Capability, Handler: h})
	}
	return loaded
}

// construct runs a constructor, turning a panic into an error.
func construct(ctx context.Context, reg Registration, opts map[string]interface{}, deps Deps) (h Handler, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := make([]byte, 4096)
			length := runtime.Stack(stack, false)
			logging.Get(logging.CategoryHandlers).Error("Constructor of %s panicked: %v\n%s", reg.Name, r, stack[:length])
			h, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	h, err = reg.New(ctx, opts, deps)
	if err == nil && h == nil {
		err = fmt.Errorf("constructor returned no handler")
	}
	return h, err
}
