package main

import (
	"context"
	"fmt"
	"io"

	"preflight/internal/agent"
	"preflight/internal/config"
	"preflight/internal/confirm"
	"preflight/internal/controller"
	"preflight/internal/handlers"
	"preflight/internal/logging"
	"preflight/internal/mcp"
	"preflight/internal/ux"
	"preflight/internal/world"
)

// session holds what lives for the whole primary-agent session: the
// pipeline and the confirmation gate behind it.
type session struct {
	controller *controller.Controller
	gate       *confirm.Gate
	workspace  *world.Workspace
	store      *mcp.Store
	console    *ux.Console
}

type sessionOptions struct {
	in        io.Reader
	out       io.Writer
	styles    ux.Styles
	yesAlways bool
	verbose   bool
	markdown  bool
}

// newSession assembles the handler pipeline from c.
func newSession(ctx context.Context, c *config.Config, opts sessionOptions) (*session, error) {
	console := ux.NewConsole(opts.out, opts.styles)
	if opts.markdown {
		if err := console.EnableMarkdown(""); err != nil {
			logging.Boot("Markdown rendering disabled: %v", err)
		}
	}

	ws, err := world.NewWorkspace(c.Workspace)
	if err != nil {
		return nil, err
	}

	var asker confirm.Asker = confirm.NewTerminalAsker(opts.in, opts.out, opts.styles)
	if opts.yesAlways {
		asker = confirm.AutoAsker{Out: console}
	}

	s := &session{
		gate:      confirm.NewGate(asker),
		workspace: ws,
		console:   console,
	}

	if c.Store.Path != "" {
		store, err := mcp.NewStore(c.Store.Path)
		if err != nil {
			logging.Get(logging.CategoryStore).Warn("Tool store disabled: %v", err)
		} else {
			s.store = store
		}
	}

	var loaded []handlers.Loaded
	if c.Controller.Model == "" {
		logging.Boot("No auxiliary model configured, handlers disabled")
	} else {
		deps := handlers.Deps{
			Agents:      agent.NewPool(c.Agents, c.Controller.Model),
			Gate:        s.gate,
			Out:         console,
			Workspace:   ws,
			Store:       s.store,
			Reflections: c.Controller.Reflections,
			Verbose:     opts.verbose,
		}
		loaded = handlers.Load(ctx, c.HandlerEntries(), deps)
	}
	s.controller = controller.New(loaded, console)
	logging.Boot("Pipeline ready: %v", s.controller.Handlers())
	return s, nil
}

// Close releases the tool store.
func (s *session) Close() error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close tool store: %w", err)
	}
	return nil
}
