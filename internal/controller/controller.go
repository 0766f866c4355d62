// Package controller runs the handler pipeline over one turn's shared context.
package controller

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"preflight/internal/confirm"
	"preflight/internal/conversation"
	"preflight/internal/handlers"
	"preflight/internal/logging"
	"preflight/internal/types"
	"preflight/internal/ux"
)

// Controller invokes handlers in their configured order. It is the only
// writer of the shared context.
type Controller struct {
	handlers []handlers.Loaded
	out      ux.Output
}

// New creates a controller over loaded handlers.
func New(loaded []handlers.Loaded, out ux.Output) *Controller {
	if out == nil {
		out = ux.Discard
	}
	return &Controller{handlers: append([]handlers.Loaded(nil), loaded...), out: out}
}

// Handlers returns the handler names in execution order.
func (c *Controller) Handlers() []string {
	names := make([]string, 0, len(c.handlers))
	for _, h := range c.handlers {
		names = append(names, h.Name)
	}
	return names
}

// Run gives each handler a fresh snapshot of conv and applies the deltas of
// mutating handlers. A failing handler is reported and skipped; a user
// cancellation stops the turn and is returned. conv is returned for chaining.
func (c *Controller) Run(ctx context.Context, conv *conversation.Context) (*conversation.Context, error) {
	start := time.Now()
	log := logging.Get(logging.CategoryController)

	for _, h := range c.handlers {
		if err := ctx.Err(); err != nil {
			return conv, err
		}

		logging.ControllerDebug("Running handler %s (%s)", h.Name, h.Capability)
		delta, err := c.invoke(ctx, h, conv.Snapshot())
		if err != nil {
			if confirm.IsCancellation(err) || errors.Is(err, context.Canceled) {
				log.Info("Turn cancelled in %s: %v", h.Name, err)
				return conv, err
			}
			log.Warn("Handler %s failed: %v", h.Name, err)
			c.out.Warning(fmt.Sprintf("Handler %s failed: %v", h.Name, err))
			continue
		}

		if h.Capability != handlers.Mutating || delta.Empty() {
			continue
		}
		conv.Apply(delta)
		log.Info("Handler %s added %d messages", h.Name, len(delta))
	}

	logging.ControllerDebug("Pipeline finished in %v (%d handlers)", time.Since(start), len(c.handlers))
	return conv, nil
}

// invoke calls one handler, turning a panic into an error.
func (c *Controller) invoke(ctx context.Context, h handlers.Loaded, snapshot []types.Message) (delta types.Delta, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := make([]byte, 4096)
			length := runtime.Stack(stack, false)
			logging.Get(logging.CategoryController).Error("Handler %s panicked: %v\n%s", h.Name, r, stack[:length])
			delta, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Handler.Handle(ctx, snapshot)
}
