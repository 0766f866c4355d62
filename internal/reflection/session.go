// Package reflection runs the bounded negotiation between a handler and its
// auxiliary agent. A Session quotes the turn's context to the agent, lets a
// Strategy extract and apply actionable items, and re-asks with the refreshed
// context until the agent is satisfied or the round bound is reached.
package reflection

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"preflight/internal/agent"
	"preflight/internal/config"
	"preflight/internal/conversation"
	"preflight/internal/logging"
	"preflight/internal/types"
	"preflight/internal/ux"
)

// State is a session's position in its loop.
type State int

const (
	BuildRequest State = iota
	AwaitResponse
	Evaluate
	ApplyEffect
	Done
)

func (s State) String() string {
	switch s {
	case BuildRequest:
		return "build_request"
	case AwaitResponse:
		return "await_response"
	case Evaluate:
		return "evaluate"
	case ApplyEffect:
		return "apply_effect"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config parameterizes a session.
type Config struct {
	Handler   string // used in warnings and logs
	Agent     types.AgentClient
	AgentName string
	MaxRounds int
	Reminder  config.ReminderMode
	Tools     []types.ToolDefinition
	Out       ux.Output
}

// Session is one handler invocation's negotiation with its auxiliary agent.
// It never touches the shared context; it returns the confirmed delta.
type Session struct {
	id       string
	cfg      Config
	strategy Strategy

	state      State
	rounds     int
	snapshot   []types.Message
	transcript []types.Message
	delta      types.Delta
	reply      *types.Message
	pending    []Item
	resolved   map[string]bool
}

// New creates a session. MaxRounds below 1 means DefaultReflections.
func New(cfg Config, strategy Strategy) *Session {
	if cfg.MaxRounds < 1 {
		cfg.MaxRounds = config.DefaultReflections
	}
	if cfg.Reminder == "" {
		cfg.Reminder = config.ReminderSystem
	}
	if cfg.Out == nil {
		cfg.Out = ux.Discard
	}
	if cfg.AgentName == "" {
		cfg.AgentName = cfg.Handler
	}
	return &Session{
		id:       uuid.NewString()[:8],
		cfg:      cfg,
		strategy: strategy,
		resolved: make(map[string]bool),
	}
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Rounds returns the number of requests sent to the agent.
func (s *Session) Rounds() int { return s.rounds }

// Resolved reports whether an item with key was already approved, declined
// or suppressed in this session.
func (s *Session) Resolved(key string) bool { return s.resolved[key] }

// Transcript returns a copy of the negotiation so far.
func (s *Session) Transcript() []types.Message { return types.CloneMessages(s.transcript) }

// Run negotiates against snapshot and returns the confirmed delta. Any error
// discards everything confirmed so far.
func (s *Session) Run(ctx context.Context, snapshot []types.Message) (types.Delta, error) {
	s.snapshot = types.CloneMessages(snapshot)
	s.state = BuildRequest
	log := logging.Get(logging.CategoryReflection).With("session", s.id, "handler", s.cfg.Handler)

	for {
		log.Debug("round %d: %s", s.rounds, s.state)
		switch s.state {
		case BuildRequest:
			s.buildRequest()
			s.state = AwaitResponse

		case AwaitResponse:
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			reply, err := s.cfg.Agent.Complete(ctx, types.AgentRequest{
				Messages: s.request(),
				Tools:    s.cfg.Tools,
			})
			s.rounds++
			if err != nil {
				if !agent.IsTransportError(err) && ctx.Err() == nil {
					err = &agent.TransportError{Agent: s.cfg.AgentName, Err: err}
				}
				return nil, err
			}
			if reply == nil || (strings.TrimSpace(reply.Content) == "" && !reply.HasToolCalls()) {
				s.cfg.Out.Warning("Handler model returned empty response.")
				s.state = Done
				continue
			}
			log.Debug("reply: content_len=%d tool_calls=%d", len(reply.Content), len(reply.ToolCalls))
			s.reply = reply
			s.state = Evaluate

		case Evaluate:
			ev, err := s.strategy.Evaluate(ctx, s.reply)
			if err != nil {
				return nil, err
			}
			s.pending = s.unresolved(ev.Items)
			if ev.Continue || len(s.pending) == 0 {
				s.state = Done
				continue
			}
			s.state = ApplyEffect

		case ApplyEffect:
			eff, err := s.strategy.Apply(ctx, s.reply, s.pending)
			if err != nil {
				return nil, err
			}
			for _, it := range s.pending {
				s.resolved[it.Key] = true
			}
			s.delta = append(s.delta, types.CloneMessages(eff.Delta)...)
			s.transcript = append(s.transcript, s.reply.Clone())
			s.transcript = append(s.transcript, types.CloneMessages(eff.Turns)...)
			s.pending = nil

			switch {
			case eff.Done:
				s.state = Done
			case s.rounds >= s.cfg.MaxRounds:
				s.cfg.Out.Warning(fmt.Sprintf("Only %d reflections allowed, stopping.", s.cfg.MaxRounds))
				log.Info("stopped after %d rounds", s.rounds)
				s.state = Done
			default:
				s.state = BuildRequest
			}

		case Done:
			return s.delta, nil
		}
	}
}

// buildRequest creates the frame on the first round and refreshes the quoted
// context on later ones. Negotiation turns after the frame are kept.
func (s *Session) buildRequest() {
	quoted, fence := conversation.Quote(conversation.Extend(s.snapshot, s.delta))
	system := strings.NewReplacer(
		"{fence_start}", fence.Start,
		"{fence_end}", fence.End,
	).Replace(s.strategy.Prompts().System)

	if len(s.transcript) < 2 {
		s.transcript = []types.Message{
			types.SystemMessage(system),
			types.UserMessage(quoted),
		}
		return
	}
	s.transcript[0] = types.SystemMessage(system)
	s.transcript[1] = types.UserMessage(quoted)
}

// request is the transcript plus the reminder, placed per the agent's mode.
func (s *Session) request() []types.Message {
	msgs := types.CloneMessages(s.transcript)
	reminder := s.strategy.Prompts().Reminder
	if reminder == "" {
		return msgs
	}

	if s.cfg.Reminder == config.ReminderUser {
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == types.RoleUser {
				msgs[i].Content += "\n\n" + reminder
				return msgs
			}
		}
		return append(msgs, types.UserMessage(reminder))
	}
	return append(msgs, types.SystemMessage(reminder))
}

func (s *Session) unresolved(items []Item) []Item {
	var out []Item
	seen := make(map[string]bool)
	for _, it := range items {
		if s.resolved[it.Key] || seen[it.Key] {
			continue
		}
		seen[it.Key] = true
		out = append(out, it)
	}
	return out
}
