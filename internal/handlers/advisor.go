package handlers

import (
	"context"
	"errors"
	"strings"

	"preflight/internal/agent"
	"preflight/internal/reflection"
	"preflight/internal/types"
	"preflight/internal/ux"
)

type advisorOptions struct {
	Model  string `mapstructure:"model"`
	Prompt string `mapstructure:"prompt"`
}

// Advisor shows the user an auxiliary agent's review of the request.
// It is observing: the advice it returns never reaches the context.
type Advisor struct {
	binding agent.Binding
	system  string
	out     ux.Output
}

func newAdvisor(ctx context.Context, opts map[string]interface{}, deps Deps) (Handler, error) {
	var o advisorOptions
	if err := decodeOptions("advisor", opts, &o); err != nil {
		return nil, err
	}
	if deps.Agents == nil {
		return nil, errors.New("advisor needs an agent")
	}
	binding, err := deps.Agents.Resolve(o.Model)
	if err != nil {
		return nil, err
	}
	system := advisorSystem
	if strings.TrimSpace(o.Prompt) != "" {
		system = o.Prompt
	}
	return &Advisor{binding: binding, system: system, out: deps.output()}, nil
}

// Handle asks for advice once and prints it.
func (h *Advisor) Handle(ctx context.Context, snapshot []types.Message) (types.Delta, error) {
	session := reflection.New(reflection.Config{
		Handler:   "advisor",
		Agent:     h.binding.Client,
		AgentName: h.binding.Name,
		MaxRounds: 1,
		Reminder:  h.binding.Config.GetReminderMode(),
		Out:       h.out,
	}, &advisorStrategy{h: h})
	return session.Run(ctx, snapshot)
}

type advisorStrategy struct {
	h *Advisor
}

func (s *advisorStrategy) Prompts() reflection.Prompts {
	return reflection.Prompts{System: s.h.system, Reminder: advisorReminder}
}

func (s *advisorStrategy) Evaluate(ctx context.Context, reply *types.Message) (reflection.Evaluation, error) {
	advice := strings.TrimSpace(reply.Content)
	if advice == "" || reflection.HasSentinel(advice) {
		return reflection.Evaluation{Continue: true}, nil
	}
	return reflection.Evaluation{Items: []reflection.Item{{Key: "advice", Label: "advice", Value: advice}}}, nil
}

func (s *advisorStrategy) Apply(ctx context.Context, reply *types.Message, items []reflection.Item) (reflection.Effect, error) {
	advice := items[0].Value.(string)
	s.h.out.Bold("advisor:")
	s.h.out.Markdown(advice)
	return reflection.Effect{
		Delta: types.Delta{types.AssistantMessage(advice)},
		Done:  true,
	}, nil
}
