package handlers

import (
	"context"
	"fmt"

	"preflight/internal/agent"
	"preflight/internal/config"
	"preflight/internal/confirm"
	"preflight/internal/dispatch"
	"preflight/internal/logging"
	"preflight/internal/mcp"
	"preflight/internal/reflection"
	"preflight/internal/types"
	"preflight/internal/ux"
)

type mcpOptions struct {
	commonOptions `mapstructure:",squash"`
	Servers       []mcp.ServerConfig `mapstructure:"servers" validate:"dive"`
}

// MCPHandler lets an auxiliary agent call tools on MCP servers. Confirmed
// calls and their results are added to the context.
type MCPHandler struct {
	binding    agent.Binding
	rounds     int
	gate       *confirm.Gate
	out        ux.Output
	verbose    bool
	dispatcher *dispatch.Dispatcher
}

func newMCPHandler(ctx context.Context, opts map[string]interface{}, deps Deps) (Handler, error) {
	var o mcpOptions
	if err := decodeOptions("mcp", opts, &o); err != nil {
		return nil, err
	}
	if deps.Gate == nil || deps.Agents == nil {
		return nil, fmt.Errorf("mcp needs a confirmation gate and an agent")
	}

	providers := make([]dispatch.Provider, 0, len(o.Servers))
	for _, sc := range o.Servers {
		server, err := mcp.NewServer(sc)
		if err != nil {
			return nil, &ConfigurationError{Handler: "mcp", Err: err}
		}
		providers = append(providers, server)
	}
	return newMCPHandlerWith(ctx, providers, o.commonOptions, deps)
}

// newMCPHandlerWith discovers the tools of providers and builds the handler.
// Providers that fail discovery are reported and own no tools.
func newMCPHandlerWith(ctx context.Context, providers []dispatch.Provider, o commonOptions, deps Deps) (*MCPHandler, error) {
	binding, err := deps.Agents.Resolve(o.Model)
	if err != nil {
		return nil, err
	}
	out := deps.output()

	index := dispatch.NewIndex(ctx, providers)
	var dopts []dispatch.Option
	if deps.Store != nil {
		dopts = append(dopts, dispatch.WithRecorder(deps.Store))
	}

	h := &MCPHandler{
		binding:    binding,
		rounds:     o.rounds(deps),
		gate:       deps.Gate,
		out:        out,
		verbose:    deps.Verbose,
		dispatcher: dispatch.New(index, dopts...),
	}
	h.report(ctx, deps.Store)
	return h, nil
}

// report prints the servers that are available and saves their tools.
func (h *MCPHandler) report(ctx context.Context, store *mcp.Store) {
	index := h.dispatcher.Index()
	for _, p := range index.Providers() {
		if err := index.Failed(p.ID()); err != nil {
			h.out.Warning(fmt.Sprintf("Error initializing MCP server %s:\n%v", p.ID(), err))
		}
	}
	if index.Len() == 0 {
		return
	}

	h.out.Output("MCP servers configured for handler:")
	for _, p := range index.Providers() {
		if index.Failed(p.ID()) != nil {
			continue
		}
		defs := index.ProviderTools(p.ID())
		h.out.Output("  - " + p.ID())
		if h.verbose {
			for _, d := range defs {
				h.out.Output(fmt.Sprintf("    - %s: %s", d.Name, d.Summary()))
			}
		}
		if store != nil {
			if err := store.SaveTools(ctx, p.ID(), defs); err != nil {
				logging.Get(logging.CategoryStore).Warn("Failed to save tools of %s: %v", p.ID(), err)
			}
		}
	}
}

// Tools returns every tool advertised to the auxiliary agent.
func (h *MCPHandler) Tools() []types.ToolDefinition {
	return h.dispatcher.Index().Tools()
}

// Handle runs one reflection session over snapshot. Without tools it does nothing.
func (h *MCPHandler) Handle(ctx context.Context, snapshot []types.Message) (types.Delta, error) {
	tools := h.Tools()
	if len(tools) == 0 {
		return nil, nil
	}
	h.out.Output("mcp: checking for tool calls...")

	session := reflection.New(reflection.Config{
		Handler:   "mcp",
		Agent:     h.binding.Client,
		AgentName: h.binding.Name,
		MaxRounds: h.rounds,
		Reminder:  h.binding.Config.GetReminderMode(),
		Tools:     tools,
		Out:       h.out,
	}, &mcpStrategy{h: h})
	return session.Run(ctx, snapshot)
}

type mcpStrategy struct {
	h *MCPHandler
}

func (s *mcpStrategy) Prompts() reflection.Prompts {
	return reflection.Prompts{System: mcpSystem, Reminder: mcpReminder}
}

// Evaluate turns the reply's calls to known tools into items. A sentinel or
// a reply without such calls ends the session.
func (s *mcpStrategy) Evaluate(ctx context.Context, reply *types.Message) (reflection.Evaluation, error) {
	if reflection.HasSentinel(reply.Content) || !reply.HasToolCalls() {
		return reflection.Evaluation{Continue: true}, nil
	}

	index := s.h.dispatcher.Index()
	var ev reflection.Evaluation
	for _, call := range reply.ToolCalls {
		p, ok := index.Owner(call.Name)
		if !ok {
			logging.Get(logging.CategoryTools).Warn("Agent requested unknown tool %s", call.Name)
			continue
		}
		ev.Items = append(ev.Items, reflection.Item{
			Key:    "tool:" + call.Signature(),
			Label:  call.Name,
			Detail: fmt.Sprintf("Arguments: %s\nMCP Server: %s", call.ArgumentsJSON(), p.ID()),
			Value:  call,
		})
	}
	if len(ev.Items) == 0 {
		ev.Continue = true
	}
	return ev, nil
}

// Apply asks about every call, runs the confirmed ones and answers every call
// of the reply in the negotiation transcript.
func (s *mcpStrategy) Apply(ctx context.Context, reply *types.Message, items []reflection.Item) (reflection.Effect, error) {
	s.printCalls(items)

	subjects := make([]confirm.Subject, 0, len(items))
	byKey := make(map[string]types.ToolCall, len(items))
	for _, it := range items {
		subjects = append(subjects, confirm.Subject{Key: it.Key, Label: it.Label, Detail: it.Detail})
		byKey[it.Key] = it.Value.(types.ToolCall)
	}
	decision, err := s.h.gate.Review(ctx, confirm.Group{Question: "Run tool?", Subjects: subjects})
	if err != nil {
		return reflection.Effect{}, err
	}

	var confirmed []types.ToolCall
	for _, subj := range decision.Approved {
		confirmed = append(confirmed, byKey[subj.Key])
	}
	declined := make(map[string]bool)
	for _, subj := range decision.Declined {
		declined[byKey[subj.Key].ID] = true
	}
	for _, subj := range decision.Suppressed {
		declined[byKey[subj.Key].ID] = true
	}

	results := s.h.dispatcher.Dispatch(ctx, confirmed)
	resultByID := make(map[string]types.Message, len(results))
	for _, r := range results {
		resultByID[r.ToolCallID] = r
	}

	var eff reflection.Effect
	if len(confirmed) > 0 {
		assistant := types.Message{Role: types.RoleAssistant, Content: reply.Content}
		for _, c := range confirmed {
			assistant.ToolCalls = append(assistant.ToolCalls, c.Clone())
		}
		eff.Delta = append(eff.Delta, assistant)
		eff.Delta = append(eff.Delta, results...)
	}

	// Every call in the reply needs an answer before the next request.
	for _, call := range reply.ToolCalls {
		switch r, ok := resultByID[call.ID]; {
		case ok:
			eff.Turns = append(eff.Turns, r)
		case declined[call.ID]:
			eff.Turns = append(eff.Turns, types.ToolResultMessage(call.ID, toolDeclinedResult))
		default:
			eff.Turns = append(eff.Turns, types.ToolResultMessage(call.ID, toolSkippedResult))
		}
	}
	if len(confirmed) > 0 {
		eff.Turns = append(eff.Turns, types.UserMessage(toolResults))
	} else {
		eff.Turns = append(eff.Turns, types.UserMessage(toolsDeclined))
	}
	return eff, nil
}

func (s *mcpStrategy) printCalls(items []reflection.Item) {
	out := s.h.out
	out.Bold("Preparing to run MCP tools")
	index := s.h.dispatcher.Index()
	for _, it := range items {
		call := it.Value.(types.ToolCall)
		out.Output("Tool Call: " + call.Name)
		out.Output("Arguments: " + call.ArgumentsJSON())
		if p, ok := index.Owner(call.Name); ok {
			out.Output("MCP Server: " + p.ID())
		}
		if s.h.verbose {
			out.Output("Tool ID: " + call.ID)
		}
		out.Output("")
	}
}

// MCPServers returns the servers configured on an mcp handler entry.
func MCPServers(entry config.HandlerEntry) ([]mcp.ServerConfig, error) {
	var o mcpOptions
	if err := decodeOptions(entry.Name, entry.Options, &o); err != nil {
		return nil, err
	}
	return o.Servers, nil
}
