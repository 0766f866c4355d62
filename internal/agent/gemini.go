package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"preflight/internal/config"
	"preflight/internal/logging"
	"preflight/internal/types"
)

// GeminiClient talks to the Gemini API through the genai SDK.
type GeminiClient struct {
	name    string
	model   string
	timeout time.Duration
	client  *genai.Client
}

// NewGeminiClient creates a Gemini client for the agent cfg describes.
func NewGeminiClient(ctx context.Context, name string, cfg config.AgentConfig) (*GeminiClient, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{
		name:    name,
		model:   cfg.Model,
		timeout: cfg.GetTimeout(),
		client:  client,
	}, nil
}

// Complete sends the request and returns the first candidate.
func (c *GeminiClient) Complete(ctx context.Context, req types.AgentRequest) (*types.Message, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	logging.AgentDebug("[%s] gemini request: model=%s messages=%d tools=%d", c.name, c.model, len(req.Messages), len(req.Tools))

	system, contents := toGeminiContents(req.Messages)
	gc := &genai.GenerateContentConfig{SystemInstruction: system}
	if tools := toGeminiTools(req.Tools); tools != nil {
		gc.Tools = tools
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, gc)
	if err != nil {
		return nil, &TransportError{Agent: c.name, Err: err}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &TransportError{Agent: c.name, Err: ErrNoChoices}
	}

	msg := fromGeminiContent(resp.Candidates[0].Content)
	logging.AgentDebug("[%s] gemini reply in %v: content_len=%d tool_calls=%d", c.name, time.Since(start), len(msg.Content), len(msg.ToolCalls))
	return msg, nil
}

// toGeminiContents folds system turns into the system instruction and maps
// the rest onto user/model contents. Tool results become function responses
// named after the call they answer.
func toGeminiContents(msgs []types.Message) (*genai.Content, []*genai.Content) {
	var system []string
	var contents []*genai.Content
	callNames := make(map[string]string)
	// Consecutive tool results answer one model turn and share a content.
	var results *genai.Content

	for _, m := range msgs {
		if m.Role != types.RoleTool {
			results = nil
		}
		switch m.Role {
		case types.RoleSystem:
			system = append(system, m.Content)
		case types.RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				callNames[tc.ID] = tc.Name
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: tc.Arguments,
				}})
			}
			if len(parts) > 0 {
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
			}
		case types.RoleTool:
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     callNames[m.ToolCallID],
				Response: map[string]any{"output": m.Content},
			}}
			if results != nil {
				results.Parts = append(results.Parts, part)
				continue
			}
			results = genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser)
			contents = append(contents, results)
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	if len(system) == 0 {
		return nil, contents
	}
	return genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser), contents
}

func toGeminiTools(defs []types.ToolDefinition) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 d.Name,
			Description:          d.Description,
			ParametersJsonSchema: schemaOrEmpty(d.InputSchema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// fromGeminiContent maps a candidate onto an assistant message. Gemini may
// omit call ids; those get a generated one so results can be matched.
func fromGeminiContent(content *genai.Content) *types.Message {
	msg := &types.Message{Role: types.RoleAssistant}
	var text strings.Builder
	for _, p := range content.Parts {
		if p == nil {
			continue
		}
		if p.FunctionCall != nil {
			id := p.FunctionCall.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			args := p.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{ID: id, Name: p.FunctionCall.Name, Arguments: args})
			continue
		}
		if p.Text != "" && !p.Thought {
			text.WriteString(p.Text)
		}
	}
	msg.Content = text.String()
	return msg
}
