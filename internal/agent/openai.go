package agent

import (
	"context"
	"time"

	"github.com/sashabaranov/go-openai"

	"preflight/internal/config"
	"preflight/internal/logging"
	"preflight/internal/types"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	name    string
	model   string
	timeout time.Duration
	client  *openai.Client
}

// NewOpenAIClient creates a client for the agent cfg describes.
// A BaseURL points it at a compatible server.
func NewOpenAIClient(name string, cfg config.AgentConfig) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		name:    name,
		model:   cfg.Model,
		timeout: cfg.GetTimeout(),
		client:  openai.NewClientWithConfig(oc),
	}
}

// Complete sends the request and returns the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, req types.AgentRequest) (*types.Message, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	logging.AgentDebug("[%s] openai request: model=%s messages=%d tools=%d", c.name, c.model, len(req.Messages), len(req.Tools))

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toOpenAIMessages(req.Messages),
		Tools:    toOpenAITools(req.Tools),
	})
	if err != nil {
		return nil, &TransportError{Agent: c.name, Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &TransportError{Agent: c.name, Err: ErrNoChoices}
	}

	msg, err := fromOpenAIMessage(resp.Choices[0].Message)
	if err != nil {
		return nil, &TransportError{Agent: c.name, Err: err}
	}
	logging.AgentDebug("[%s] openai reply in %v: content_len=%d tool_calls=%d", c.name, time.Since(start), len(msg.Content), len(msg.ToolCalls))
	return msg, nil
}

func toOpenAIMessages(msgs []types.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.ArgumentsJSON(),
				},
			})
		}
		out = append(out, om)
	}
	return out
}

func toOpenAITools(defs []types.ToolDefinition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  schemaOrEmpty(d.InputSchema),
			},
		})
	}
	return out
}

func fromOpenAIMessage(om openai.ChatCompletionMessage) (*types.Message, error) {
	msg := &types.Message{Role: types.RoleAssistant, Content: om.Content}
	for _, tc := range om.ToolCalls {
		args, err := types.ParseArguments(tc.Function.Arguments)
		if err != nil {
			return nil, err
		}
		msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return msg, nil
}

func schemaOrEmpty(schema map[string]interface{}) map[string]interface{} {
	if len(schema) == 0 {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return schema
}
