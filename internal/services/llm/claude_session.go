package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/moverwatch/internal/common"
	"github.com/ternarybob/moverwatch/internal/interfaces"
)

// ClaudeSession talks to the Anthropic Messages API with tool use.
type ClaudeSession struct {
	client  anthropic.Client
	model   string
	config  common.ClaudeConfig
	tools   []anthropic.ToolUnionParam
	timeout time.Duration
	logger  arbor.ILogger
}

// NewClaudeSession creates a session for one Claude candidate.
// SDK retries default to zero so a 429 reaches the invoker instead of being absorbed.
func NewClaudeSession(candidate Candidate, config common.ClaudeConfig, tools []interfaces.ToolSpec, timeout time.Duration, logger arbor.ILogger) (*ClaudeSession, error) {
	if candidate.APIKey == "" {
		return nil, fmt.Errorf("Claude API key is required")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(candidate.APIKey),
		option.WithMaxRetries(config.MaxRetries),
	)

	return &ClaudeSession{
		client:  client,
		model:   candidate.Model,
		config:  config,
		tools:   claudeTools(tools),
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Complete sends the history and returns the next assistant message.
func (s *ClaudeSession) Complete(ctx context.Context, history []interfaces.Message) (interfaces.Message, error) {
	messages, systemText, err := convertMessagesToClaude(history)
	if err != nil {
		return interfaces.Message{}, fmt.Errorf("failed to convert messages: %w", err)
	}

	maxTokens := s.config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
		Tools:     s.tools,
	}
	if s.config.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(s.config.Temperature))
	}
	if systemText != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemText},
		}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return interfaces.Message{}, classifyClaudeError(s.model, err)
	}

	reply := interfaces.Message{Role: interfaces.RoleAssistant}
	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			reply.ToolCalls = append(reply.ToolCalls, interfaces.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: append(json.RawMessage(nil), block.Input...),
			})
		}
	}
	reply.Content = text.String()

	s.logger.Debug().
		Str("model", s.model).
		Str("stop_reason", string(resp.StopReason)).
		Int("tool_calls", len(reply.ToolCalls)).
		Int64("input_tokens", resp.Usage.InputTokens).
		Int64("output_tokens", resp.Usage.OutputTokens).
		Dur("elapsed", time.Since(start)).
		Msg("Claude turn completed")

	if reply.Content == "" && len(reply.ToolCalls) == 0 {
		return interfaces.Message{}, fmt.Errorf("empty response from Claude API")
	}
	return reply, nil
}

// convertMessagesToClaude converts the conversation to Claude MessageParam format.
// System messages are joined into the System parameter. Consecutive tool results are
// grouped into one user message, as the API expects all results of a turn together.
func convertMessagesToClaude(messages []interfaces.Message) ([]anthropic.MessageParam, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	claudeMessages := make([]anthropic.MessageParam, 0, len(messages))
	var systemParts []string
	var pendingResults []anthropic.ContentBlockParamUnion

	flushResults := func() {
		if len(pendingResults) > 0 {
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	hasUserMessage := false
	for _, msg := range messages {
		switch msg.Role {
		case interfaces.RoleSystem:
			if msg.Content != "" {
				systemParts = append(systemParts, msg.Content)
			}
		case interfaces.RoleTool:
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, msg.IsError))
		case interfaces.RoleAssistant:
			flushResults()
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, toolInput(call.Arguments), call.Name))
			}
			if len(blocks) > 0 {
				claudeMessages = append(claudeMessages, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			flushResults()
			hasUserMessage = true
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}
	flushResults()

	if !hasUserMessage {
		return nil, "", fmt.Errorf("at least one message must have role 'user'")
	}

	return claudeMessages, strings.Join(systemParts, "\n\n"), nil
}

// toolInput returns arguments as a JSON value, defaulting to an empty object.
func toolInput(args json.RawMessage) json.RawMessage {
	if len(strings.TrimSpace(string(args))) == 0 {
		return json.RawMessage(`{}`)
	}
	return args
}

func claudeTools(specs []interfaces.ToolSpec) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		schema := anthropic.ToolInputSchemaParam{
			Properties: spec.Parameters["properties"],
		}
		if required, ok := spec.Parameters["required"].([]string); ok {
			schema.Required = required
		}
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        spec.Name,
				Description: anthropic.String(spec.Description),
				InputSchema: schema,
			},
		})
	}
	return tools
}
