package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/moverwatch/internal/common"
	"github.com/ternarybob/moverwatch/internal/interfaces"
)

// GeminiSession talks to the Gemini API with function calling.
type GeminiSession struct {
	client  *genai.Client
	model   string
	config  common.GeminiConfig
	tools   []*genai.Tool
	timeout time.Duration
	logger  arbor.ILogger
}

// NewGeminiSession creates a session for one Gemini candidate.
func NewGeminiSession(ctx context.Context, candidate Candidate, config common.GeminiConfig, tools []interfaces.ToolSpec, timeout time.Duration, logger arbor.ILogger) (*GeminiSession, error) {
	if candidate.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  candidate.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	geminiTools, err := geminiToolsFromSpecs(tools)
	if err != nil {
		return nil, err
	}

	return &GeminiSession{
		client:  client,
		model:   candidate.Model,
		config:  config,
		tools:   geminiTools,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Complete sends the history and returns the next assistant message.
func (s *GeminiSession) Complete(ctx context.Context, history []interfaces.Message) (interfaces.Message, error) {
	contents, systemText, err := convertMessagesToGemini(history)
	if err != nil {
		return interfaces.Message{}, fmt.Errorf("failed to convert messages: %w", err)
	}

	config := &genai.GenerateContentConfig{
		Tools: s.tools,
	}
	if s.config.Temperature > 0 {
		config.Temperature = genai.Ptr(s.config.Temperature)
	}
	if systemText != "" {
		config.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}
	if s.usesThinking() {
		if level := parseGeminiThinkingLevel(s.config.Thinking); level != "" {
			config.ThinkingConfig = &genai.ThinkingConfig{
				ThinkingLevel: level,
			}
		}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, config)
	if err != nil {
		return interfaces.Message{}, classifyGeminiError(s.model, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return interfaces.Message{}, fmt.Errorf("empty response from Gemini API")
	}

	reply := interfaces.Message{Role: interfaces.RoleAssistant}
	for _, call := range resp.FunctionCalls() {
		args, err := json.Marshal(call.Args)
		if err != nil {
			return interfaces.Message{}, fmt.Errorf("failed to encode arguments for %s: %w", call.Name, err)
		}
		id := call.ID
		if id == "" {
			// Claude needs an ID to pair results if the conversation fails over
			id = "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		}
		reply.ToolCalls = append(reply.ToolCalls, interfaces.ToolCall{
			ID:        id,
			Name:      call.Name,
			Arguments: args,
		})
	}
	reply.Content = textParts(resp)

	s.logger.Debug().
		Str("model", s.model).
		Int("tool_calls", len(reply.ToolCalls)).
		Dur("elapsed", time.Since(start)).
		Msg("Gemini turn completed")

	if reply.Content == "" && len(reply.ToolCalls) == 0 {
		return interfaces.Message{}, fmt.Errorf("empty text in Gemini response")
	}
	return reply, nil
}

func (s *GeminiSession) usesThinking() bool {
	if s.config.Thinking == "" {
		return false
	}
	if len(s.config.ThinkingModels) == 0 {
		return strings.HasPrefix(s.model, "gemini-3")
	}
	for _, m := range s.config.ThinkingModels {
		if strings.EqualFold(m, s.model) {
			return true
		}
	}
	return false
}

// textParts joins the non-thought text of the first candidate.
func textParts(resp *genai.GenerateContentResponse) string {
	if resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

// convertMessagesToGemini converts the conversation to Gemini contents.
// Assistant tool calls become function-call parts on a model turn; consecutive
// tool results are grouped into one user turn of function responses.
func convertMessagesToGemini(messages []interfaces.Message) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	contents := make([]*genai.Content, 0, len(messages))
	var systemParts []string
	var pendingResults []*genai.Part

	flushResults := func() {
		if len(pendingResults) > 0 {
			contents = append(contents, genai.NewContentFromParts(pendingResults, genai.RoleUser))
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
			part := genai.NewPartFromFunctionResponse(msg.Name, functionResponse(msg.Content))
			part.FunctionResponse.ID = msg.ToolCallID
			pendingResults = append(pendingResults, part)
		case interfaces.RoleAssistant:
			flushResults()
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.NewPartFromText(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				args := map[string]any{}
				if len(call.Arguments) > 0 {
					if err := json.Unmarshal(call.Arguments, &args); err != nil {
						return nil, "", fmt.Errorf("invalid arguments for %s: %w", call.Name, err)
					}
				}
				part := genai.NewPartFromFunctionCall(call.Name, args)
				part.FunctionCall.ID = call.ID
				parts = append(parts, part)
			}
			if len(parts) > 0 {
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
			}
		default:
			flushResults()
			hasUserMessage = true
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	flushResults()

	if !hasUserMessage {
		return nil, "", fmt.Errorf("at least one message must have role 'user'")
	}

	return contents, strings.Join(systemParts, "\n\n"), nil
}

// functionResponse wraps a tool's JSON result as the response map Gemini expects.
// Objects pass through; anything else is placed under "output".
func functionResponse(content string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"output": content}
}

func geminiToolsFromSpecs(specs []interfaces.ToolSpec) ([]*genai.Tool, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		schema, err := convertToGenaiSchema(spec.Parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to convert schema for tool %s: %w", spec.Name, err)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}, nil
}
