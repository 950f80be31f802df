package llm

import (
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/ternarybob/moverwatch/internal/common"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
)

// DetectProvider determines the provider type from a model string.
// Model strings can be:
// - "claude-sonnet-4-20250514" -> Claude
// - "claude/claude-sonnet-4-20250514" -> Claude (with prefix)
// - "gemini-3-flash" -> Gemini
// - "gemini/gemini-3-flash" -> Gemini (with prefix)
// - anything else -> fallback
func DetectProvider(model string, fallback common.LLMProvider) ProviderType {
	model = strings.ToLower(strings.TrimSpace(model))

	// Check for explicit provider prefix
	if strings.HasPrefix(model, "claude/") || strings.HasPrefix(model, "anthropic/") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini/") || strings.HasPrefix(model, "google/") {
		return ProviderGemini
	}

	// Check for model name patterns
	if strings.HasPrefix(model, "claude-") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini-") {
		return ProviderGemini
	}

	if fallback == common.LLMProviderGemini {
		return ProviderGemini
	}
	return ProviderClaude
}

// NormalizeModel removes provider prefix from model name if present
func NormalizeModel(model string) string {
	model = strings.TrimSpace(model)
	prefixes := []string{"claude/", "anthropic/", "gemini/", "google/"}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// parseGeminiThinkingLevel converts a string thinking level to genai.ThinkingLevel
func parseGeminiThinkingLevel(level string) genai.ThinkingLevel {
	switch strings.ToUpper(level) {
	case "MINIMAL":
		return genai.ThinkingLevelMinimal
	case "LOW":
		return genai.ThinkingLevelLow
	case "MEDIUM":
		return genai.ThinkingLevelMedium
	case "HIGH":
		return genai.ThinkingLevelHigh
	default:
		return ""
	}
}

// convertToGenaiSchema converts a map[string]interface{} representation of a JSON schema
// to a genai.Schema structure so one tool definition serves both providers.
func convertToGenaiSchema(schemaMap map[string]interface{}) (*genai.Schema, error) {
	if schemaMap == nil || len(schemaMap) == 0 {
		return nil, nil
	}

	schema := &genai.Schema{}

	// Type
	if typeStr, ok := schemaMap["type"].(string); ok {
		switch strings.ToLower(typeStr) {
		case "object":
			schema.Type = genai.TypeObject
		case "array":
			schema.Type = genai.TypeArray
		case "string":
			schema.Type = genai.TypeString
		case "number":
			schema.Type = genai.TypeNumber
		case "integer":
			schema.Type = genai.TypeInteger
		case "boolean":
			schema.Type = genai.TypeBoolean
		}
	}

	// Description
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}

	// Enum
	if enumVals, ok := schemaMap["enum"].([]interface{}); ok {
		for _, v := range enumVals {
			if s, ok := v.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	} else if enumVals, ok := schemaMap["enum"].([]string); ok {
		schema.Enum = enumVals
	}

	// Required
	if reqVals, ok := schemaMap["required"].([]interface{}); ok {
		for _, v := range reqVals {
			if s, ok := v.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	} else if reqVals, ok := schemaMap["required"].([]string); ok {
		schema.Required = reqVals
	}

	// Minimum/Maximum for integers
	if minVal, ok := schemaMap["minimum"].(int64); ok {
		f := float64(minVal)
		schema.Minimum = &f
	} else if minVal, ok := schemaMap["minimum"].(float64); ok {
		schema.Minimum = &minVal
	}
	if maxVal, ok := schemaMap["maximum"].(int64); ok {
		f := float64(maxVal)
		schema.Maximum = &f
	} else if maxVal, ok := schemaMap["maximum"].(float64); ok {
		schema.Maximum = &maxVal
	}

	// Items (for arrays)
	if itemsMap, ok := schemaMap["items"].(map[string]interface{}); ok {
		itemSchema, err := convertToGenaiSchema(itemsMap)
		if err != nil {
			return nil, fmt.Errorf("failed to convert items schema: %w", err)
		}
		schema.Items = itemSchema
	}

	// Properties (for objects)
	if propsMap, ok := schemaMap["properties"].(map[string]interface{}); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for propName, propVal := range propsMap {
			if propMap, ok := propVal.(map[string]interface{}); ok {
				propSchema, err := convertToGenaiSchema(propMap)
				if err != nil {
					return nil, fmt.Errorf("failed to convert property '%s': %w", propName, err)
				}
				schema.Properties[propName] = propSchema
			}
		}
	}

	return schema, nil
}
