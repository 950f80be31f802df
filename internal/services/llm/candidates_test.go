package llm

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"

	"github.com/ternarybob/moverwatch/internal/common"
)

func TestBuildCandidatesOrder(t *testing.T) {
	cands := BuildCandidates(
		[]string{"claude-sonnet-4-20250514", "gemini/gemini-3-flash-preview", "claude-3-5-haiku-20241022"},
		map[ProviderType][]string{
			ProviderClaude: {"sk-ant-aaaaaa111111", "", "sk-ant-bbbbbb222222"},
			ProviderGemini: {"AIzaGEMINI333333"},
		},
		common.LLMProviderClaude,
	)

	got := make([]string, 0, len(cands))
	for _, c := range cands {
		got = append(got, c.String())
	}
	assert.Equal(t, []string{
		"claude-sonnet-4-20250514 (key ...111111)",
		"claude-sonnet-4-20250514 (key ...222222)",
		"gemini-3-flash-preview (key ...333333)",
		"claude-3-5-haiku-20241022 (key ...111111)",
		"claude-3-5-haiku-20241022 (key ...222222)",
	}, got)
	assert.Equal(t, ProviderGemini, cands[2].Provider)
}

func TestBuildCandidatesSkipsModelsWithoutKeys(t *testing.T) {
	cands := BuildCandidates(
		[]string{"gemini-3-flash-preview", "claude-sonnet-4-20250514"},
		map[ProviderType][]string{ProviderClaude: {"sk-ant-key"}},
		common.LLMProviderClaude,
	)
	assert.Len(t, cands, 1)
	assert.Equal(t, "claude-sonnet-4-20250514", cands[0].Model)
}

func TestRedactKey(t *testing.T) {
	assert.Equal(t, "...abcdef", RedactKey("sk-ant-api03-xyzabcdef"))
	assert.Equal(t, "...abc", RedactKey("abc"))
}

func TestDetectProvider(t *testing.T) {
	assert.Equal(t, ProviderClaude, DetectProvider("claude-3-5-haiku", common.LLMProviderGemini))
	assert.Equal(t, ProviderClaude, DetectProvider("anthropic/claude-3-5-haiku", common.LLMProviderGemini))
	assert.Equal(t, ProviderGemini, DetectProvider("google/gemini-2.5-pro", common.LLMProviderClaude))
	assert.Equal(t, ProviderGemini, DetectProvider("custom-model", common.LLMProviderGemini))
	assert.Equal(t, "gemini-2.5-pro", NormalizeModel("google/gemini-2.5-pro"))
}

func TestClassifyGeminiError(t *testing.T) {
	err := classifyGeminiError("gemini-3-flash", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "Please retry in 45.5s."})
	assert.True(t, IsQuotaError(err))

	var qe *QuotaError
	assert.ErrorAs(t, err, &qe)
	assert.Equal(t, 45500*time.Millisecond, qe.RetryAfter)

	err = classifyGeminiError("gemini-3-flash", genai.APIError{Code: 400, Status: "INVALID_ARGUMENT"})
	assert.False(t, IsQuotaError(err))

	err = classifyGeminiError("gemini-3-flash", fmt.Errorf("wrapped: %w", errors.New("Error 429, Status: RESOURCE_EXHAUSTED")))
	assert.True(t, IsQuotaError(err))
}

func TestClassifyClaudeError(t *testing.T) {
	err := classifyClaudeError("claude-3-5-haiku", &anthropic.Error{StatusCode: 429})
	assert.True(t, IsQuotaError(err))

	err = classifyClaudeError("claude-3-5-haiku", &anthropic.Error{StatusCode: 500})
	assert.False(t, IsQuotaError(err))
}
