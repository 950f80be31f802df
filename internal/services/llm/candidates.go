package llm

import (
	"fmt"

	"github.com/ternarybob/moverwatch/internal/common"
)

// Candidate is one model bound to one credential.
type Candidate struct {
	Provider ProviderType
	Model    string
	APIKey   string
}

// KeyHint returns the last six characters of the credential for logs and errors.
func (c Candidate) KeyHint() string {
	return RedactKey(c.APIKey)
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s (key %s)", c.Model, c.KeyHint())
}

// RedactKey keeps only the last six characters of a secret.
func RedactKey(key string) string {
	if len(key) <= 6 {
		return "..." + key
	}
	return "..." + key[len(key)-6:]
}

// BuildCandidates pairs each model, in order, with each non-empty credential of its provider, in order.
// The result is the failover order and is never reordered.
func BuildCandidates(models []string, keys map[ProviderType][]string, defaultProvider common.LLMProvider) []Candidate {
	var candidates []Candidate
	for _, raw := range models {
		model := NormalizeModel(raw)
		if model == "" {
			continue
		}
		provider := DetectProvider(raw, defaultProvider)
		for _, key := range keys[provider] {
			if key == "" {
				continue
			}
			candidates = append(candidates, Candidate{
				Provider: provider,
				Model:    model,
				APIKey:   key,
			})
		}
	}
	return candidates
}

// CandidatesFromConfig builds the candidate list from the [llm], [claude] and [gemini] sections.
func CandidatesFromConfig(config *common.Config) []Candidate {
	return BuildCandidates(config.LLM.Models, map[ProviderType][]string{
		ProviderClaude: config.Claude.APIKeys,
		ProviderGemini: config.Gemini.APIKeys,
	}, config.LLM.DefaultProvider)
}
