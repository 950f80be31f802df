package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/moverwatch/internal/common"
	"github.com/ternarybob/moverwatch/internal/interfaces"
)

// NewSessionFactory returns a factory that opens Claude or Gemini sessions per candidate.
func NewSessionFactory(config *common.Config, logger arbor.ILogger) SessionFactory {
	timeout := common.Duration(config.LLM.Timeout, 2*time.Minute)

	return func(ctx context.Context, candidate Candidate, tools []interfaces.ToolSpec) (Session, error) {
		switch candidate.Provider {
		case ProviderClaude:
			return NewClaudeSession(candidate, config.Claude, tools, timeout, logger)
		case ProviderGemini:
			return NewGeminiSession(ctx, candidate, config.Gemini, tools, timeout, logger)
		default:
			return nil, fmt.Errorf("unsupported provider: %s", candidate.Provider)
		}
	}
}
