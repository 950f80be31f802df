package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/moverwatch/internal/interfaces"
	"github.com/ternarybob/moverwatch/internal/models"
)

// Config holds the per-run parameters
type Config struct {
	Period     models.Period
	Recipients []string
}

// Report is the outcome of one run
type Report struct {
	RunID     string
	Period    models.Period
	Content   string
	Messages  []interfaces.Message
	ToolCalls int
	Started   time.Time
	Elapsed   time.Duration
}

// Service runs the daily analysis conversation
type Service struct {
	runner interfaces.ConversationRunner
	config Config
	logger arbor.ILogger
	now    func() time.Time
}

// NewService creates the analysis workflow
func NewService(runner interfaces.ConversationRunner, config Config, logger arbor.ILogger) *Service {
	if config.Period == "" {
		config.Period = models.DefaultPeriod
	}
	return &Service{
		runner: runner,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Run drives one analysis session and returns the model's final answer
func (s *Service) Run(ctx context.Context) (*Report, error) {
	started := s.now()
	runID := uuid.NewString()

	s.logger.Info().
		Str("run_id", runID).
		Str("period", string(s.config.Period)).
		Strs("recipients", s.config.Recipients).
		Msgf("Running %s NASDAQ analysis", s.config.Period)

	conversation := []interfaces.Message{
		{Role: interfaces.RoleSystem, Content: SystemPrompt(s.config.Period, s.config.Recipients, started)},
		{Role: interfaces.RoleUser, Content: UserPrompt(s.config.Period)},
	}

	messages, err := s.runner.Run(ctx, conversation)
	if err != nil {
		s.logger.Error().Str("run_id", runID).Err(err).Msg("Analysis failed")
		return nil, fmt.Errorf("analysis run %s failed: %w", runID, err)
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("analysis run %s returned no messages", runID)
	}

	report := &Report{
		RunID:    runID,
		Period:   s.config.Period,
		Content:  messages[len(messages)-1].Content,
		Messages: messages,
		Started:  started,
		Elapsed:  s.now().Sub(started),
	}
	for _, m := range messages {
		report.ToolCalls += len(m.ToolCalls)
	}

	s.logger.Info().
		Str("run_id", runID).
		Int("messages", len(messages)).
		Int("tool_calls", report.ToolCalls).
		Dur("elapsed", report.Elapsed).
		Msg("Analysis complete")
	return report, nil
}
