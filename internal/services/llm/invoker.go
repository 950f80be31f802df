package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/moverwatch/internal/interfaces"
)

// DefaultMaxTurns bounds the assistant turns of one session.
const DefaultMaxTurns = 20

// Session is one model conversation bound to a single candidate.
type Session interface {
	// Complete sends the history and returns the next assistant message.
	// Quota failures are returned as *QuotaError.
	Complete(ctx context.Context, history []interfaces.Message) (interfaces.Message, error)
}

// SessionFactory opens a session for a candidate with the given tools advertised.
type SessionFactory func(ctx context.Context, candidate Candidate, tools []interfaces.ToolSpec) (Session, error)

// Invoker drives a tool-calling conversation across an ordered candidate list.
// The cursor only moves forward: a candidate that ran out of quota is never tried again
// by this invoker, including on later calls to Run.
type Invoker struct {
	candidates []Candidate
	newSession SessionFactory
	tools      interfaces.ToolExecutor
	maxTurns   int
	logger     arbor.ILogger

	mu     sync.Mutex
	cursor int
}

// NewInvoker creates an invoker over candidates.
func NewInvoker(candidates []Candidate, newSession SessionFactory, tools interfaces.ToolExecutor, maxTurns int, logger arbor.ILogger) *Invoker {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Invoker{
		candidates: append([]Candidate(nil), candidates...),
		newSession: newSession,
		tools:      tools,
		maxTurns:   maxTurns,
		logger:     logger,
	}
}

// Cursor returns the index of the candidate the next session will use.
func (inv *Invoker) Cursor() int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.cursor
}

// Candidates returns the number of candidates.
func (inv *Invoker) Candidates() int {
	return len(inv.candidates)
}

// current returns the candidate at the cursor, or false when the list is exhausted.
func (inv *Invoker) current() (int, Candidate, bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.cursor >= len(inv.candidates) {
		return inv.cursor, Candidate{}, false
	}
	return inv.cursor, inv.candidates[inv.cursor], true
}

// advance moves past index if no other caller already has.
func (inv *Invoker) advance(index int) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.cursor == index {
		inv.cursor++
	}
}

// Run drives conversation until the model answers without tool calls and returns the full history.
// On a quota failure the next candidate continues from the accumulated history. Any other
// failure is returned immediately, naming the candidate in use.
func (inv *Invoker) Run(ctx context.Context, conversation []interfaces.Message) ([]interfaces.Message, error) {
	history := append([]interfaces.Message(nil), conversation...)
	var lastErr error

	for {
		index, candidate, ok := inv.current()
		if !ok {
			if lastErr != nil {
				return history, fmt.Errorf("%w: %w", ErrCandidatesExhausted, lastErr)
			}
			return history, ErrCandidatesExhausted
		}

		inv.logger.Info().
			Str("model", candidate.Model).
			Str("provider", string(candidate.Provider)).
			Str("key", candidate.KeyHint()).
			Int("candidate", index+1).
			Int("candidates", len(inv.candidates)).
			Msg("Starting model session")

		session, err := inv.newSession(ctx, candidate, inv.tools.Tools())
		if err != nil {
			return history, fmt.Errorf("%s: failed to create session: %w", candidate, err)
		}

		var runErr error
		history, runErr = inv.drive(ctx, session, history)
		if runErr == nil {
			return history, nil
		}

		if !IsQuotaError(runErr) {
			return history, fmt.Errorf("%s: %w", candidate, runErr)
		}

		inv.logger.Warn().
			Str("model", candidate.Model).
			Str("key", candidate.KeyHint()).
			Err(runErr).
			Msgf("Rate limited on %s (key %s)", candidate.Model, candidate.KeyHint())

		inv.advance(index)
		lastErr = fmt.Errorf("%s: %w", candidate, runErr)
	}
}

// drive runs assistant turns and tool calls until a turn asks for no tools.
// The returned history includes every message produced, even on failure.
func (inv *Invoker) drive(ctx context.Context, session Session, history []interfaces.Message) ([]interfaces.Message, error) {
	for turn := 0; turn < inv.maxTurns; turn++ {
		reply, err := session.Complete(ctx, history)
		if err != nil {
			return history, err
		}
		reply.Role = interfaces.RoleAssistant
		history = append(history, reply)

		if len(reply.ToolCalls) == 0 {
			return history, nil
		}

		// One tool at a time; tools such as send_email have side effects
		for _, call := range reply.ToolCalls {
			start := time.Now()
			content, isError := inv.tools.Execute(ctx, call.Name, call.Arguments)

			inv.logger.Info().
				Str("tool", call.Name).
				Bool("error", isError).
				Int("result_bytes", len(content)).
				Dur("elapsed", time.Since(start)).
				Msg("Tool call finished")

			history = append(history, interfaces.Message{
				Role:       interfaces.RoleTool,
				Content:    content,
				ToolCallID: call.ID,
				Name:       call.Name,
				IsError:    isError,
			})
		}
	}
	return history, fmt.Errorf("%w (%d)", ErrMaxTurns, inv.maxTurns)
}
