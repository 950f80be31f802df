package llm

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"google.golang.org/genai"
)

// ErrCandidatesExhausted is returned once every model and credential pair has hit its quota.
var ErrCandidatesExhausted = errors.New("all model candidates exhausted")

// ErrMaxTurns is returned when a session keeps calling tools past the turn limit.
var ErrMaxTurns = errors.New("session exceeded maximum turns")

// QuotaError marks a provider failure that another credential may not hit.
// It is the only failure the invoker recovers from by switching candidates.
type QuotaError struct {
	Provider   ProviderType
	Model      string
	RetryAfter time.Duration
	Err        error
}

func (e *QuotaError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited on %s (retry after %s): %v", e.Provider, e.Model, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("%s rate limited on %s: %v", e.Provider, e.Model, e.Err)
}

func (e *QuotaError) Unwrap() error {
	return e.Err
}

// IsQuotaError reports whether err carries a QuotaError.
func IsQuotaError(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}

// classifyClaudeError wraps a 429 from the Anthropic API as a QuotaError.
func classifyClaudeError(model string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return &QuotaError{Provider: ProviderClaude, Model: model, Err: err}
	}
	return err
}

// classifyGeminiError wraps RESOURCE_EXHAUSTED answers from the Gemini API as a QuotaError.
func classifyGeminiError(model string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		apiErr = *apiErrPtr
	default:
		if IsRateLimitError(err) {
			return &QuotaError{Provider: ProviderGemini, Model: model, RetryAfter: ExtractRetryDelay(err), Err: err}
		}
		return err
	}
	if apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED" {
		return &QuotaError{Provider: ProviderGemini, Model: model, RetryAfter: ExtractRetryDelay(err), Err: err}
	}
	return err
}

// IsRateLimitError checks an untyped error for rate limit markers.
// Matches 429 status codes and RESOURCE_EXHAUSTED errors.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(errStr), "quota")
}

// retryDelayRegex matches "Please retry in Xs" or "retryDelay:Xs" patterns
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// ExtractRetryDelay parses the API-suggested retry delay from a Gemini error.
// Returns 0 if no delay is found in the error message.
//
// Example error message:
// "Error 429, Message: ... Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED"
func ExtractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}

	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}

	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}

	return time.Duration(seconds * float64(time.Second))
}
