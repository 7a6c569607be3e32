// Package llm contains the generation backends and the retry/fallback gateway
// that fronts them. Every backend implements the same Client contract and
// reports failures through GenerationError so the gateway can apply one policy
// across providers.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pythiastack/pythia-insights/internal/models"
)

// ErrorKind classifies generation failures for retry and fallback decisions.
type ErrorKind string

const (
	KindTimeout         ErrorKind = "timeout"
	KindRateLimited     ErrorKind = "rate_limited"
	KindInvalidResponse ErrorKind = "invalid_response"
	KindUnavailable     ErrorKind = "unavailable"
)

// GenerationError wraps a backend failure with its provider and kind.
type GenerationError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from err, defaulting to KindUnavailable for
// errors that did not originate from a generation client.
func KindOf(err error) ErrorKind {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnavailable
}

// Options carries per-call generation configuration.
type Options struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Candidate is a parsed, validated backend response before call metadata is attached.
type Candidate struct {
	Summary            string
	Severity           models.Severity
	Confidence         float64
	RecommendedActions []string
	KeyFindings        []string
}

// Client is the polymorphic generation capability. Implementations must
// return GenerationError for every failure so policy decisions stay uniform.
type Client interface {
	Name() string
	Generate(ctx context.Context, prompt models.Prompt, opts Options) (Candidate, error)
}

type candidatePayload struct {
	Summary            string    `json:"summary"`
	Severity           string    `json:"severity"`
	Confidence         *float64  `json:"confidence"`
	RecommendedActions []string  `json:"recommended_actions"`
	KeyFindings        []string  `json:"key_findings"`
}

// parseCandidate decodes and validates a raw backend payload. Structural
// violations surface as KindInvalidResponse, never as a partial result.
func parseCandidate(provider string, raw []byte) (Candidate, error) {
	var payload candidatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Candidate{}, &GenerationError{Provider: provider, Kind: KindInvalidResponse, Err: fmt.Errorf("decode payload: %w", err)}
	}
	if payload.Summary == "" {
		return Candidate{}, &GenerationError{Provider: provider, Kind: KindInvalidResponse, Err: errors.New("summary is empty")}
	}
	if payload.Confidence == nil || *payload.Confidence < 0 || *payload.Confidence > 1 {
		return Candidate{}, &GenerationError{Provider: provider, Kind: KindInvalidResponse, Err: errors.New("confidence missing or outside [0,1]")}
	}
	if len(payload.RecommendedActions) == 0 {
		return Candidate{}, &GenerationError{Provider: provider, Kind: KindInvalidResponse, Err: errors.New("recommended_actions is empty")}
	}
	if len(payload.KeyFindings) == 0 {
		return Candidate{}, &GenerationError{Provider: provider, Kind: KindInvalidResponse, Err: errors.New("key_findings is empty")}
	}

	return Candidate{
		Summary:            payload.Summary,
		Severity:           models.ParseSeverity(payload.Severity),
		Confidence:         *payload.Confidence,
		RecommendedActions: append([]string(nil), payload.RecommendedActions...),
		KeyFindings:        append([]string(nil), payload.KeyFindings...),
	}, nil
}
