package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pythiastack/pythia-insights/internal/metrics"
	"github.com/pythiastack/pythia-insights/internal/models"
)

// ClientFailure records the last error observed for one attempted client.
type ClientFailure struct {
	Provider string
	Err      error
}

// ExhaustedError is returned once every configured client has failed. It
// carries the last error per attempted client, in attempt order.
type ExhaustedError struct {
	Failures []ClientFailure
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Provider, f.Err))
	}
	return "all generation clients exhausted: " + strings.Join(parts, "; ")
}

// Unwrap exposes the final client's error for errors.Is/As chains.
func (e *ExhaustedError) Unwrap() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[len(e.Failures)-1].Err
}

// GatewayConfig tunes retry, backoff, and generation options.
type GatewayConfig struct {
	// MaxRetries is the total number of attempts per client on retryable failures.
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	Options     Options
}

// Gateway fronts an ordered client list with retry, timeout, and fallback.
//
// Policy: Timeout and Unavailable are retried against the same client up to
// MaxRetries attempts with capped exponential backoff; InvalidResponse and
// RateLimited advance to the next client immediately. The first success wins;
// exhausting every client yields ExhaustedError.
type Gateway struct {
	logger  *slog.Logger
	clients []Client
	cfg     GatewayConfig
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewGateway constructs a Gateway over the ordered client list, primary first.
func NewGateway(logger *slog.Logger, clients []Client, cfg GatewayConfig) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 200 * time.Millisecond
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 5 * time.Second
	}
	return &Gateway{
		logger:  logger,
		clients: clients,
		cfg:     cfg,
		sleep:   sleepContext,
	}
}

// retryableKinds is the policy table of error kinds retried on the same client.
var retryableKinds = map[ErrorKind]bool{
	KindTimeout:     true,
	KindUnavailable: true,
}

// Generate runs the prompt through the client sequence and stamps call
// metadata (provider, fallback flag, latency) onto the successful result.
func (g *Gateway) Generate(ctx context.Context, prompt models.Prompt) (models.GenerationResult, error) {
	if len(g.clients) == 0 {
		return models.GenerationResult{}, errors.New("no generation clients configured")
	}

	started := time.Now()
	failures := make([]ClientFailure, 0, len(g.clients))

	for idx, client := range g.clients {
		candidate, err := g.attemptClient(ctx, client, prompt)
		if err == nil {
			return models.GenerationResult{
				Summary:            candidate.Summary,
				Severity:           candidate.Severity,
				Confidence:         candidate.Confidence,
				RecommendedActions: candidate.RecommendedActions,
				KeyFindings:        candidate.KeyFindings,
				ProviderUsed:       client.Name(),
				FallbackUsed:       idx > 0,
				LatencyMS:          time.Since(started).Milliseconds(),
			}, nil
		}

		failures = append(failures, ClientFailure{Provider: client.Name(), Err: err})
		if ctx.Err() != nil {
			break
		}
		if idx < len(g.clients)-1 {
			g.logger.Warn("generation client failed, falling back",
				slog.String("provider", client.Name()),
				slog.String("kind", string(KindOf(err))),
				slog.Any("error", err))
		}
	}

	return models.GenerationResult{}, &ExhaustedError{Failures: failures}
}

// attemptClient retries a single client per the policy table and returns its
// last error once attempts are spent or a non-retryable kind is seen.
func (g *Gateway) attemptClient(ctx context.Context, client Client, prompt models.Prompt) (Candidate, error) {
	var lastErr error

	for attempt := 0; attempt < g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := g.sleep(ctx, g.backoff(attempt-1)); err != nil {
				return Candidate{}, lastErr
			}
		}

		candidate, err := g.generateOnce(ctx, client, prompt)
		if err == nil {
			metrics.ObserveGeneration(client.Name(), "success")
			return candidate, nil
		}
		lastErr = err
		metrics.ObserveGeneration(client.Name(), string(KindOf(err)))

		if !retryableKinds[KindOf(err)] {
			return Candidate{}, err
		}
		if ctx.Err() != nil {
			return Candidate{}, lastErr
		}
	}

	return Candidate{}, lastErr
}

func (g *Gateway) generateOnce(ctx context.Context, client Client, prompt models.Prompt) (Candidate, error) {
	attemptCtx := ctx
	if g.cfg.Options.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, g.cfg.Options.Timeout)
		defer cancel()
	}
	return client.Generate(attemptCtx, prompt, g.cfg.Options)
}

// backoff returns base * 2^attempt bounded by the configured cap.
func (g *Gateway) backoff(attempt int) time.Duration {
	d := g.cfg.BackoffBase
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= g.cfg.BackoffCap {
			return g.cfg.BackoffCap
		}
	}
	if d > g.cfg.BackoffCap {
		return g.cfg.BackoffCap
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
