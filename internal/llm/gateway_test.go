package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pythiastack/pythia-insights/internal/models"
)

type scriptedClient struct {
	name    string
	script  []error
	calls   int
	summary string
}

func (c *scriptedClient) Name() string { return c.name }

func (c *scriptedClient) Generate(ctx context.Context, prompt models.Prompt, opts Options) (Candidate, error) {
	idx := c.calls
	c.calls++
	if idx < len(c.script) && c.script[idx] != nil {
		return Candidate{}, c.script[idx]
	}
	summary := c.summary
	if summary == "" {
		summary = "scripted summary"
	}
	return Candidate{
		Summary:            summary,
		Severity:           models.SeverityHigh,
		Confidence:         0.9,
		RecommendedActions: []string{"act"},
		KeyFindings:        []string{"finding"},
	}, nil
}

func timeoutErr(provider string) error {
	return &GenerationError{Provider: provider, Kind: KindTimeout, Err: errors.New("deadline exceeded")}
}

func newTestGateway(clients []Client) (*Gateway, *[]time.Duration) {
	g := NewGateway(nil, clients, GatewayConfig{
		MaxRetries:  3,
		BackoffBase: 100 * time.Millisecond,
		BackoffCap:  1 * time.Second,
	})
	slept := make([]time.Duration, 0)
	g.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return g, &slept
}

func TestGatewayRetriesTimeoutOnPrimary(t *testing.T) {
	primary := &scriptedClient{name: "gemini", script: []error{timeoutErr("gemini"), timeoutErr("gemini"), nil}}
	fallback := &scriptedClient{name: "openai"}
	g, slept := newTestGateway([]Client{primary, fallback})

	result, err := g.Generate(context.Background(), models.Prompt{Text: "p"})
	if err != nil {
		t.Fatalf("generate returned error: %v", err)
	}
	if primary.calls != 3 {
		t.Fatalf("expected exactly 3 primary attempts, got %d", primary.calls)
	}
	if fallback.calls != 0 {
		t.Fatalf("expected zero fallback attempts, got %d", fallback.calls)
	}
	if result.FallbackUsed || result.ProviderUsed != "gemini" {
		t.Fatalf("expected primary success, got %+v", result)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(*slept) != len(want) {
		t.Fatalf("expected %d backoff sleeps, got %v", len(want), *slept)
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Fatalf("backoff %d: expected %v, got %v", i, d, (*slept)[i])
		}
	}
}

func TestGatewayInvalidResponseShortCircuits(t *testing.T) {
	primary := &scriptedClient{
		name:   "gemini",
		script: []error{&GenerationError{Provider: "gemini", Kind: KindInvalidResponse, Err: errors.New("bad json")}},
	}
	fallback := &scriptedClient{name: "openai", summary: "fallback summary"}
	g, slept := newTestGateway([]Client{primary, fallback})

	result, err := g.Generate(context.Background(), models.Prompt{Text: "p"})
	if err != nil {
		t.Fatalf("generate returned error: %v", err)
	}
	if primary.calls != 1 {
		t.Fatalf("expected exactly 1 primary attempt, got %d", primary.calls)
	}
	if fallback.calls != 1 {
		t.Fatalf("expected exactly 1 fallback attempt, got %d", fallback.calls)
	}
	if len(*slept) != 0 {
		t.Fatalf("expected no backoff sleeps, got %v", *slept)
	}
	if !result.FallbackUsed || result.ProviderUsed != "openai" {
		t.Fatalf("expected fallback metadata, got %+v", result)
	}
	if result.Summary != "fallback summary" {
		t.Fatalf("unexpected summary %q", result.Summary)
	}
}

func TestGatewayRateLimitedFallsBackImmediately(t *testing.T) {
	primary := &scriptedClient{
		name:   "gemini",
		script: []error{&GenerationError{Provider: "gemini", Kind: KindRateLimited, Err: errors.New("429")}},
	}
	fallback := &scriptedClient{name: "mock"}
	g, slept := newTestGateway([]Client{primary, fallback})

	result, err := g.Generate(context.Background(), models.Prompt{Text: "p"})
	if err != nil {
		t.Fatalf("generate returned error: %v", err)
	}
	if primary.calls != 1 || fallback.calls != 1 {
		t.Fatalf("expected 1 attempt each, got primary=%d fallback=%d", primary.calls, fallback.calls)
	}
	if len(*slept) != 0 {
		t.Fatalf("rate limited must not back off locally, slept %v", *slept)
	}
	if !result.FallbackUsed {
		t.Fatalf("expected fallback_used true")
	}
}

func TestGatewayExhaustion(t *testing.T) {
	primary := &scriptedClient{name: "gemini", script: []error{timeoutErr("gemini"), timeoutErr("gemini"), timeoutErr("gemini")}}
	fallback := &scriptedClient{
		name:   "openai",
		script: []error{&GenerationError{Provider: "openai", Kind: KindInvalidResponse, Err: errors.New("bad json")}},
	}
	g, _ := newTestGateway([]Client{primary, fallback})

	_, err := g.Generate(context.Background(), models.Prompt{Text: "p"})
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if len(exhausted.Failures) != 2 {
		t.Fatalf("expected a failure per client, got %+v", exhausted.Failures)
	}
	if exhausted.Failures[0].Provider != "gemini" || exhausted.Failures[1].Provider != "openai" {
		t.Fatalf("failures out of attempt order: %+v", exhausted.Failures)
	}
	if KindOf(exhausted.Failures[0].Err) != KindTimeout {
		t.Fatalf("expected timeout kind preserved, got %v", exhausted.Failures[0].Err)
	}
	if primary.calls != 3 || fallback.calls != 1 {
		t.Fatalf("unexpected attempt counts: primary=%d fallback=%d", primary.calls, fallback.calls)
	}
}

func TestGatewayBackoffCap(t *testing.T) {
	g := NewGateway(nil, []Client{&scriptedClient{name: "x"}}, GatewayConfig{
		MaxRetries:  6,
		BackoffBase: 100 * time.Millisecond,
		BackoffCap:  300 * time.Millisecond,
	})
	if d := g.backoff(0); d != 100*time.Millisecond {
		t.Fatalf("backoff(0): got %v", d)
	}
	if d := g.backoff(1); d != 200*time.Millisecond {
		t.Fatalf("backoff(1): got %v", d)
	}
	if d := g.backoff(2); d != 300*time.Millisecond {
		t.Fatalf("backoff(2) should cap: got %v", d)
	}
	if d := g.backoff(5); d != 300*time.Millisecond {
		t.Fatalf("backoff(5) should cap: got %v", d)
	}
}

func TestGatewayNoClients(t *testing.T) {
	g := NewGateway(nil, nil, GatewayConfig{MaxRetries: 1})
	if _, err := g.Generate(context.Background(), models.Prompt{}); err == nil {
		t.Fatalf("expected error with no clients")
	}
}
