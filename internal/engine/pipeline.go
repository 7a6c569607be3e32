// Package engine hosts the insight pipeline: anomaly classification, prompt
// construction, and the orchestrator that runs a request through admission,
// extraction, classification, generation, and assembly.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pythiastack/pythia-insights/internal/extractors"
	"github.com/pythiastack/pythia-insights/internal/models"
	"github.com/pythiastack/pythia-insights/internal/ratelimit"
	"github.com/pythiastack/pythia-insights/internal/repo"
)

// Pipeline stages, in execution order.
const (
	StageAdmission      = "admission"
	StageExtraction     = "extraction"
	StageClassification = "classification"
	StagePrompt         = "prompt"
	StageGeneration     = "generation"
	StagePersistence    = "persistence"
)

// StageError tags a pipeline failure with the stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Generator runs one prompt through the generation backends.
type Generator interface {
	Generate(ctx context.Context, prompt models.Prompt) (models.GenerationResult, error)
}

// Admitter decides whether a tenant may proceed under its rate limit.
type Admitter interface {
	Admit(ctx context.Context, tenantID string) (ratelimit.Decision, error)
}

// Pipeline orchestrates one insight request end to end. Stages run strictly in
// order; the first failing stage aborts the request with a StageError.
type Pipeline struct {
	logger     *slog.Logger
	limiter    Admitter
	extractor  *extractors.Extractor
	classifier *Classifier
	prompts    *PromptBuilder
	generator  Generator
	store      repo.InsightStore
	now        func() time.Time
}

// NewPipeline constructs the orchestrator. The limiter and store may be nil,
// in which case admission always passes and insights are not persisted.
func NewPipeline(
	logger *slog.Logger,
	limiter Admitter,
	extractor *extractors.Extractor,
	classifier *Classifier,
	prompts *PromptBuilder,
	generator Generator,
	store repo.InsightStore,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if extractor == nil {
		extractor = extractors.New()
	}
	if classifier == nil {
		classifier = NewClassifier(DefaultThresholds())
	}
	if prompts == nil {
		prompts = NewPromptBuilder()
	}
	return &Pipeline{
		logger:     logger,
		limiter:    limiter,
		extractor:  extractor,
		classifier: classifier,
		prompts:    prompts,
		generator:  generator,
		store:      store,
		now:        time.Now,
	}
}

// Process runs admission, extraction, classification, prompt construction, and
// generation, then assembles the final insight. Persistence failures do not
// fail the request: the insight is already complete when they occur.
func (p *Pipeline) Process(ctx context.Context, req models.InsightRequest) (models.Insight, error) {
	started := p.now()

	if err := p.admit(ctx, req); err != nil {
		return models.Insight{}, err
	}

	features, err := p.extractor.Extract(req)
	if err != nil {
		return models.Insight{}, &StageError{Stage: StageExtraction, Err: err}
	}

	assessment := p.classifier.Classify(features, req.Thresholds)

	prompt, err := p.prompts.Build(features, assessment, req.InputType)
	if err != nil {
		return models.Insight{}, &StageError{Stage: StagePrompt, Err: err}
	}

	generation, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return models.Insight{}, &StageError{Stage: StageGeneration, Err: err}
	}

	insight := models.Insight{
		InsightID:        uuid.NewString(),
		UserID:           req.UserID,
		TenantID:         req.TenantID,
		InputType:        req.InputType,
		Features:         features,
		Assessment:       assessment,
		Generation:       generation,
		ProcessingTimeMS: p.now().Sub(started).Milliseconds(),
		CreatedAt:        p.now().UTC(),
	}

	if p.store != nil {
		if err := p.store.Create(ctx, insight); err != nil {
			p.logger.Warn("failed to persist insight",
				slog.String("insight_id", insight.InsightID),
				slog.Any("error", err))
		}
	}

	return insight, nil
}

func (p *Pipeline) admit(ctx context.Context, req models.InsightRequest) error {
	if p.limiter == nil {
		return nil
	}
	decision, err := p.limiter.Admit(ctx, req.TenantID)
	if err != nil {
		return &StageError{Stage: StageAdmission, Err: err}
	}
	if !decision.Allowed {
		denied := &ratelimit.DeniedError{TenantID: req.TenantID, RetryAfter: decision.RetryAfter}
		return &StageError{Stage: StageAdmission, Err: denied}
	}
	return nil
}

// IsRateLimited reports whether err is an admission denial and returns the
// wait until the tenant's window resets.
func IsRateLimited(err error) (time.Duration, bool) {
	var denied *ratelimit.DeniedError
	if errors.As(err, &denied) {
		return denied.RetryAfter, true
	}
	return 0, false
}
