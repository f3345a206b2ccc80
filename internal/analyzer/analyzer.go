// Package analyzer builds the read-only scoring context and runs assessments.
//
// An Analyzer is immutable once New returns and may be shared by any number
// of goroutines. Reloading configuration means building a new Analyzer and
// swapping it in through a Holder.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ml"
	"github.com/opensource-finance/kestrel/internal/observability"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scorer"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("kestrel-analyzer")

// Analyzer scores profiles.
type Analyzer struct {
	// rulesOnly scores when no estimate is available; hybrid scores
	// alongside an estimate and carries lighter rule points.
	rulesOnly calibration
	hybrid    calibration
	library   *rules.Library
	estimator ml.SuspicionEstimator
	processor *scorer.Processor
	metrics   *observability.Metrics
	builtAt   time.Time
}

type calibration struct {
	metadata *rules.MetadataEvaluator
	content  *rules.ContentEvaluator
}

// Option customises New.
type Option func(*options)

type options struct {
	corpora   domain.CorpusRepository
	metrics   *observability.Metrics
	library   *rules.Library
	groups    []rules.RuleGroup
	estimator ml.SuspicionEstimator
}

// WithCorpusRepository persists and reuses the training corpus.
func WithCorpusRepository(repo domain.CorpusRepository) Option {
	return func(o *options) { o.corpora = repo }
}

// WithMetrics records assessment metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLibrary replaces the default content pattern library. Its points are
// used with and without an estimator.
func WithLibrary(lib *rules.Library) Option {
	return func(o *options) { o.library = lib }
}

// WithRuleGroups replaces the builtin metadata rule groups. The groups are
// used with and without an estimator.
func WithRuleGroups(groups []rules.RuleGroup) Option {
	return func(o *options) { o.groups = groups }
}

// WithEstimator bypasses cfg.Estimator and uses est directly.
func WithEstimator(est ml.SuspicionEstimator) Option {
	return func(o *options) { o.estimator = est }
}

// New compiles the rules and prepares the configured estimator. Forest
// training happens here, so New may take a while for large corpora.
func New(ctx context.Context, cfg domain.EngineConfig, opts ...Option) (*Analyzer, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	engine, err := rules.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to create rule engine: %w", err)
	}

	metadata, err := rules.NewMetadataEvaluator(engine, o.groups)
	if err != nil {
		return nil, fmt.Errorf("failed to compile metadata rules: %w", err)
	}

	hybridGroups := o.groups
	if len(hybridGroups) == 0 {
		hybridGroups = rules.HybridMetadataGroups()
	}
	hybridMetadata, err := rules.NewMetadataEvaluator(engine, hybridGroups)
	if err != nil {
		return nil, fmt.Errorf("failed to compile hybrid metadata rules: %w", err)
	}

	lib := o.library
	if lib == nil {
		lib = rules.DefaultLibrary()
	}
	content := rules.NewContentEvaluator(lib)
	hybridContent := content
	if o.library == nil {
		hybridContent = content.WithPoints(rules.HybridContentPoints)
	}

	est := o.estimator
	if est == nil {
		est, err = buildEstimator(ctx, cfg, o.corpora)
		if err != nil {
			return nil, err
		}
	}

	a := &Analyzer{
		rulesOnly: calibration{metadata: metadata, content: content},
		hybrid:    calibration{metadata: hybridMetadata, content: hybridContent},
		library:   lib,
		estimator: est,
		processor: scorer.NewProcessor(),
		metrics:   o.metrics,
		builtAt:   time.Now().UTC(),
	}

	slog.Info("analyzer ready",
		"estimator", est.Name(),
		"estimator_ready", est.Info().Ready,
		"rules", metadata.RulesCount(),
		"patterns", lib.PatternCount(),
	)

	return a, nil
}

// Assess scores one profile. Validation problems come back as
// *domain.ValidationError, everything else as *domain.AnalysisError.
func (a *Analyzer) Assess(ctx context.Context, p *domain.ProfileInput) (result *domain.RiskAssessment, err error) {
	_, span := tracer.Start(ctx, "analyzer.Assess",
		trace.WithAttributes(attribute.String("estimator", a.estimator.Name())),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("assessment panicked", "panic", r)
			result = nil
			err = &domain.AnalysisError{Stage: "assessment", Err: fmt.Errorf("panic: %v", r)}
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			a.metrics.AssessmentFailed(errorKind(err))
			return
		}

		span.SetAttributes(
			attribute.Float64("risk.score", result.RiskScore),
			attribute.String("risk.level", string(result.RiskLevel)),
		)
		a.metrics.ObserveAssessment(string(result.RiskLevel), a.estimator.Name(), time.Since(start))
	}()

	if p == nil {
		return nil, &domain.ValidationError{Field: "profile", Reason: "is required"}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	input := &scorer.DecisionInput{}

	estimate, err := a.estimator.Estimate(p)
	switch {
	case errors.Is(err, domain.ErrClassifierUnavailable):
		slog.Warn("estimator unavailable, scoring with rules only",
			"estimator", a.estimator.Name(),
		)
		a.metrics.EstimatorUnavailable()
		input.Degraded = true
	case err != nil:
		return nil, &domain.AnalysisError{Stage: "estimator", Err: err}
	default:
		input.Estimate = estimate
	}

	cal := a.rulesOnly
	if input.Estimate != nil {
		cal = a.hybrid
	}

	input.Metadata, err = cal.metadata.Evaluate(p)
	if err != nil {
		return nil, &domain.AnalysisError{Stage: "metadata", Err: err}
	}
	input.Content = cal.content.Evaluate(p.Messages)

	return a.processor.Process(input), nil
}

// Info describes the analyzer for operators.
type Info struct {
	Estimator    ml.EstimatorInfo `json:"estimator"`
	RulesCount   int              `json:"rulesCount"`
	PatternCount int              `json:"patternCount"`
	BuiltAt      time.Time        `json:"builtAt"`
}

// Info returns a snapshot of the scoring context.
func (a *Analyzer) Info() Info {
	return Info{
		Estimator:    a.estimator.Info(),
		RulesCount:   a.rulesOnly.metadata.RulesCount(),
		PatternCount: a.library.PatternCount(),
		BuiltAt:      a.builtAt,
	}
}

func errorKind(err error) string {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return "validation"
	}
	var aerr *domain.AnalysisError
	if errors.As(err, &aerr) {
		return aerr.Stage
	}
	return "unknown"
}
