package ml

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// importanceThreshold is the global importance a feature needs before it is
// used to explain a prediction.
const importanceThreshold = 0.1

// SuspicionEstimator is the optional second-opinion stage of the scorer.
type SuspicionEstimator interface {
	Name() string

	// Estimate returns nil, nil when the estimator offers no opinion, and
	// domain.ErrClassifierUnavailable when it should but cannot.
	Estimate(p *domain.ProfileInput) (*domain.Estimate, error)

	Info() EstimatorInfo
}

// EstimatorInfo describes an estimator for operators.
type EstimatorInfo struct {
	Name      string     `json:"name"`
	Ready     bool       `json:"ready"`
	CorpusKey string     `json:"corpusKey,omitempty"`
	Model     *ModelInfo `json:"model,omitempty"`
}

// None is the rule-only configuration.
type None struct{}

func (None) Name() string { return string(domain.EstimatorNone) }

func (None) Estimate(*domain.ProfileInput) (*domain.Estimate, error) { return nil, nil }

func (None) Info() EstimatorInfo {
	return EstimatorInfo{Name: string(domain.EstimatorNone), Ready: true}
}

// ForestEstimator scores profiles with a trained forest. The zero value is an
// untrained estimator that always reports ErrClassifierUnavailable.
type ForestEstimator struct {
	forest    *Forest
	scaler    *StandardScaler
	corpusKey string
}

// TrainForest fits a scaler and forest on corpus.
func TrainForest(ctx context.Context, corpus *domain.TrainingCorpus, cfg domain.ForestConfig) (*ForestEstimator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if corpus == nil || len(corpus.Features) == 0 {
		return nil, fmt.Errorf("training corpus is empty")
	}

	scaler, err := FitScaler(corpus.Features)
	if err != nil {
		return nil, fmt.Errorf("failed to fit scaler: %w", err)
	}

	forest := NewForest(cfg)
	if err := forest.Fit(scaler.TransformAll(corpus.Features), corpus.Labels); err != nil {
		return nil, fmt.Errorf("failed to fit forest: %w", err)
	}

	return &ForestEstimator{
		forest:    forest,
		scaler:    scaler,
		corpusKey: corpus.Key(),
	}, nil
}

func (e *ForestEstimator) Name() string { return string(domain.EstimatorForest) }

// Estimate returns the forest's suspicion probability and its top explanations.
func (e *ForestEstimator) Estimate(p *domain.ProfileInput) (*domain.Estimate, error) {
	if e.forest == nil || !e.forest.IsTrained() {
		return nil, domain.ErrClassifierUnavailable
	}

	scaled := e.scaler.Transform(FeatureVector(p))
	return &domain.Estimate{
		Estimator:    e.Name(),
		Probability:  e.forest.PredictProba(scaled),
		Explanations: explain(p, scaled, e.forest.importance),
	}, nil
}

func (e *ForestEstimator) Info() EstimatorInfo {
	info := EstimatorInfo{Name: e.Name(), CorpusKey: e.corpusKey}
	if e.forest != nil {
		model := e.forest.Info()
		info.Model = &model
		info.Ready = model.Trained
	}
	return info
}

// explain ranks features by |scaled value × importance| and renders the top
// two that are globally important enough.
func explain(p *domain.ProfileInput, scaled, importance []float64) []string {
	order := make([]int, len(scaled))
	for j := range order {
		order[j] = j
	}
	sort.SliceStable(order, func(a, b int) bool {
		return math.Abs(scaled[order[a]]*importance[order[a]]) > math.Abs(scaled[order[b]]*importance[order[b]])
	})

	var out []string
	for _, j := range order[:min(2, len(order))] {
		if importance[j] <= importanceThreshold {
			continue
		}
		if text := featureExplanation(j, p); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func featureExplanation(feature int, p *domain.ProfileInput) string {
	switch feature {
	case FeatureAccountAge:
		switch {
		case p.AccountAgeDays < 30:
			return "New account created during high-fraud period (identity theft indicator)"
		case p.AccountAgeDays < 90:
			return "Recently created account matches scammer timing patterns"
		}
	case FeatureFollowerRatio:
		if p.FollowerRatio() < 0.1 {
			return fmt.Sprintf("Following %d accounts but only %d followers (bot network signature)", p.Following, p.Followers)
		}
	case FeaturePostsPerDay:
		pace := float64(p.PostCount) / float64(max(p.AccountAgeDays, 1))
		switch {
		case pace > 20:
			return fmt.Sprintf("Posting %.1f times daily (automated activity detected)", pace)
		case pace < 0.1:
			return "Minimal posting activity (dormant account used for attacks)"
		}
	}
	return ""
}
