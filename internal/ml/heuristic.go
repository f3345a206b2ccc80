package ml

import (
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const heuristicBias = -2.25

// heuristicImportance weights the piecewise feature terms when explaining.
var heuristicImportance = []float64{0.35, 0.30, 0.20, 0.15}

// Heuristic is a fixed logistic model over the derived features. It needs no
// training and is always available.
type Heuristic struct{}

// NewHeuristic returns the heuristic estimator.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

func (h *Heuristic) Name() string { return string(domain.EstimatorHeuristic) }

// Estimate maps each feature onto a signed suspicion term and squashes the sum.
func (h *Heuristic) Estimate(p *domain.ProfileInput) (*domain.Estimate, error) {
	terms := heuristicTerms(p)

	z := heuristicBias
	for _, t := range terms {
		z += t
	}

	return &domain.Estimate{
		Estimator:    h.Name(),
		Probability:  1 / (1 + math.Exp(-z)),
		Explanations: explain(p, terms, heuristicImportance),
	}, nil
}

func (h *Heuristic) Info() EstimatorInfo {
	importance := make(map[string]float64, NumFeatures)
	for j, v := range heuristicImportance {
		importance[FeatureNames[j]] = v
	}
	return EstimatorInfo{
		Name:  h.Name(),
		Ready: true,
		Model: &ModelInfo{Trained: true, FeatureImportance: importance},
	}
}

func heuristicTerms(p *domain.ProfileInput) []float64 {
	terms := make([]float64, NumFeatures)

	switch age := p.AccountAgeDays; {
	case age < 30:
		terms[FeatureAccountAge] = 1.5
	case age < 90:
		terms[FeatureAccountAge] = 0.5
	case age < 365:
		terms[FeatureAccountAge] = 0
	default:
		terms[FeatureAccountAge] = -1
	}

	if p.Following > 0 {
		switch ratio := p.FollowerRatio(); {
		case ratio < 0.01:
			terms[FeatureFollowerRatio] = 1.5
		case ratio < 0.1:
			terms[FeatureFollowerRatio] = 0.5
		case ratio > 100:
			terms[FeatureFollowerRatio] = 0.5
		default:
			terms[FeatureFollowerRatio] = -0.5
		}
	}

	pace := float64(p.PostCount) / float64(max(p.AccountAgeDays, 1))
	switch {
	case pace > 50:
		terms[FeaturePostsPerDay] = 1.5
	case pace > 20:
		terms[FeaturePostsPerDay] = 0.75
	case pace < 0.01 && p.AccountAgeDays > 30:
		terms[FeaturePostsPerDay] = 0.5
	default:
		terms[FeaturePostsPerDay] = -0.25
	}

	if p.ProfileCompleted {
		terms[FeatureCompleteness] = -0.5
	} else {
		terms[FeatureCompleteness] = 0.75
	}

	return terms
}
