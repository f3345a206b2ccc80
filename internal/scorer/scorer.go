// Package scorer combines rule findings and the optional estimator opinion
// into a bounded, explainable risk assessment.
package scorer

import (
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Narrative strings keyed by confidence band.
const (
	ConfidenceHigh   = "Multiple independent indicators confirm assessment"
	ConfidenceMedium = "Assessment based on established threat patterns"
	ConfidenceLow    = "Limited data available, manual review recommended"
)

// EstimatorUnavailableNote is reported when a configured estimator could not
// score the profile.
const EstimatorUnavailableNote = "ML model not available (assessment based on rules only)"

const (
	methodRules      = "rule-based analysis"
	methodBehavioral = "behavioral analysis"
	methodHybrid     = "hybrid analysis"
)

// Processor turns evaluator output into a RiskAssessment.
type Processor struct {
	// RuleCap bounds the combined rule points when an estimator contributes.
	RuleCap int

	// EstimatorWeight is the score contribution of a probability of 1.
	EstimatorWeight float64

	MaxExplanations int
}

// NewProcessor creates a processor with the production weights.
func NewProcessor() *Processor {
	return &Processor{
		RuleCap:         60,
		EstimatorWeight: 40,
		MaxExplanations: 10,
	}
}

// DecisionInput contains everything needed for one assessment.
type DecisionInput struct {
	Metadata domain.CategoryScore
	Content  domain.CategoryScore

	// Estimate is nil when scoring with rules only.
	Estimate *domain.Estimate

	// Degraded marks that an estimator was configured but unavailable.
	Degraded bool
}

// Process combines the inputs. It is a pure function of its input.
func (p *Processor) Process(input *DecisionInput) *domain.RiskAssessment {
	explanations := append(input.Metadata.Explanations(), input.Content.Explanations()...)
	rulePoints := float64(input.Metadata.Points + input.Content.Points)

	var final, confidence float64
	method := methodRules

	if est := input.Estimate; est != nil {
		rule := math.Min(float64(p.RuleCap), rulePoints)
		ml := est.Probability * p.EstimatorWeight
		final = math.Min(100, rule+ml)
		confidence = 0.6 + 0.4*(1-math.Abs(rule/float64(p.RuleCap)-est.Probability))
		explanations = append(explanations, nonEmpty(est.Explanations)...)

		switch {
		case ml > rule:
			method = methodBehavioral
		case ml == rule:
			method = methodHybrid
		}
	} else {
		final = math.Min(100, rulePoints)
		confidence = math.Min(0.95, 0.5+0.1*float64(len(explanations)))
	}

	score := round(clamp(final, 0, 100), 1)
	confidence = round(clamp(confidence, 0, 1), 2)
	confidenceText := confidenceExplanation(confidence)

	out := make([]string, 0, len(explanations)+3)
	if score > 0 {
		out = append(out, fmt.Sprintf("Threat assessment: %d security indicators detected (%s)", len(explanations), method))
	}
	out = append(out, explanations...)
	if input.Degraded {
		out = append(out, EstimatorUnavailableNote)
	}
	if score > 0 {
		out = append(out, "Confidence: "+confidenceText)
	}
	if len(out) > p.MaxExplanations {
		out = out[:p.MaxExplanations]
	}

	return &domain.RiskAssessment{
		RiskScore:             score,
		RiskLevel:             domain.LevelForScore(score),
		Explanations:          out,
		Confidence:            confidence,
		ConfidenceExplanation: confidenceText,
		RecommendedActions:    RecommendedActions(score),
	}
}

// RecommendedActions returns the response playbook for a score.
func RecommendedActions(score float64) []string {
	switch {
	case score >= 80:
		return []string{"Immediate account restriction recommended", "Manual security review required", "User notification advised"}
	case score >= 60:
		return []string{"Enhanced monitoring enabled", "Manual review triggered", "User warning recommended"}
	case score >= 40:
		return []string{"Standard security protocols apply", "Automated logging increased"}
	default:
		return []string{"Normal monitoring continues"}
	}
}

func confidenceExplanation(confidence float64) string {
	switch {
	case confidence >= 0.85:
		return ConfidenceHigh
	case confidence >= 0.70:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// ShouldAlert reports whether an assessment warrants an alert.
func ShouldAlert(a *domain.RiskAssessment) bool {
	return a != nil && a.RiskLevel.AtLeast(domain.RiskHigh)
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
