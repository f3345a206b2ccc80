package domain

// RiskLevel is the categorical banding of a risk score.
type RiskLevel string

const (
	RiskMinimal  RiskLevel = "Minimal Risk"
	RiskLow      RiskLevel = "Low Risk"
	RiskMedium   RiskLevel = "Medium Risk"
	RiskHigh     RiskLevel = "High Risk"
	RiskCritical RiskLevel = "Critical Risk"
)

// LevelForScore maps a 0-100 score onto the five risk bands.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score < 20:
		return RiskMinimal
	case score < 40:
		return RiskLow
	case score < 60:
		return RiskMedium
	case score < 80:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// Rank orders levels from 0 (Minimal) to 4 (Critical). Unknown levels rank -1.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskMinimal:
		return 0
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	default:
		return -1
	}
}

// AtLeast reports whether l is as severe as other.
func (l RiskLevel) AtLeast(other RiskLevel) bool {
	return l.Rank() >= other.Rank()
}

// RiskAssessment is the explainable result of scoring one profile.
type RiskAssessment struct {
	RiskScore             float64   `json:"risk_score"`
	RiskLevel             RiskLevel `json:"risk_level"`
	Explanations          []string  `json:"explanations"`
	Confidence            float64   `json:"confidence"`
	ConfidenceExplanation string    `json:"confidence_explanation"`
	RecommendedActions    []string  `json:"recommended_actions"`
}
