package domain

// Rule categories reported on findings.
const (
	CategoryMetadata   = "metadata"
	CategoryBehavioral = "behavioral"
	CategoryFinancial  = "financial"
	CategoryPersonal   = "personal_info"
	CategoryRomance    = "romance"
	CategoryUrgency    = "urgency"
)

// RuleFinding is the contribution of one triggered rule.
type RuleFinding struct {
	RuleID      string `json:"ruleId"`
	Category    string `json:"category"`
	Points      int    `json:"points"`
	Explanation string `json:"explanation"`
}

// CategoryScore is the capped point total of an evaluator plus the findings behind it.
type CategoryScore struct {
	Points   int           `json:"points"`
	Findings []RuleFinding `json:"findings"`
}

// Explanations returns the non-empty finding explanations in order.
func (c CategoryScore) Explanations() []string {
	out := make([]string, 0, len(c.Findings))
	for _, f := range c.Findings {
		if f.Explanation != "" {
			out = append(out, f.Explanation)
		}
	}
	return out
}

// Estimate is the second opinion of a suspicion estimator.
type Estimate struct {
	Estimator    string   `json:"estimator"`
	Probability  float64  `json:"probability"`
	Explanations []string `json:"explanations"`
}
