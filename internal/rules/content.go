package rules

import (
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	// ContentCap bounds the points the content evaluator can contribute.
	ContentCap = 40

	urgencyPoints    = 15
	urgencyThreshold = 2
)

// ContentEvaluator scores message text against a pattern library.
type ContentEvaluator struct {
	lib    *Library
	points map[string]int
}

// NewContentEvaluator creates an evaluator over lib, or the default library when nil.
func NewContentEvaluator(lib *Library) *ContentEvaluator {
	if lib == nil {
		lib = DefaultLibrary()
	}
	return &ContentEvaluator{lib: lib}
}

// WithPoints returns an evaluator over the same library that scores the named
// categories with points instead of the library values. The urgency score is
// keyed by domain.CategoryUrgency.
func (c *ContentEvaluator) WithPoints(points map[string]int) *ContentEvaluator {
	return &ContentEvaluator{lib: c.lib, points: points}
}

func (c *ContentEvaluator) pointsFor(category string, fallback int) int {
	if p, ok := c.points[category]; ok {
		return p
	}
	return fallback
}

// Evaluate scores the concatenation of all messages.
func (c *ContentEvaluator) Evaluate(messages []string) domain.CategoryScore {
	text := strings.Join(messages, " ")

	var score domain.CategoryScore
	total := 0

	for _, cat := range c.lib.categories {
		p, ok := firstMatch(cat.Patterns, text)
		if !ok {
			continue
		}
		points := c.pointsFor(cat.Name, cat.Points)
		total += points
		score.Findings = append(score.Findings, domain.RuleFinding{
			RuleID:      p.ID,
			Category:    cat.Name,
			Points:      points,
			Explanation: cat.Explanation,
		})
	}

	if n := countMatches(c.lib.urgency, text); n >= urgencyThreshold {
		points := c.pointsFor(domain.CategoryUrgency, urgencyPoints)
		total += points
		score.Findings = append(score.Findings, domain.RuleFinding{
			RuleID:      "urgency",
			Category:    domain.CategoryUrgency,
			Points:      points,
			Explanation: "Messages contain multiple urgency indicators (pressure tactics)",
		})
	}

	score.Points = min(total, ContentCap)
	return score
}

// firstMatch returns the first pattern in order that matches text.
func firstMatch(patterns []Pattern, text string) (Pattern, bool) {
	for _, p := range patterns {
		if p.MatchString(text) {
			return p, true
		}
	}
	return Pattern{}, false
}

// countMatches counts distinct patterns that match text.
func countMatches(patterns []Pattern, text string) int {
	n := 0
	for _, p := range patterns {
		if p.MatchString(text) {
			n++
		}
	}
	return n
}
