package rules

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// MetadataCap bounds the points the metadata evaluator can contribute.
const MetadataCap = 60

// GroupMode controls how the rules of a group combine.
type GroupMode string

const (
	// FirstMatch tests rules in order and stops at the first hit.
	FirstMatch GroupMode = "first_match"

	// Additive sums every hit, then applies the group cap.
	Additive GroupMode = "additive"
)

// RuleGroup is an ordered set of related rules.
type RuleGroup struct {
	Name     string
	Category string
	Mode     GroupMode

	// Cap bounds an additive group's total. Zero means uncapped.
	Cap int

	Rules []RuleConfig

	// Summarize explains an additive group's total. Empty output means no explanation.
	Summarize func(points int) string
}

type compiledGroup struct {
	RuleGroup
	compiled []*CompiledRule
}

// MetadataEvaluator applies threshold rules to profile metadata.
// It is immutable after construction and safe for concurrent use.
type MetadataEvaluator struct {
	groups []compiledGroup
}

// NewMetadataEvaluator compiles groups, or the builtin groups when none are given.
func NewMetadataEvaluator(engine *Engine, groups []RuleGroup) (*MetadataEvaluator, error) {
	if engine == nil {
		var err error
		if engine, err = NewEngine(); err != nil {
			return nil, err
		}
	}
	if len(groups) == 0 {
		groups = BuiltinMetadataGroups()
	}

	m := &MetadataEvaluator{}
	for _, g := range groups {
		if g.Mode != FirstMatch && g.Mode != Additive {
			return nil, fmt.Errorf("group %s: unknown mode %q", g.Name, g.Mode)
		}
		cg := compiledGroup{RuleGroup: g}
		for _, cfg := range g.Rules {
			r, err := engine.Compile(cfg)
			if err != nil {
				return nil, fmt.Errorf("group %s: %w", g.Name, err)
			}
			cg.compiled = append(cg.compiled, r)
		}
		m.groups = append(m.groups, cg)
	}
	return m, nil
}

// RulesCount returns the number of compiled rules.
func (m *MetadataEvaluator) RulesCount() int {
	n := 0
	for _, g := range m.groups {
		n += len(g.compiled)
	}
	return n
}

// Evaluate scores the profile metadata. Messages are ignored.
func (m *MetadataEvaluator) Evaluate(p *domain.ProfileInput) (domain.CategoryScore, error) {
	facts := FactsFrom(p)
	activation := facts.activation()

	var score domain.CategoryScore
	total := 0

	for _, g := range m.groups {
		var (
			findings []domain.RuleFinding
			err      error
		)
		switch g.Mode {
		case FirstMatch:
			findings, err = g.firstMatch(facts, activation)
		case Additive:
			findings, err = g.additive(activation)
		}
		if err != nil {
			return domain.CategoryScore{}, err
		}
		for _, f := range findings {
			total += f.Points
		}
		score.Findings = append(score.Findings, findings...)
	}

	score.Points = min(total, MetadataCap)
	return score, nil
}

func (g *compiledGroup) firstMatch(facts Facts, activation map[string]any) ([]domain.RuleFinding, error) {
	for _, r := range g.compiled {
		hit, err := r.Matches(activation)
		if err != nil {
			return nil, err
		}
		if hit {
			return []domain.RuleFinding{{
				RuleID:      r.Config.ID,
				Category:    g.Category,
				Points:      r.Config.Points,
				Explanation: r.explain(facts),
			}}, nil
		}
	}
	return nil, nil
}

func (g *compiledGroup) additive(activation map[string]any) ([]domain.RuleFinding, error) {
	points := 0
	for _, r := range g.compiled {
		hit, err := r.Matches(activation)
		if err != nil {
			return nil, err
		}
		if hit {
			points += r.Config.Points
		}
	}
	if g.Cap > 0 {
		points = min(points, g.Cap)
	}
	if points == 0 {
		return nil, nil
	}

	explanation := ""
	if g.Summarize != nil {
		explanation = g.Summarize(points)
	}
	return []domain.RuleFinding{{
		RuleID:      g.Name,
		Category:    g.Category,
		Points:      points,
		Explanation: explanation,
	}}, nil
}
