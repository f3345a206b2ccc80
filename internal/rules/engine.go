// Package rules provides the deterministic rule evaluators: CEL-compiled
// metadata rules and regex-driven message content rules.
package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Facts are the profile values exposed to rule conditions and explanations.
type Facts struct {
	AccountAgeDays   int
	Followers        int
	Following        int
	PostCount        int
	ProfileCompleted bool
	FollowerRatio    float64
	PostsPerDay      float64
}

// FactsFrom derives rule facts from a profile.
func FactsFrom(p *domain.ProfileInput) Facts {
	return Facts{
		AccountAgeDays:   p.AccountAgeDays,
		Followers:        p.Followers,
		Following:        p.Following,
		PostCount:        p.PostCount,
		ProfileCompleted: p.ProfileCompleted,
		FollowerRatio:    p.FollowerRatio(),
		PostsPerDay:      p.PostsPerDay(),
	}
}

func (f Facts) activation() map[string]any {
	return map[string]any{
		"account_age_days":  int64(f.AccountAgeDays),
		"followers":         int64(f.Followers),
		"following":         int64(f.Following),
		"post_count":        int64(f.PostCount),
		"profile_completed": f.ProfileCompleted,
		"follower_ratio":    f.FollowerRatio,
		"posts_per_day":     f.PostsPerDay,
	}
}

// RuleConfig defines one metadata rule.
type RuleConfig struct {
	ID string `json:"id"`

	// CEL condition over the profile facts; must return bool.
	Condition string `json:"condition"`

	Points int `json:"points"`

	// Explain renders the finding text. Nil means the rule contributes points silently.
	Explain func(Facts) string `json:"-"`
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  RuleConfig
	Program cel.Program
}

// Engine compiles and evaluates rule conditions.
type Engine struct {
	env *cel.Env
}

// NewEngine creates a CEL environment with the profile variables declared.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("account_age_days", cel.IntType),
		cel.Variable("followers", cel.IntType),
		cel.Variable("following", cel.IntType),
		cel.Variable("post_count", cel.IntType),
		cel.Variable("profile_completed", cel.BoolType),
		cel.Variable("follower_ratio", cel.DoubleType),
		cel.Variable("posts_per_day", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Engine{env: env}, nil
}

// ValidateRule compiles a rule without keeping the result.
func (e *Engine) ValidateRule(cfg RuleConfig) error {
	_, err := e.Compile(cfg)
	return err
}

// Compile checks and compiles a rule condition.
func (e *Engine) Compile(cfg RuleConfig) (*CompiledRule, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("rule id is required")
	}

	ast, issues := e.env.Compile(cfg.Condition)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: condition must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{Config: cfg, Program: program}, nil
}

// Matches evaluates the rule condition against an activation.
func (r *CompiledRule) Matches(activation map[string]any) (bool, error) {
	out, _, err := r.Program.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("rule %s: evaluation error: %w", r.Config.ID, err)
	}
	return toBool(r.Config.ID, out)
}

func toBool(id string, val ref.Val) (bool, error) {
	b, ok := val.(types.Bool)
	if !ok {
		return false, fmt.Errorf("rule %s: expected bool result, got %s", id, val.Type().TypeName())
	}
	return bool(b), nil
}

func (r *CompiledRule) explain(f Facts) string {
	if r.Config.Explain == nil {
		return ""
	}
	return r.Config.Explain(f)
}
