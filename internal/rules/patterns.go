package rules

import (
	"fmt"
	"regexp"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// PatternDef is an uncompiled pattern. Expressions are compiled case-insensitive.
type PatternDef struct {
	ID   string
	Expr string
}

// CategoryDef describes one scam category of the content evaluator.
type CategoryDef struct {
	Name        string
	Points      int
	Explanation string
	Patterns    []PatternDef
}

// Pattern is a compiled pattern.
type Pattern struct {
	ID string
	re *regexp.Regexp
}

// MatchString reports whether text contains a match.
func (p Pattern) MatchString(text string) bool {
	return p.re.MatchString(text)
}

// Category is a compiled scam category. Patterns are tested in order.
type Category struct {
	Name        string
	Points      int
	Explanation string
	Patterns    []Pattern
}

// Library is an immutable set of compiled message patterns.
type Library struct {
	categories []Category
	urgency    []Pattern
}

// DefaultCategories are the built-in scam categories in evaluation order.
var DefaultCategories = []CategoryDef{
	{
		Name:        domain.CategoryFinancial,
		Points:      25,
		Explanation: "Messages contain financial requests or money transfer language",
		Patterns: []PatternDef{
			{ID: "fin-transfer", Expr: `\b(send|wire|transfer)\s+(money|cash|funds)\b`},
			{ID: "fin-rails", Expr: `\b(western\s+union|moneygram|bitcoin|crypto(currency)?|paypal|venmo|cash\s*app|zelle|gift\s+cards?)\b`},
			{ID: "fin-urgent-money", Expr: `\b(emergency|urgent|immediate)\s+(help|assistance|money|funds)\b`},
			{ID: "fin-investment", Expr: `\b(investment|trading|profit|returns)\s+(opportunity|guaranteed)\b`},
			{ID: "fin-windfall", Expr: `\b(lottery|winner|prize|inheritance)\b`},
		},
	},
	{
		Name:        domain.CategoryPersonal,
		Points:      20,
		Explanation: "Messages request personal or financial information",
		Patterns: []PatternDef{
			{ID: "pii-banking", Expr: `\b(ssn|social\s+security|bank\s+account|routing\s+number)\b`},
			{ID: "pii-credentials", Expr: `\b(credit\s+card|debit\s+card|pin\s+code|password)\b`},
			{ID: "pii-identity", Expr: `\b(full\s+name|address|phone\s+number|date\s+of\s+birth)\b`},
		},
	},
	{
		Name:        domain.CategoryRomance,
		Points:      30,
		Explanation: "Messages show romance scam patterns (emotional manipulation + money requests)",
		Patterns: []PatternDef{
			{ID: "rom-affection", Expr: `\b(love|darling|honey|sweetheart)\b.*\b(money|help|emergency)\b`},
			{ID: "rom-occupation", Expr: `\b(military|deployed|overseas|doctor|engineer)\b.*\b(money|funds)\b`},
			{ID: "rom-trust", Expr: `\b(trust|faith|god)\b.*\b(send|transfer|help)\b`},
		},
	},
}

// DefaultUrgency are the built-in pressure-tactic patterns.
var DefaultUrgency = []PatternDef{
	{ID: "urg-urgent", Expr: `\burgent\b`},
	{ID: "urg-emergency", Expr: `\bemergency\b`},
	{ID: "urg-quickly", Expr: `\bquickly\b`},
	{ID: "urg-asap", Expr: `\basap\b`},
	{ID: "urg-immediately", Expr: `\bimmediately\b`},
}

var defaultLibrary = mustLibrary(DefaultCategories, DefaultUrgency)

// DefaultLibrary returns the shared built-in library.
func DefaultLibrary() *Library {
	return defaultLibrary
}

// NewLibrary compiles category and urgency definitions.
func NewLibrary(categories []CategoryDef, urgency []PatternDef) (*Library, error) {
	lib := &Library{}

	for _, def := range categories {
		cat := Category{
			Name:        def.Name,
			Points:      def.Points,
			Explanation: def.Explanation,
		}
		for _, pd := range def.Patterns {
			p, err := compilePattern(pd)
			if err != nil {
				return nil, fmt.Errorf("category %s: %w", def.Name, err)
			}
			cat.Patterns = append(cat.Patterns, p)
		}
		lib.categories = append(lib.categories, cat)
	}

	for _, pd := range urgency {
		p, err := compilePattern(pd)
		if err != nil {
			return nil, fmt.Errorf("urgency: %w", err)
		}
		lib.urgency = append(lib.urgency, p)
	}

	return lib, nil
}

// Categories returns a copy of the compiled scam categories.
func (l *Library) Categories() []Category {
	return append([]Category(nil), l.categories...)
}

// Urgency returns a copy of the compiled urgency patterns.
func (l *Library) Urgency() []Pattern {
	return append([]Pattern(nil), l.urgency...)
}

// PatternCount returns the total number of compiled patterns.
func (l *Library) PatternCount() int {
	n := len(l.urgency)
	for _, c := range l.categories {
		n += len(c.Patterns)
	}
	return n
}

func compilePattern(pd PatternDef) (Pattern, error) {
	re, err := regexp.Compile(`(?i)` + pd.Expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("pattern %s: %w", pd.ID, err)
	}
	return Pattern{ID: pd.ID, re: re}, nil
}

func mustLibrary(categories []CategoryDef, urgency []PatternDef) *Library {
	lib, err := NewLibrary(categories, urgency)
	if err != nil {
		panic(err)
	}
	return lib
}
