package rules

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// metadataPoints is one calibration of the builtin metadata rules.
type metadataPoints struct {
	ageNew, ageRecent          int
	ratioBot, ratioInflated    int
	cadenceBurst, cadenceQuiet int
	incomplete                 int
	behavioral                 bool
}

var (
	standaloneMetadata = metadataPoints{30, 15, 25, 20, 20, 10, 15, true}
	hybridMetadata     = metadataPoints{25, 10, 20, 15, 15, 8, 12, false}
)

// HybridContentPoints are the content category points used alongside an
// estimator, keyed by category name.
var HybridContentPoints = map[string]int{
	domain.CategoryFinancial: 20,
	domain.CategoryPersonal:  18,
	domain.CategoryRomance:   22,
	domain.CategoryUrgency:   10,
}

// BuiltinMetadataGroups returns the production metadata rule set for
// rule-only scoring. Group order is the order explanations are reported in.
func BuiltinMetadataGroups() []RuleGroup {
	return metadataGroups(standaloneMetadata)
}

// HybridMetadataGroups returns the lighter metadata rule set used when an
// estimator contributes to the score. It has no behavioral group.
func HybridMetadataGroups() []RuleGroup {
	return metadataGroups(hybridMetadata)
}

func metadataGroups(pts metadataPoints) []RuleGroup {
	groups := []RuleGroup{
		{
			Name:     "account_age",
			Category: domain.CategoryMetadata,
			Mode:     FirstMatch,
			Rules: []RuleConfig{
				{
					ID:        "age-new",
					Condition: "account_age_days < 30",
					Points:    pts.ageNew,
					Explain: func(f Facts) string {
						return fmt.Sprintf("Account created %d days ago (new accounts are high risk)", f.AccountAgeDays)
					},
				},
				{
					ID:        "age-recent",
					Condition: "account_age_days < 90",
					Points:    pts.ageRecent,
					Explain: func(f Facts) string {
						return fmt.Sprintf("Account is %d days old (relatively new)", f.AccountAgeDays)
					},
				},
			},
		},
		{
			Name:     "follower_ratio",
			Category: domain.CategoryMetadata,
			Mode:     FirstMatch,
			Rules: []RuleConfig{
				{
					ID:        "ratio-bot-following",
					Condition: "following > 0 && follower_ratio < 0.01 && following > 1000",
					Points:    pts.ratioBot,
					Explain: func(f Facts) string {
						return fmt.Sprintf("Following %d accounts but only %d followers (bot-like behavior)", f.Following, f.Followers)
					},
				},
				{
					ID:        "ratio-inflated-followers",
					Condition: "following > 0 && follower_ratio > 100.0 && followers > 10000",
					Points:    pts.ratioInflated,
					Explain: func(f Facts) string {
						return fmt.Sprintf("Unusually high follower count (%d) may indicate fake followers", f.Followers)
					},
				},
			},
		},
		{
			Name:     "posting_cadence",
			Category: domain.CategoryMetadata,
			Mode:     FirstMatch,
			Rules: []RuleConfig{
				{
					ID:        "cadence-burst",
					Condition: "account_age_days > 0 && posts_per_day > 50.0",
					Points:    pts.cadenceBurst,
					Explain: func(f Facts) string {
						return fmt.Sprintf("Posting %.1f times per day (abnormally high activity)", f.PostsPerDay)
					},
				},
				{
					ID:        "cadence-dormant",
					Condition: "account_age_days > 30 && posts_per_day < 0.01",
					Points:    pts.cadenceQuiet,
					Explain: func(Facts) string {
						return "Very low posting activity for account age"
					},
				},
			},
		},
		{
			Name:     "completeness",
			Category: domain.CategoryMetadata,
			Mode:     FirstMatch,
			Rules: []RuleConfig{
				{
					ID:        "profile-incomplete",
					Condition: "!profile_completed",
					Points:    pts.incomplete,
					Explain: func(Facts) string {
						return "Profile is incomplete (missing key information)"
					},
				},
			},
		},
	}
	if !pts.behavioral {
		return groups
	}
	return append(groups, RuleGroup{
		Name:     "behavioral",
		Category: domain.CategoryBehavioral,
		Mode:     Additive,
		Cap:      30,
		Rules: []RuleConfig{
			{
				ID:        "behavior-activity-anomaly",
				Condition: "account_age_days > 0 && (posts_per_day > 20.0 || posts_per_day < 0.01)",
				Points:    10,
			},
			{
				ID:        "behavior-following-skew",
				Condition: "double(following) > double(followers) * 10.0",
				Points:    15,
			},
			{
				ID:        "behavior-round-followers",
				Condition: "followers % 100 == 0 && followers > 1000",
				Points:    5,
			},
		},
		Summarize: func(points int) string {
			if points <= 10 {
				return ""
			}
			return fmt.Sprintf("Behavioral analysis indicates %d risk points from activity patterns", points)
		},
	})
}
