// Package ml provides the suspicion estimators: a seeded random forest trained
// on a synthetic corpus, and a fixed heuristic substitute.
package ml

import (
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Feature indexes of a derived feature vector.
const (
	FeatureAccountAge = iota
	FeatureFollowerRatio
	FeaturePostsPerDay
	FeatureCompleteness
	NumFeatures
)

const (
	ratioCap = 100
	paceCap  = 100
)

// FeatureNames labels the feature vector positions.
var FeatureNames = [NumFeatures]string{
	"account_age",
	"follower_ratio",
	"posting_frequency",
	"profile_completeness",
}

// FeatureVector derives the classifier inputs from a profile.
func FeatureVector(p *domain.ProfileInput) []float64 {
	v := make([]float64, NumFeatures)
	v[FeatureAccountAge] = float64(p.AccountAgeDays)
	v[FeatureFollowerRatio] = min(ratioCap, p.FollowerRatio())
	v[FeaturePostsPerDay] = min(paceCap, float64(p.PostCount)/float64(max(p.AccountAgeDays, 1)))
	if p.ProfileCompleted {
		v[FeatureCompleteness] = 1
	}
	return v
}
