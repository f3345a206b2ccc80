// Package domain defines the core interfaces and types for Kestrel.
package domain

// ProfileInput is the account snapshot submitted for assessment.
type ProfileInput struct {
	AccountAgeDays   int      `json:"account_age_days"`
	Followers        int      `json:"followers"`
	Following        int      `json:"following"`
	PostCount        int      `json:"post_count"`
	ProfileCompleted bool     `json:"profile_completed"`
	Messages         []string `json:"messages"`
}

// Validate checks the profile for out-of-range or missing values.
func (p *ProfileInput) Validate() error {
	switch {
	case p.AccountAgeDays < 0:
		return &ValidationError{Field: "account_age_days", Reason: "must be non-negative"}
	case p.Followers < 0:
		return &ValidationError{Field: "followers", Reason: "must be non-negative"}
	case p.Following < 0:
		return &ValidationError{Field: "following", Reason: "must be non-negative"}
	case p.PostCount < 0:
		return &ValidationError{Field: "post_count", Reason: "must be non-negative"}
	case len(p.Messages) == 0:
		return &ValidationError{Field: "messages", Reason: "at least one message is required"}
	}
	return nil
}

// FollowerRatio returns followers per followed account.
// Accounts that follow nobody report a neutral ratio of 1.
func (p *ProfileInput) FollowerRatio() float64 {
	if p.Following <= 0 {
		return 1
	}
	return float64(p.Followers) / float64(p.Following)
}

// PostsPerDay returns the average posting cadence, or 0 for accounts created today.
func (p *ProfileInput) PostsPerDay() float64 {
	if p.AccountAgeDays <= 0 {
		return 0
	}
	return float64(p.PostCount) / float64(p.AccountAgeDays)
}
