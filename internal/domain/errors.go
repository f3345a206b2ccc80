package domain

import (
	"errors"
	"fmt"
)

// ErrClassifierUnavailable signals that the suspicion estimator cannot produce
// a probability. Callers degrade to rule-only scoring.
var ErrClassifierUnavailable = errors.New("classifier unavailable")

// ValidationError reports input the caller must fix.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AnalysisError wraps an unexpected failure during assessment.
type AnalysisError struct {
	Stage string
	Err   error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}
