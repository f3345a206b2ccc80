package analyzer

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrNotReady is returned by a Holder that has no analyzer yet.
var ErrNotReady = errors.New("analyzer not ready")

// Holder publishes the current Analyzer to concurrent readers. Swapping never
// blocks in-flight assessments; they finish on the analyzer they started with.
type Holder struct {
	current atomic.Pointer[Analyzer]
}

// NewHolder returns a holder serving a.
func NewHolder(a *Analyzer) *Holder {
	h := &Holder{}
	if a != nil {
		h.current.Store(a)
	}
	return h
}

// Load returns the current analyzer, or nil.
func (h *Holder) Load() *Analyzer {
	return h.current.Load()
}

// Swap installs a and returns the previous analyzer.
func (h *Holder) Swap(a *Analyzer) *Analyzer {
	return h.current.Swap(a)
}

// Assess scores p with the current analyzer.
func (h *Holder) Assess(ctx context.Context, p *domain.ProfileInput) (*domain.RiskAssessment, error) {
	a := h.current.Load()
	if a == nil {
		return nil, ErrNotReady
	}
	return a.Assess(ctx, p)
}
