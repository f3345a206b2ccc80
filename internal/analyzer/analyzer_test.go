package analyzer

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ml"
	"github.com/opensource-finance/kestrel/internal/observability"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/scorer"
)

func legitimateProfile() *domain.ProfileInput {
	return &domain.ProfileInput{
		AccountAgeDays:   365,
		Followers:        250,
		Following:        180,
		PostCount:        120,
		ProfileCompleted: true,
		Messages:         []string{"Thanks for connecting!", "Great article you shared."},
	}
}

func suspiciousProfile() *domain.ProfileInput {
	return &domain.ProfileInput{
		AccountAgeDays:   45,
		Followers:        15,
		Following:        800,
		PostCount:        200,
		ProfileCompleted: false,
		Messages: []string{
			"Hello! I'm new to this platform.",
			"Looking to connect with professionals in your field.",
			"Would love to discuss potential opportunities.",
		},
	}
}

func romanceProfile() *domain.ProfileInput {
	return &domain.ProfileInput{
		AccountAgeDays:   7,
		Followers:        2,
		Following:        500,
		PostCount:        50,
		ProfileCompleted: false,
		Messages: []string{
			"My darling, I love you so much already.",
			"I am engineer working on oil rig, need emergency money.",
			"Trust me honey, send Western Union transfer immediately.",
		},
	}
}

func newAnalyzer(t *testing.T, kind domain.EstimatorKind, opts ...Option) *Analyzer {
	t.Helper()
	cfg := domain.DefaultConfig().Engine
	cfg.Estimator = kind
	a, err := New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New(%s) failed: %v", kind, err)
	}
	return a
}

func containsText(explanations []string, substr string) bool {
	return slices.ContainsFunc(explanations, func(e string) bool {
		return strings.Contains(e, substr)
	})
}

func TestScenarios(t *testing.T) {
	for _, kind := range []domain.EstimatorKind{domain.EstimatorNone, domain.EstimatorHeuristic} {
		a := newAnalyzer(t, kind)
		ctx := context.Background()

		t.Run(string(kind)+"/Legitimate", func(t *testing.T) {
			got, err := a.Assess(ctx, legitimateProfile())
			if err != nil {
				t.Fatalf("Assess failed: %v", err)
			}
			if got.RiskLevel != domain.RiskMinimal {
				t.Errorf("expected Minimal Risk, got %s (%.1f)", got.RiskLevel, got.RiskScore)
			}
			for _, bad := range []string{"financial", "romance"} {
				if containsText(got.Explanations, bad) {
					t.Errorf("unexpected %s explanation: %v", bad, got.Explanations)
				}
			}
		})

		t.Run(string(kind)+"/Suspicious", func(t *testing.T) {
			got, err := a.Assess(ctx, suspiciousProfile())
			if err != nil {
				t.Fatalf("Assess failed: %v", err)
			}
			if got.RiskLevel != domain.RiskLow && got.RiskLevel != domain.RiskMedium {
				t.Errorf("expected Low or Medium Risk, got %s (%.1f)", got.RiskLevel, got.RiskScore)
			}
			if !containsText(got.Explanations, "Account is 45 days old") {
				t.Errorf("expected account age explanation, got %v", got.Explanations)
			}
			if !containsText(got.Explanations, "Profile is incomplete") {
				t.Errorf("expected completeness explanation, got %v", got.Explanations)
			}
		})

		t.Run(string(kind)+"/Romance", func(t *testing.T) {
			got, err := a.Assess(ctx, romanceProfile())
			if err != nil {
				t.Fatalf("Assess failed: %v", err)
			}
			if got.RiskLevel != domain.RiskCritical {
				t.Errorf("expected Critical Risk, got %s (%.1f)", got.RiskLevel, got.RiskScore)
			}
			for _, want := range []string{"romance scam", "financial requests", "urgency"} {
				if !containsText(got.Explanations, want) {
					t.Errorf("expected %q explanation, got %v", want, got.Explanations)
				}
			}
		})
	}
}

func TestRuleOnlyScores(t *testing.T) {
	a := newAnalyzer(t, domain.EstimatorNone)
	ctx := context.Background()

	tests := []struct {
		name    string
		profile *domain.ProfileInput
		score   float64
	}{
		{"Legitimate", legitimateProfile(), 0},
		{"Suspicious", suspiciousProfile(), 45},
		{"Romance", romanceProfile(), 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.Assess(ctx, tt.profile)
			if err != nil {
				t.Fatalf("Assess failed: %v", err)
			}
			if got.RiskScore != tt.score {
				t.Errorf("expected score %.1f, got %.1f (%v)", tt.score, got.RiskScore, got.Explanations)
			}
		})
	}

	t.Run("ZeroScoreHasNoSummary", func(t *testing.T) {
		got, _ := a.Assess(ctx, legitimateProfile())
		if len(got.Explanations) != 0 {
			t.Errorf("expected no explanations for a clean profile, got %v", got.Explanations)
		}
		if got.Confidence != 0.5 {
			t.Errorf("expected confidence 0.5, got %.2f", got.Confidence)
		}
	})

	t.Run("SummaryUsesRuleMethod", func(t *testing.T) {
		got, _ := a.Assess(ctx, romanceProfile())
		if !strings.HasPrefix(got.Explanations[0], "Threat assessment:") || !strings.Contains(got.Explanations[0], "(rule-based analysis)") {
			t.Errorf("unexpected summary: %q", got.Explanations[0])
		}
		if !strings.HasPrefix(got.Explanations[len(got.Explanations)-1], "Confidence: ") {
			t.Errorf("expected trailing confidence line, got %q", got.Explanations[len(got.Explanations)-1])
		}
	})
}

func TestValidation(t *testing.T) {
	a := newAnalyzer(t, domain.EstimatorNone)
	ctx := context.Background()

	negativeAge := legitimateProfile()
	negativeAge.AccountAgeDays = -1

	noMessages := legitimateProfile()
	noMessages.Messages = []string{}

	negativeFollowers := legitimateProfile()
	negativeFollowers.Followers = -5

	tests := []struct {
		name    string
		profile *domain.ProfileInput
		field   string
	}{
		{"NegativeAge", negativeAge, "account_age_days"},
		{"EmptyMessages", noMessages, "messages"},
		{"NegativeFollowers", negativeFollowers, "followers"},
		{"NilProfile", nil, "profile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.Assess(ctx, tt.profile)
			if got != nil {
				t.Error("expected no assessment on validation failure")
			}
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, verr.Field)
			}
		})
	}
}

func TestInvariants(t *testing.T) {
	analyzers := map[string]*Analyzer{
		"none":      newAnalyzer(t, domain.EstimatorNone),
		"heuristic": newAnalyzer(t, domain.EstimatorHeuristic),
		"forest":    newAnalyzer(t, domain.EstimatorForest),
	}
	messages := [][]string{
		{"hi"},
		{"send money via bitcoin", "urgent, reply asap", "my darling I need money"},
		{"what is your bank account and password", "trust me and send it quickly", "emergency"},
	}

	rng := rand.New(rand.NewSource(7))
	ctx := context.Background()

	for name, a := range analyzers {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 200; i++ {
				p := &domain.ProfileInput{
					AccountAgeDays:   rng.Intn(2000),
					Followers:        rng.Intn(20000),
					Following:        rng.Intn(5000),
					PostCount:        rng.Intn(10000),
					ProfileCompleted: rng.Intn(2) == 0,
					Messages:         messages[rng.Intn(len(messages))],
				}
				got, err := a.Assess(ctx, p)
				if err != nil {
					t.Fatalf("Assess(%+v) failed: %v", p, err)
				}
				if got.RiskScore < 0 || got.RiskScore > 100 {
					t.Errorf("score out of range: %.1f", got.RiskScore)
				}
				if got.Confidence < 0 || got.Confidence > 1 {
					t.Errorf("confidence out of range: %.2f", got.Confidence)
				}
				if len(got.Explanations) > 10 {
					t.Errorf("too many explanations: %d", len(got.Explanations))
				}
				if got.RiskLevel != domain.LevelForScore(got.RiskScore) {
					t.Errorf("level %s inconsistent with score %.1f", got.RiskLevel, got.RiskScore)
				}
				if got.RiskScore == 0 && len(got.Explanations) > 0 && strings.HasPrefix(got.Explanations[0], "Threat assessment") {
					t.Error("summary present for zero score")
				}
			}
		})
	}
}

func TestForestAnalyzer(t *testing.T) {
	a := newAnalyzer(t, domain.EstimatorForest)
	ctx := context.Background()

	info := a.Info()
	if !info.Estimator.Ready {
		t.Fatal("expected forest estimator to be trained")
	}
	if info.Estimator.Model == nil || len(info.Estimator.Model.FeatureImportance) != ml.NumFeatures {
		t.Errorf("expected feature importance for %d features, got %+v", ml.NumFeatures, info.Estimator.Model)
	}

	romance, err := a.Assess(ctx, romanceProfile())
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	if romance.RiskLevel != domain.RiskCritical {
		t.Errorf("expected Critical Risk, got %s (%.1f)", romance.RiskLevel, romance.RiskScore)
	}

	legit, err := a.Assess(ctx, legitimateProfile())
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	if legit.RiskScore >= 40 {
		t.Errorf("expected legitimate profile below 40, got %.1f", legit.RiskScore)
	}

	suspicious, err := a.Assess(ctx, suspiciousProfile())
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	if suspicious.RiskLevel != domain.RiskLow && suspicious.RiskLevel != domain.RiskMedium {
		t.Errorf("expected Low or Medium Risk, got %s (%.1f)", suspicious.RiskLevel, suspicious.RiskScore)
	}
	for _, want := range []string{"Account is 45 days old", "Profile is incomplete"} {
		if !containsText(suspicious.Explanations, want) {
			t.Errorf("expected %q explanation, got %v", want, suspicious.Explanations)
		}
	}
}

type fixedEstimator float64

func (fixedEstimator) Name() string { return "fixed" }
func (f fixedEstimator) Estimate(*domain.ProfileInput) (*domain.Estimate, error) {
	return &domain.Estimate{Estimator: "fixed", Probability: float64(f)}, nil
}
func (fixedEstimator) Info() ml.EstimatorInfo { return ml.EstimatorInfo{Name: "fixed", Ready: true} }

func TestHybridCalibration(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		profile     *domain.ProfileInput
		probability float64
		score       float64
		level       domain.RiskLevel
	}{
		// 10 (age) + 12 (incomplete), no behavioral group.
		{"SuspiciousConfident", suspiciousProfile(), 0.9, 58, domain.RiskMedium},
		{"SuspiciousCertain", suspiciousProfile(), 0.975, 61, domain.RiskHigh},
		{"SuspiciousUnsure", suspiciousProfile(), 0, 22, domain.RiskLow},
		// Rule points saturate at 60 under either calibration.
		{"Romance", romanceProfile(), 0.5, 80, domain.RiskCritical},
		{"Legitimate", legitimateProfile(), 0.25, 10, domain.RiskMinimal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAnalyzer(t, domain.EstimatorNone, WithEstimator(fixedEstimator(tt.probability)))
			got, err := a.Assess(ctx, tt.profile)
			if err != nil {
				t.Fatalf("Assess failed: %v", err)
			}
			if got.RiskScore != tt.score {
				t.Errorf("expected score %.1f, got %.1f", tt.score, got.RiskScore)
			}
			if got.RiskLevel != tt.level {
				t.Errorf("expected %s, got %s", tt.level, got.RiskLevel)
			}
		})
	}
}

func TestRebuildIsDeterministic(t *testing.T) {
	first := newAnalyzer(t, domain.EstimatorForest)
	second := newAnalyzer(t, domain.EstimatorForest)
	ctx := context.Background()

	for _, p := range []*domain.ProfileInput{legitimateProfile(), suspiciousProfile(), romanceProfile()} {
		a, err := first.Assess(ctx, p)
		if err != nil {
			t.Fatalf("Assess failed: %v", err)
		}
		b, err := second.Assess(ctx, p)
		if err != nil {
			t.Fatalf("Assess failed: %v", err)
		}
		if !reflect.DeepEqual(a, b) {
			t.Errorf("rebuilt analyzer disagrees:\n%+v\n%+v", a, b)
		}
	}
}

func TestCorpusRepository(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "kestrel-analyzer-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	first := newAnalyzer(t, domain.EstimatorForest, WithCorpusRepository(repo))

	corpora, err := repo.ListCorpora(ctx)
	if err != nil {
		t.Fatalf("ListCorpora failed: %v", err)
	}
	if len(corpora) != 1 {
		t.Fatalf("expected 1 stored corpus, got %d", len(corpora))
	}

	// The second build loads the stored corpus instead of generating one.
	second := newAnalyzer(t, domain.EstimatorForest, WithCorpusRepository(repo))
	if first.Info().Estimator.CorpusKey != second.Info().Estimator.CorpusKey {
		t.Errorf("corpus keys differ: %s vs %s", first.Info().Estimator.CorpusKey, second.Info().Estimator.CorpusKey)
	}

	a, _ := first.Assess(ctx, suspiciousProfile())
	b, _ := second.Assess(ctx, suspiciousProfile())
	if !reflect.DeepEqual(a, b) {
		t.Errorf("stored corpus produced a different model:\n%+v\n%+v", a, b)
	}
}

func TestDegradedMode(t *testing.T) {
	metrics := observability.NewMetrics()
	degraded := newAnalyzer(t, domain.EstimatorForest, WithEstimator(&ml.ForestEstimator{}), WithMetrics(metrics))
	rulesOnly := newAnalyzer(t, domain.EstimatorNone)
	ctx := context.Background()

	got, err := degraded.Assess(ctx, suspiciousProfile())
	if err != nil {
		t.Fatalf("degraded Assess should not fail: %v", err)
	}
	want, _ := rulesOnly.Assess(ctx, suspiciousProfile())

	if got.RiskScore != want.RiskScore {
		t.Errorf("expected rule-only score %.1f, got %.1f", want.RiskScore, got.RiskScore)
	}
	if got.Confidence != want.Confidence {
		t.Errorf("expected rule-only confidence %.2f, got %.2f", want.Confidence, got.Confidence)
	}
	if !slices.Contains(got.Explanations, scorer.EstimatorUnavailableNote) {
		t.Errorf("expected unavailability note, got %v", got.Explanations)
	}
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "kestrel_estimator_unavailable_total 1") {
		t.Error("expected one degraded assessment to be counted")
	}
	if degraded.Info().Estimator.Ready {
		t.Error("expected untrained estimator to report not ready")
	}
}

type panicEstimator struct{}

func (panicEstimator) Name() string { return "panic" }
func (panicEstimator) Estimate(*domain.ProfileInput) (*domain.Estimate, error) {
	panic("boom")
}
func (panicEstimator) Info() ml.EstimatorInfo { return ml.EstimatorInfo{Name: "panic"} }

type failingEstimator struct{}

func (failingEstimator) Name() string { return "failing" }
func (failingEstimator) Estimate(*domain.ProfileInput) (*domain.Estimate, error) {
	return nil, errors.New("scaler mismatch")
}
func (failingEstimator) Info() ml.EstimatorInfo { return ml.EstimatorInfo{Name: "failing"} }

func TestAnalysisErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("RecoveredPanic", func(t *testing.T) {
		a := newAnalyzer(t, domain.EstimatorNone, WithEstimator(panicEstimator{}))
		got, err := a.Assess(ctx, romanceProfile())
		if got != nil {
			t.Error("expected no partial assessment")
		}
		var aerr *domain.AnalysisError
		if !errors.As(err, &aerr) {
			t.Fatalf("expected AnalysisError, got %v", err)
		}
		if !strings.Contains(aerr.Error(), "boom") {
			t.Errorf("expected panic value in error, got %v", aerr)
		}

		// The analyzer stays usable after a failed call.
		if _, err := a.Assess(ctx, &domain.ProfileInput{Messages: []string{"x"}}); err == nil {
			t.Error("expected the panicking estimator to fail again")
		}
	})

	t.Run("EstimatorFailure", func(t *testing.T) {
		a := newAnalyzer(t, domain.EstimatorNone, WithEstimator(failingEstimator{}))
		_, err := a.Assess(ctx, romanceProfile())
		var aerr *domain.AnalysisError
		if !errors.As(err, &aerr) {
			t.Fatalf("expected AnalysisError, got %v", err)
		}
		if aerr.Stage != "estimator" {
			t.Errorf("expected estimator stage, got %s", aerr.Stage)
		}
	})

	t.Run("CancelledContextStillScores", func(t *testing.T) {
		a := newAnalyzer(t, domain.EstimatorNone)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		got, err := a.Assess(cctx, romanceProfile())
		if err != nil {
			t.Fatalf("expected assessment despite cancelled context, got %v", err)
		}
		if got.RiskLevel != domain.RiskCritical {
			t.Errorf("expected Critical Risk, got %s", got.RiskLevel)
		}
	})
}

func TestUnsupportedEstimator(t *testing.T) {
	cfg := domain.DefaultConfig().Engine
	cfg.Estimator = "neural"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Error("expected error for unsupported estimator")
	}
}

func TestConcurrentAssess(t *testing.T) {
	a := newAnalyzer(t, domain.EstimatorHeuristic)
	ctx := context.Background()

	want, err := a.Assess(ctx, romanceProfile())
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := a.Assess(ctx, romanceProfile())
			if err != nil {
				errs <- err.Error()
				return
			}
			if !reflect.DeepEqual(got, want) {
				errs <- "concurrent result differs"
			}
		}()
	}
	wg.Wait()
	close(errs)

	for e := range errs {
		t.Error(e)
	}
}

func TestHolder(t *testing.T) {
	ctx := context.Background()
	h := NewHolder(nil)

	if _, err := h.Assess(ctx, romanceProfile()); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}

	rulesOnly := newAnalyzer(t, domain.EstimatorNone)
	if prev := h.Swap(rulesOnly); prev != nil {
		t.Error("expected no previous analyzer")
	}
	got, err := h.Assess(ctx, suspiciousProfile())
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	if got.RiskScore != 45 {
		t.Errorf("expected rule-only score 45, got %.1f", got.RiskScore)
	}

	heuristic := newAnalyzer(t, domain.EstimatorHeuristic)
	if prev := h.Swap(heuristic); prev != rulesOnly {
		t.Error("expected Swap to return the rule-only analyzer")
	}
	if h.Load() != heuristic {
		t.Error("expected Load to return the heuristic analyzer")
	}
}
