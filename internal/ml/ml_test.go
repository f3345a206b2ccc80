package ml

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func testForestConfig() domain.ForestConfig {
	return domain.ForestConfig{Trees: 30, MaxDepth: 6, MinSamplesLeaf: 1, Seed: 42}
}

func testCorpusConfig() domain.CorpusConfig {
	return domain.CorpusConfig{Size: 1000, LegitFraction: 0.7, Seed: 42}
}

func legitProfile() *domain.ProfileInput {
	return &domain.ProfileInput{
		AccountAgeDays:   700,
		Followers:        400,
		Following:        300,
		PostCount:        2100,
		ProfileCompleted: true,
		Messages:         []string{"hi"},
	}
}

func suspiciousProfile() *domain.ProfileInput {
	return &domain.ProfileInput{
		AccountAgeDays:   5,
		Followers:        3,
		Following:        2500,
		PostCount:        400,
		ProfileCompleted: false,
		Messages:         []string{"hi"},
	}
}

func TestFeatureVector(t *testing.T) {
	p := &domain.ProfileInput{AccountAgeDays: 0, Followers: 50000, Following: 10, PostCount: 300, ProfileCompleted: true}
	v := FeatureVector(p)

	if v[FeatureFollowerRatio] != ratioCap {
		t.Errorf("expected ratio capped at %d, got %f", ratioCap, v[FeatureFollowerRatio])
	}
	if v[FeaturePostsPerDay] != paceCap {
		t.Errorf("expected pace capped at %d, got %f", paceCap, v[FeaturePostsPerDay])
	}
	if v[FeatureCompleteness] != 1 {
		t.Errorf("expected completeness 1, got %f", v[FeatureCompleteness])
	}
}

func TestStandardScaler(t *testing.T) {
	X := [][]float64{{1, 5}, {3, 5}, {5, 5}}
	s, err := FitScaler(X)
	if err != nil {
		t.Fatalf("FitScaler failed: %v", err)
	}

	if s.Mean[0] != 3 {
		t.Errorf("expected mean 3, got %f", s.Mean[0])
	}
	if s.Scale[1] != 1 {
		t.Errorf("constant feature should have scale 1, got %f", s.Scale[1])
	}

	out := s.Transform([]float64{3, 5})
	if out[0] != 0 || out[1] != 0 {
		t.Errorf("expected mean row to map to zero, got %v", out)
	}

	t.Run("Empty", func(t *testing.T) {
		if _, err := FitScaler(nil); err == nil {
			t.Error("expected error for empty data")
		}
	})

	t.Run("Ragged", func(t *testing.T) {
		if _, err := FitScaler([][]float64{{1, 2}, {1}}); err == nil {
			t.Error("expected error for ragged rows")
		}
	})
}

func TestForestFit(t *testing.T) {
	// Three features carry the class, the fourth is noise.
	var X [][]float64
	var y []int
	for i := 0; i < 200; i++ {
		v := float64(i)
		label := 0
		if i >= 100 {
			label = 1
		}
		X = append(X, []float64{v, 2 * v, -v, float64(i % 2)})
		y = append(y, label)
	}

	f := NewForest(domain.ForestConfig{Trees: 10, MaxDepth: 4, Seed: 7})
	if f.IsTrained() {
		t.Fatal("new forest should not be trained")
	}
	if p := f.PredictProba(X[0]); p != 0 {
		t.Errorf("untrained forest should return 0, got %f", p)
	}

	if err := f.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if !f.IsTrained() {
		t.Error("forest should be trained")
	}
	if p := f.PredictProba([]float64{10, 20, -10, 0}); p > 0.5 {
		t.Errorf("expected low probability for negative region, got %f", p)
	}
	if p := f.PredictProba([]float64{190, 380, -190, 0}); p < 0.5 {
		t.Errorf("expected high probability for positive region, got %f", p)
	}

	info := f.Info()
	if info.TrainingAccuracy < 0.9 {
		t.Errorf("expected training accuracy >= 0.9, got %f", info.TrainingAccuracy)
	}

	sum := 0.0
	for _, v := range f.FeatureImportance() {
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("feature importance should sum to 1, got %f", sum)
	}
}

func TestForestFitErrors(t *testing.T) {
	f := NewForest(domain.ForestConfig{})

	tests := []struct {
		name string
		X    [][]float64
		y    []int
	}{
		{"Empty", nil, nil},
		{"LabelMismatch", [][]float64{{1}, {2}}, []int{0}},
		{"SingleClass", [][]float64{{1}, {2}}, []int{1, 1}},
		{"BadLabel", [][]float64{{1}, {2}}, []int{0, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.Fit(tt.X, tt.y); err == nil {
				t.Error("expected error")
			}
			if f.IsTrained() {
				t.Error("failed fit must leave the forest untrained")
			}
		})
	}
}

func TestGenerateCorpus(t *testing.T) {
	a := GenerateCorpus(testCorpusConfig())
	b := GenerateCorpus(testCorpusConfig())

	if len(a.Features) != 1000 || len(a.Labels) != 1000 {
		t.Fatalf("expected 1000 samples, got %d/%d", len(a.Features), len(a.Labels))
	}
	if !reflect.DeepEqual(a.Features, b.Features) {
		t.Error("same seed should produce identical features")
	}

	legit := 0
	for i, label := range a.Labels {
		if label == LabelLegitimate {
			legit++
		}
		row := a.Features[i]
		if row[FeatureAccountAge] < 1 {
			t.Fatalf("row %d: age below 1: %f", i, row[FeatureAccountAge])
		}
		if row[FeatureFollowerRatio] > ratioCap {
			t.Fatalf("row %d: ratio above cap: %f", i, row[FeatureFollowerRatio])
		}
		if label == LabelLegitimate && row[FeaturePostsPerDay] > 20 {
			t.Fatalf("row %d: legitimate pace above 20: %f", i, row[FeaturePostsPerDay])
		}
	}
	if legit != 700 {
		t.Errorf("expected 700 legitimate samples, got %d", legit)
	}

	c := GenerateCorpus(domain.CorpusConfig{Size: 1000, LegitFraction: 0.7, Seed: 7})
	if reflect.DeepEqual(a.Features, c.Features) {
		t.Error("different seeds should produce different corpora")
	}
}

func TestNoneEstimator(t *testing.T) {
	est, err := None{}.Estimate(legitProfile())
	if est != nil || err != nil {
		t.Errorf("expected no opinion, got %v, %v", est, err)
	}
}

func TestForestEstimator(t *testing.T) {
	ctx := context.Background()
	corpus := GenerateCorpus(testCorpusConfig())

	est, err := TrainForest(ctx, corpus, testForestConfig())
	if err != nil {
		t.Fatalf("TrainForest failed: %v", err)
	}

	t.Run("Separates", func(t *testing.T) {
		legit, err := est.Estimate(legitProfile())
		if err != nil {
			t.Fatalf("Estimate failed: %v", err)
		}
		sus, _ := est.Estimate(suspiciousProfile())

		if sus.Probability <= legit.Probability {
			t.Errorf("suspicious %.3f should exceed legitimate %.3f", sus.Probability, legit.Probability)
		}
		for _, e := range []*domain.Estimate{legit, sus} {
			if e.Probability < 0 || e.Probability > 1 {
				t.Errorf("probability out of range: %f", e.Probability)
			}
			if len(e.Explanations) > 2 {
				t.Errorf("expected at most 2 explanations, got %v", e.Explanations)
			}
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		again, err := TrainForest(ctx, GenerateCorpus(testCorpusConfig()), testForestConfig())
		if err != nil {
			t.Fatalf("TrainForest failed: %v", err)
		}
		a, _ := est.Estimate(suspiciousProfile())
		b, _ := again.Estimate(suspiciousProfile())
		if !reflect.DeepEqual(a, b) {
			t.Errorf("retraining with the same seed should be idempotent: %+v vs %+v", a, b)
		}
	})

	t.Run("Info", func(t *testing.T) {
		info := est.Info()
		if !info.Ready || info.Model == nil || info.Model.Trees != 30 {
			t.Errorf("unexpected info %+v", info)
		}
		if info.CorpusKey != corpus.Key() {
			t.Errorf("expected corpus key %s, got %s", corpus.Key(), info.CorpusKey)
		}
	})

	t.Run("Untrained", func(t *testing.T) {
		_, err := (&ForestEstimator{}).Estimate(legitProfile())
		if !errors.Is(err, domain.ErrClassifierUnavailable) {
			t.Errorf("expected ErrClassifierUnavailable, got %v", err)
		}
	})

	t.Run("EmptyCorpus", func(t *testing.T) {
		if _, err := TrainForest(ctx, &domain.TrainingCorpus{}, testForestConfig()); err == nil {
			t.Error("expected error for empty corpus")
		}
	})
}

func TestHeuristicEstimator(t *testing.T) {
	h := NewHeuristic()

	legit, _ := h.Estimate(legitProfile())
	sus, _ := h.Estimate(suspiciousProfile())

	if legit.Probability >= 0.1 {
		t.Errorf("expected low probability for established profile, got %f", legit.Probability)
	}
	if sus.Probability <= 0.9 {
		t.Errorf("expected high probability for bot-like profile, got %f", sus.Probability)
	}

	want := []string{
		"New account created during high-fraud period (identity theft indicator)",
		"Following 2500 accounts but only 3 followers (bot network signature)",
	}
	if !reflect.DeepEqual(sus.Explanations, want) {
		t.Errorf("expected %v, got %v", want, sus.Explanations)
	}
	if len(legit.Explanations) != 0 {
		t.Errorf("expected no explanations for established profile, got %v", legit.Explanations)
	}
}

func TestExplainThreshold(t *testing.T) {
	p := suspiciousProfile()
	scaled := []float64{-3, -3, 0, 0}

	got := explain(p, scaled, []float64{0.05, 0.9, 0.03, 0.02})
	if len(got) != 1 {
		t.Fatalf("expected only the important feature to be explained, got %v", got)
	}
	if got[0] != "Following 2500 accounts but only 3 followers (bot network signature)" {
		t.Errorf("unexpected explanation %q", got[0])
	}
}

func TestExplainOrder(t *testing.T) {
	p := suspiciousProfile()
	importance := []float64{0.4, 0.4, 0.1, 0.1}
	age := "New account created during high-fraud period (identity theft indicator)"
	ratio := "Following 2500 accounts but only 3 followers (bot network signature)"

	// Largest contribution first.
	if got := explain(p, []float64{-1, -3, 0, 0}, importance); !reflect.DeepEqual(got, []string{ratio, age}) {
		t.Errorf("expected ratio before age, got %v", got)
	}
	if got := explain(p, []float64{-3, -1, 0, 0}, importance); !reflect.DeepEqual(got, []string{age, ratio}) {
		t.Errorf("expected age before ratio, got %v", got)
	}
}
