package ml

import (
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Class labels of the synthetic corpus.
const (
	LabelLegitimate = 0
	LabelSuspicious = 1
)

// GenerateCorpus samples a labelled corpus from fixed per-class distributions.
// Legitimate rows come first. Output depends only on cfg.
func GenerateCorpus(cfg domain.CorpusConfig) *domain.TrainingCorpus {
	cfg = NormalizeCorpusConfig(cfg)
	rng := rand.New(rand.NewSource(cfg.Seed))
	nLegit := int(math.Round(float64(cfg.Size) * cfg.LegitFraction))

	corpus := &domain.TrainingCorpus{
		ID:            uuid.New().String(),
		Seed:          cfg.Seed,
		Size:          cfg.Size,
		LegitFraction: cfg.LegitFraction,
		Features:      make([][]float64, 0, cfg.Size),
		Labels:        make([]int, 0, cfg.Size),
		CreatedAt:     time.Now().UTC(),
	}

	for i := 0; i < nLegit; i++ {
		corpus.Features = append(corpus.Features, legitimateSample(rng))
		corpus.Labels = append(corpus.Labels, LabelLegitimate)
	}
	for i := nLegit; i < cfg.Size; i++ {
		corpus.Features = append(corpus.Features, suspiciousSample(rng))
		corpus.Labels = append(corpus.Labels, LabelSuspicious)
	}

	return corpus
}

// NormalizeCorpusConfig fills in defaults for unset generation parameters.
func NormalizeCorpusConfig(cfg domain.CorpusConfig) domain.CorpusConfig {
	if cfg.Size <= 0 {
		cfg.Size = 1000
	}
	if cfg.LegitFraction <= 0 || cfg.LegitFraction >= 1 {
		cfg.LegitFraction = 0.7
	}
	return cfg
}

// legitimateSample: year-old accounts, balanced audiences, moderate posting.
func legitimateSample(rng *rand.Rand) []float64 {
	age := rng.NormFloat64()*200 + 365
	followers := rng.ExpFloat64() * 500
	following := rng.ExpFloat64() * 300
	pace := gamma2(rng, 2)
	return sample(age, ratio(followers, following), min(20, pace), bernoulli(rng, 0.8))
}

// suspiciousSample: young accounts following many, posting either almost
// never or in bursts.
func suspiciousSample(rng *rand.Rand) []float64 {
	age := rng.ExpFloat64() * 30
	followers := rng.ExpFloat64() * 100
	following := rng.ExpFloat64() * 1000
	var pace float64
	if rng.Intn(2) == 0 {
		pace = rng.ExpFloat64()
	} else {
		pace = rng.ExpFloat64() * 50
	}
	return sample(age, ratio(followers, following), min(paceCap, pace), bernoulli(rng, 0.4))
}

func sample(age, ratio, pace, complete float64) []float64 {
	v := make([]float64, NumFeatures)
	v[FeatureAccountAge] = max(1, age)
	v[FeatureFollowerRatio] = min(ratioCap, ratio)
	v[FeaturePostsPerDay] = pace
	v[FeatureCompleteness] = complete
	return v
}

func ratio(followers, following float64) float64 {
	if following <= 0 {
		return 1
	}
	return followers / max(following, 1)
}

// gamma2 draws from Gamma(shape 2, scale) as the sum of two exponentials.
func gamma2(rng *rand.Rand, scale float64) float64 {
	return (rng.ExpFloat64() + rng.ExpFloat64()) * scale
}

func bernoulli(rng *rand.Rand, p float64) float64 {
	if rng.Float64() < p {
		return 1
	}
	return 0
}
