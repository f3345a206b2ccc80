package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ml"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// buildEstimator returns the estimator named by cfg.Estimator. A forest that
// fails to train is still returned, untrained, so assessments run degraded
// instead of the service refusing to start.
func buildEstimator(ctx context.Context, cfg domain.EngineConfig, corpora domain.CorpusRepository) (ml.SuspicionEstimator, error) {
	switch cfg.Estimator {
	case "", domain.EstimatorNone:
		return ml.None{}, nil

	case domain.EstimatorHeuristic:
		return ml.NewHeuristic(), nil

	case domain.EstimatorForest:
		corpus, err := loadCorpus(ctx, cfg.Corpus, corpora)
		if err != nil {
			slog.Warn("training corpus unavailable", "error", err)
			return &ml.ForestEstimator{}, nil
		}

		est, err := ml.TrainForest(ctx, corpus, cfg.Forest)
		if err != nil {
			slog.Warn("forest training failed", "corpus", corpus.Key(), "error", err)
			return &ml.ForestEstimator{}, nil
		}
		return est, nil

	default:
		return nil, fmt.Errorf("unsupported estimator: %s", cfg.Estimator)
	}
}

// loadCorpus returns the stored corpus for cfg, generating and saving it on
// first use. Without a repository the corpus is regenerated every time; the
// seed keeps it identical.
func loadCorpus(ctx context.Context, cfg domain.CorpusConfig, corpora domain.CorpusRepository) (*domain.TrainingCorpus, error) {
	cfg = ml.NormalizeCorpusConfig(cfg)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if corpora == nil {
		return ml.GenerateCorpus(cfg), nil
	}

	key := domain.CorpusKey(cfg.Seed, cfg.Size, cfg.LegitFraction)
	corpus, err := corpora.GetCorpus(ctx, key)
	if err == nil {
		slog.Debug("training corpus loaded", "corpus", key, "samples", len(corpus.Features))
		return corpus, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to load corpus %s: %w", key, err)
	}

	corpus = ml.GenerateCorpus(cfg)
	if err := corpora.SaveCorpus(ctx, corpus); err != nil {
		slog.Warn("failed to save training corpus", "corpus", key, "error", err)
	} else {
		slog.Info("training corpus generated", "corpus", key, "samples", len(corpus.Features))
	}
	return corpus, nil
}
