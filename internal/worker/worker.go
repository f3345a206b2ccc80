// Package worker assesses profiles submitted through the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/observability"
	"github.com/opensource-finance/kestrel/internal/scorer"
)

// ResultNamespace is the cache namespace holding async results by submission ID.
const ResultNamespace = "submissions"

// Assessor scores a single profile.
type Assessor interface {
	Assess(ctx context.Context, p *domain.ProfileInput) (*domain.RiskAssessment, error)
}

// Worker consumes TopicProfileSubmitted and publishes assessments.
type Worker struct {
	bus      domain.EventBus
	assessor Assessor
	results  domain.Cache
	metrics  *observability.Metrics
	cfg      domain.WorkerConfig

	sem           chan struct{}
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
	mu            sync.Mutex
	stopped       bool

	processed atomic.Int64
	failed    atomic.Int64
	alerts    atomic.Int64
}

// NewWorker creates a new async worker. results and metrics may be nil.
func NewWorker(bus domain.EventBus, assessor Assessor, results domain.Cache, metrics *observability.Metrics, cfg domain.WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		assessor: assessor,
		results:  results,
		metrics:  metrics,
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.Concurrency),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to profile submissions.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicProfileSubmitted, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", domain.TopicProfileSubmitted, err)
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("worker started",
		"topic", domain.TopicProfileSubmitted,
		"concurrency", w.cfg.Concurrency,
	)
	return nil
}

// ErrStopped is returned for submissions that arrive while the worker stops.
var ErrStopped = errors.New("worker stopped")

// handleMessage hands the submission to a bounded pool of goroutines. Once
// accepted, a submission runs to completion even if the subscription that
// delivered it is cancelled.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		<-w.sem
		return ErrStopped
	}
	w.wg.Add(1)
	w.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer func() {
			<-w.sem
			w.wg.Done()
		}()
		if err := w.process(ctx, msg); err != nil {
			slog.Error("submission failed",
				"message_id", msg.ID,
				"error", err,
			)
		}
	}()
	return nil
}

// process assesses one submission and fans the result out.
func (w *Worker) process(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var sub domain.Submission
	if err := json.Unmarshal(msg.Payload, &sub); err != nil {
		w.failed.Add(1)
		w.metrics.WorkerResult("invalid")
		w.reply(ctx, msg, domain.SubmissionResult{Error: "invalid submission: " + err.Error()})
		return fmt.Errorf("failed to parse submission: %w", err)
	}
	if sub.ID == "" {
		sub.ID = msg.ID
	}

	slog.Debug("processing submission", "submission_id", sub.ID)

	result := domain.SubmissionResult{ID: sub.ID}
	assessment, err := w.assessor.Assess(ctx, &sub.Profile)
	if err != nil {
		w.failed.Add(1)
		result.Error = err.Error()

		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			w.metrics.WorkerResult("invalid")
		} else {
			w.metrics.WorkerResult("failed")
		}
	} else {
		w.processed.Add(1)
		w.metrics.WorkerResult("assessed")
		result.Assessment = assessment
	}

	if w.results != nil {
		if err := cache.SetJSON(ctx, w.results, ResultNamespace, sub.ID, result, w.cfg.ResultTTL); err != nil {
			slog.Warn("failed to store submission result",
				"submission_id", sub.ID,
				"error", err,
			)
		}
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := w.bus.Publish(ctx, domain.TopicProfileAssessed, payload); err != nil {
		slog.Error("failed to publish assessment",
			"submission_id", sub.ID,
			"error", err,
		)
	}

	if scorer.ShouldAlert(assessment) {
		w.alerts.Add(1)
		if err := w.bus.Publish(ctx, domain.TopicProfileAlert, payload); err != nil {
			slog.Error("failed to publish alert",
				"submission_id", sub.ID,
				"error", err,
			)
		}
	}

	if msg.ReplyTo != "" {
		if err := w.bus.Reply(ctx, msg, payload); err != nil {
			slog.Error("failed to reply",
				"submission_id", sub.ID,
				"error", err,
			)
		}
	}

	attrs := []any{
		"submission_id", sub.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if assessment != nil {
		attrs = append(attrs, "risk_score", assessment.RiskScore, "risk_level", assessment.RiskLevel)
	} else {
		attrs = append(attrs, "error", result.Error)
	}
	slog.Info("submission processed", attrs...)

	return nil
}

// reply answers a request whose payload could not be decoded.
func (w *Worker) reply(ctx context.Context, msg *domain.Message, result domain.SubmissionResult) {
	if msg.ReplyTo == "" {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	_ = w.bus.Reply(ctx, msg, payload)
}

// Stop unsubscribes, waits for in-flight submissions to finish, then
// releases the worker context.
func (w *Worker) Stop() error {
	w.mu.Lock()
	w.stopped = true
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	w.mu.Unlock()

	w.wg.Wait()
	w.cancel()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
	Alerts            int64    `json:"alerts"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	w.mu.Unlock()

	return Stats{
		SubscriptionCount: len(topics),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
		Alerts:            w.alerts.Load(),
	}
}
