package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/analyzer"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// maxBodyBytes bounds request bodies on the scoring endpoints.
const maxBodyBytes = 1 << 20

// RebuildFunc builds a fresh analyzer from the current configuration.
type RebuildFunc func(ctx context.Context) (*analyzer.Analyzer, error)

// Handler holds dependencies for API handlers.
type Handler struct {
	analyzers *analyzer.Holder
	rebuild   RebuildFunc
	corpora   domain.CorpusRepository
	cache     domain.Cache
	bus       domain.EventBus
	worker    *worker.Worker
	version   string

	reloadMu sync.Mutex
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		analyzers: deps.Analyzers,
		rebuild:   deps.Rebuild,
		corpora:   deps.Corpora,
		cache:     deps.Cache,
		bus:       deps.Bus,
		worker:    deps.Worker,
		version:   deps.Version,
	}
}

// AnalyzeRequest is the request body for POST /analyze-profile. Pointer
// fields distinguish a missing field from a zero value.
type AnalyzeRequest struct {
	AccountAgeDays   *int     `json:"account_age_days"`
	Followers        *int     `json:"followers"`
	Following        *int     `json:"following"`
	PostCount        *int     `json:"post_count"`
	ProfileCompleted *bool    `json:"profile_completed"`
	Messages         []string `json:"messages"`
}

// Profile converts the request, reporting the first missing field.
func (req *AnalyzeRequest) Profile() (*domain.ProfileInput, error) {
	switch {
	case req.AccountAgeDays == nil:
		return nil, &domain.ValidationError{Field: "account_age_days", Reason: "is required"}
	case req.Followers == nil:
		return nil, &domain.ValidationError{Field: "followers", Reason: "is required"}
	case req.Following == nil:
		return nil, &domain.ValidationError{Field: "following", Reason: "is required"}
	case req.PostCount == nil:
		return nil, &domain.ValidationError{Field: "post_count", Reason: "is required"}
	case req.ProfileCompleted == nil:
		return nil, &domain.ValidationError{Field: "profile_completed", Reason: "is required"}
	case req.Messages == nil:
		return nil, &domain.ValidationError{Field: "messages", Reason: "is required"}
	}

	return &domain.ProfileInput{
		AccountAgeDays:   *req.AccountAgeDays,
		Followers:        *req.Followers,
		Following:        *req.Following,
		PostCount:        *req.PostCount,
		ProfileCompleted: *req.ProfileCompleted,
		Messages:         req.Messages,
	}, nil
}

// Root handles GET /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Suspicious Profile Analyzer API",
		"status":  "operational",
		"version": h.version,
	})
}

// AnalyzeProfile handles POST /analyze-profile.
func (h *Handler) AnalyzeProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	profile, ok := decodeProfile(w, r)
	if !ok {
		return
	}

	slog.Debug("analyzing profile",
		"account_age_days", profile.AccountAgeDays,
		"followers", profile.Followers,
		"request_id", GetRequestID(ctx),
	)

	assessment, err := h.analyzers.Assess(ctx, profile)
	if err != nil {
		writeAssessError(w, err)
		return
	}

	slog.Info("threat assessment complete",
		"risk_level", assessment.RiskLevel,
		"risk_score", assessment.RiskScore,
		"request_id", GetRequestID(ctx),
	)

	writeJSON(w, http.StatusOK, assessment)
}

// AnalyzeProfileAsync handles POST /analyze-profile/async. The profile is
// validated up front so obviously bad input never reaches the bus.
func (h *Handler) AnalyzeProfileAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}

	profile, ok := decodeProfile(w, r)
	if !ok {
		return
	}
	if err := profile.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub := domain.Submission{ID: uuid.New().String(), Profile: *profile}
	payload, err := json.Marshal(sub)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode submission")
		return
	}

	if err := h.bus.Publish(ctx, domain.TopicProfileSubmitted, payload); err != nil {
		if errors.Is(err, bus.ErrNotQueued) {
			slog.Warn("submission rejected, no worker capacity", "submission_id", sub.ID)
			writeError(w, http.StatusServiceUnavailable, "no worker available, retry later")
			return
		}
		slog.Error("failed to publish submission", "submission_id", sub.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to queue submission")
		return
	}

	slog.Info("profile queued", "submission_id", sub.ID, "request_id", GetRequestID(ctx))
	writeJSON(w, http.StatusAccepted, map[string]string{
		"submission_id": sub.ID,
		"status":        "queued",
	})
}

// GetSubmission handles GET /analyze-profile/async/{id}.
func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "submission id is required")
		return
	}
	if h.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "result store not available")
		return
	}

	var result domain.SubmissionResult
	found, err := cache.GetJSON(r.Context(), h.cache, worker.ResultNamespace, id, &result)
	if err != nil {
		slog.Error("failed to load submission result", "submission_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load submission result")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "submission not found or still pending")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// DemoData handles GET /demo-data.
func (h *Handler) DemoData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Demo())
}

// Model handles GET /model.
func (h *Handler) Model(w http.ResponseWriter, r *http.Request) {
	a := h.analyzers.Load()
	if a == nil {
		writeError(w, http.StatusServiceUnavailable, analyzer.ErrNotReady.Error())
		return
	}
	writeJSON(w, http.StatusOK, a.Info())
}

// Reload handles POST /reload. It rebuilds the analyzer and swaps it in;
// requests already running finish on the old one.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.rebuild == nil {
		writeError(w, http.StatusServiceUnavailable, "reload not configured")
		return
	}

	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	// A client disconnect must not leave a half-trained estimator behind.
	next, err := h.rebuild(context.WithoutCancel(r.Context()))
	if err != nil {
		slog.Error("analyzer reload failed", "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("reload failed: %v", err))
		return
	}

	if cur := h.analyzers.Load(); cur != nil && cur.Info().Estimator.Ready && !next.Info().Estimator.Ready {
		slog.Error("analyzer reload rejected, estimator not ready",
			"estimator", next.Info().Estimator.Name,
		)
		writeError(w, http.StatusInternalServerError, "reload failed: estimator not ready, keeping current analyzer")
		return
	}
	h.analyzers.Swap(next)

	info := next.Info()
	slog.Info("analyzer reloaded",
		"estimator", info.Estimator.Name,
		"estimator_ready", info.Estimator.Ready,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "analyzer reloaded",
		"model":   info,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	components := map[string]string{}

	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			status = "degraded"
			components[name] = err.Error()
			return
		}
		components[name] = "ok"
	}

	if h.corpora != nil {
		check("repository", h.corpora.Ping)
	}
	if h.cache != nil {
		check("cache", h.cache.Ping)
	}
	if h.bus != nil {
		check("bus", h.bus.Ping)
	}

	if a := h.analyzers.Load(); a != nil {
		est := a.Info().Estimator
		components["estimator"] = est.Name
		if !est.Ready {
			status = "degraded"
			components["estimator"] = est.Name + " (not trained)"
		}
	}

	resp := map[string]any{
		"status":     status,
		"version":    h.version,
		"components": components,
	}
	if h.worker != nil {
		resp["worker"] = h.worker.GetStats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.analyzers.Load() == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

// decodeProfile reads an AnalyzeRequest and writes a 400 on failure.
func decodeProfile(w http.ResponseWriter, r *http.Request) (*domain.ProfileInput, bool) {
	var req AnalyzeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "No profile data provided")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return nil, false
	}

	profile, err := req.Profile()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return profile, true
}

// writeAssessError maps analyzer errors onto HTTP statuses.
func writeAssessError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, analyzer.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error("analysis failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Analysis failed: "+err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
