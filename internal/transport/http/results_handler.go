package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "grantlens/internal/errors"
	"grantlens/internal/store"
	"grantlens/pkg/contracts"
)

// ResultsHandler serves the published output tables.
type ResultsHandler struct {
	store        *store.Store
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewResultsHandler creates a results handler over the given store.
func NewResultsHandler(st *store.Store, logger *slog.Logger) *ResultsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultsHandler{
		store:        st,
		logger:       logger,
		errorHandler: apierrors.NewErrorHandler(logger),
	}
}

// RegisterRoutes registers the results API routes.
func (h *ResultsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/run", h.RunManifest)
	r.Get("/impact", h.ImpactRanking)
	r.Get("/impact/by-classification", h.ImpactByClassification)
	r.Get("/quality", h.QualityScores)
	r.Get("/quality/tiers", h.QualityTiers)
	r.Get("/metrics", h.AggregateMetrics)
	r.Get("/anomalies", h.Anomalies)
	r.Get("/anomalies/summary", h.AnomalySummary)
}

// Health reports server liveness and whether a run has been published.
func (h *ResultsHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":    "ok",
		"version":   contracts.Version,
		"published": true,
	}

	if _, err := h.store.LatestManifest(r.Context()); err != nil {
		if !errors.Is(err, store.ErrNoPublishedRun) {
			h.respondErr(w, r, err)
			return
		}
		response["published"] = false
	}

	render.JSON(w, r, response)
}

// RunManifest returns provenance for the last published run.
func (h *ResultsHandler) RunManifest(w http.ResponseWriter, r *http.Request) {
	manifest, err := h.store.LatestManifest(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	render.JSON(w, r, manifest)
}

// ImpactRanking returns the ranked impact table, best first. An optional
// limit query parameter caps the row count.
func (h *ResultsHandler) ImpactRanking(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.errorHandler.HandleError(w, r, apierrors.ErrInvalidParam)
			return
		}
		limit = parsed
	}

	ranking, err := h.store.ImpactRanking(r.Context(), limit)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	render.JSON(w, r, ranking)
}

// ImpactByClassification returns per-classification impact summaries.
func (h *ResultsHandler) ImpactByClassification(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.ImpactByClassification(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	render.JSON(w, r, summaries)
}

// QualityScores returns the published quality table.
func (h *ResultsHandler) QualityScores(w http.ResponseWriter, r *http.Request) {
	scores, err := h.store.QualityScores(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	render.JSON(w, r, scores)
}

// QualityTiers returns the per-tier quality overview.
func (h *ResultsHandler) QualityTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.store.QualityTierOverview(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	render.JSON(w, r, tiers)
}

// AggregateMetrics returns the published per-nonprofit metrics table.
func (h *ResultsHandler) AggregateMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.store.Metrics(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	render.JSON(w, r, metrics)
}

// Anomalies returns the published anomaly flags.
func (h *ResultsHandler) Anomalies(w http.ResponseWriter, r *http.Request) {
	flags, err := h.store.Anomalies(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	render.JSON(w, r, flags)
}

// AnomalySummary returns per-metric/severity anomaly counts.
func (h *ResultsHandler) AnomalySummary(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.AnomalySummary(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	render.JSON(w, r, summaries)
}

// respondErr maps store errors onto API errors.
func (h *ResultsHandler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNoPublishedRun) {
		h.errorHandler.HandleError(w, r, apierrors.ErrNoPublishedRun)
		return
	}
	h.errorHandler.HandleError(w, r, apierrors.ErrStoreQuery)
}
