package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/audience-engine/internal/audience"
	"github.com/ignite/audience-engine/internal/auth"
	"github.com/ignite/audience-engine/internal/telemetry"
)

// AudienceAPI handles live estimation and campaign audience
// resolution.
type AudienceAPI struct {
	estimator  *audience.Estimator
	resolver   *audience.Resolver
	aggregator *audience.Aggregator
}

// RegisterRoutes mounts audience routes on the given router.
func (api *AudienceAPI) RegisterRoutes(r chi.Router) {
	r.Post("/estimate", api.Estimate)
	r.Route("/audience", func(r chi.Router) {
		r.Post("/resolve", api.ResolveAudience)
		r.Get("/segments/{segmentID}", api.ResolveSegment)
	})
}

// EstimateRequest carries an unsaved condition list from the authoring
// UI.
type EstimateRequest struct {
	Conditions []audience.Condition `json:"conditions"`
}

// Estimate returns the live reach count for a condition list. Store
// failures still produce a zero-count body alongside the error status
// so the UI can render "0" with an inline notice.
func (api *AudienceAPI) Estimate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.TenantID(ctx)

	var req EstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ensureConditionIDs(req.Conditions)

	result, err := api.estimator.Estimate(ctx, tenantID, req.Conditions)
	if err != nil {
		telemetry.EstimatesTotal.WithLabelValues("error").Inc()
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"count": 0,
			"error": err.Error(),
		})
		return
	}
	telemetry.EstimatesTotal.WithLabelValues("ok").Inc()
	if len(result.Skipped) > 0 {
		telemetry.SkippedConditions.Add(float64(len(result.Skipped)))
	}
	respondJSON(w, http.StatusOK, result)
}

// ResolveAudienceRequest names the campaign's target segments.
type ResolveAudienceRequest struct {
	SegmentIDs []uuid.UUID `json:"segment_ids"`
}

// ResolveAudience resolves and deduplicates a campaign's audience.
// Called by the send pipeline immediately before dispatch; an error
// response means the send must not proceed, while an empty result is
// legitimate zero reach.
func (api *AudienceAPI) ResolveAudience(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.TenantID(ctx)

	var req ResolveAudienceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := api.aggregator.AggregateForCampaign(ctx, tenantID, req.SegmentIDs)
	if err != nil {
		telemetry.AggregationsTotal.WithLabelValues("error").Inc()
		respondDomainError(w, err)
		return
	}
	telemetry.AggregationsTotal.WithLabelValues("ok").Inc()
	respondJSON(w, http.StatusOK, result)
}

// ResolveSegment resolves a single segment to its current members,
// mainly for debugging and segment detail screens.
func (api *AudienceAPI) ResolveSegment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.TenantID(ctx)

	segmentID, err := uuid.Parse(chi.URLParam(r, "segmentID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid segment id")
		return
	}

	result, err := api.resolver.Resolve(ctx, tenantID, segmentID)
	if err != nil {
		telemetry.ResolutionsTotal.WithLabelValues("error").Inc()
		respondDomainError(w, err)
		return
	}
	telemetry.ResolutionsTotal.WithLabelValues("ok").Inc()
	respondJSON(w, http.StatusOK, result)
}
