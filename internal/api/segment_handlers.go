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

// SegmentAPI handles segment authoring endpoints.
type SegmentAPI struct {
	store     *audience.Store
	estimator *audience.Estimator
}

// RegisterRoutes mounts segment routes on the given router.
func (api *SegmentAPI) RegisterRoutes(r chi.Router) {
	r.Route("/segments", func(r chi.Router) {
		r.Get("/", api.ListSegments)
		r.Post("/", api.CreateSegment)
		r.Get("/categories", api.ListCategories)

		r.Route("/{segmentID}", func(r chi.Router) {
			r.Get("/", api.GetSegment)
			r.Put("/", api.UpdateSegment)
			r.Delete("/", api.DeleteSegment)
			r.Post("/estimate", api.EstimateSegment)
		})
	})
}

// CreateSegmentRequest is the request body for creating or updating
// a segment.
type CreateSegmentRequest struct {
	Name        string               `json:"name"`
	SegmentType audience.SegmentType `json:"segment_type,omitempty"`
	IsActive    bool                 `json:"is_active"`
	Conditions  []audience.Condition `json:"conditions"`
}

// ListSegments returns all segments for the tenant.
func (api *SegmentAPI) ListSegments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.TenantID(ctx)

	segments, err := api.store.ListSegments(ctx, tenantID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if segments == nil {
		segments = []*audience.Segment{}
	}
	respondJSON(w, http.StatusOK, segments)
}

// CreateSegment creates a new segment.
func (api *SegmentAPI) CreateSegment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.TenantID(ctx)

	var req CreateSegmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "segment name is required")
		return
	}
	if len(req.Conditions) == 0 {
		respondError(w, http.StatusBadRequest, "a segment requires at least one condition")
		return
	}
	ensureConditionIDs(req.Conditions)

	segment := &audience.Segment{
		TenantID:    tenantID,
		Name:        req.Name,
		SegmentType: req.SegmentType,
		IsActive:    req.IsActive,
		Conditions:  req.Conditions,
	}

	if err := api.store.CreateSegment(ctx, segment); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, segment)
}

// GetSegment returns a segment by id.
func (api *SegmentAPI) GetSegment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.TenantID(ctx)

	segmentID, err := uuid.Parse(chi.URLParam(r, "segmentID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid segment id")
		return
	}

	segment, err := api.store.GetSegment(ctx, tenantID, segmentID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if segment == nil {
		respondError(w, http.StatusNotFound, "segment not found")
		return
	}
	respondJSON(w, http.StatusOK, segment)
}

// UpdateSegment replaces a segment's name, flags and conditions.
func (api *SegmentAPI) UpdateSegment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.TenantID(ctx)

	segmentID, err := uuid.Parse(chi.URLParam(r, "segmentID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid segment id")
		return
	}

	var req CreateSegmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "segment name is required")
		return
	}
	if len(req.Conditions) == 0 {
		respondError(w, http.StatusBadRequest, "a segment requires at least one condition")
		return
	}
	ensureConditionIDs(req.Conditions)

	segment := &audience.Segment{
		ID:          segmentID,
		TenantID:    tenantID,
		Name:        req.Name,
		SegmentType: req.SegmentType,
		IsActive:    req.IsActive,
		Conditions:  req.Conditions,
	}

	if err := api.store.UpdateSegment(ctx, segment); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, segment)
}

// DeleteSegment soft-deletes a segment.
func (api *SegmentAPI) DeleteSegment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.TenantID(ctx)

	segmentID, err := uuid.Parse(chi.URLParam(r, "segmentID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid segment id")
		return
	}

	if err := api.store.DeleteSegment(ctx, tenantID, segmentID); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EstimateSegment refreshes and returns a persisted segment's reach.
func (api *SegmentAPI) EstimateSegment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.TenantID(ctx)

	segmentID, err := uuid.Parse(chi.URLParam(r, "segmentID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid segment id")
		return
	}

	result, err := api.estimator.EstimateSegment(ctx, tenantID, segmentID)
	if err != nil {
		telemetry.EstimatesTotal.WithLabelValues("error").Inc()
		respondDomainError(w, err)
		return
	}
	telemetry.EstimatesTotal.WithLabelValues("ok").Inc()
	respondJSON(w, http.StatusOK, result)
}

// ListCategories returns the supported condition categories so the
// authoring UI can populate its pickers.
func (api *SegmentAPI) ListCategories(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"categories": audience.SupportedCategories(),
	})
}

// ensureConditionIDs assigns ids to conditions created by the UI
// without one, so skip logs can always reference a condition.
func ensureConditionIDs(conditions []audience.Condition) {
	for i := range conditions {
		if conditions[i].ID == uuid.Nil {
			conditions[i].ID = uuid.New()
		}
	}
}
