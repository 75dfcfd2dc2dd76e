package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/ignite/audience-engine/internal/audience"
)

// respondJSON writes data as a JSON response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[API] failed to encode response: %v", err)
	}
}

// respondError writes a JSON error body.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps audience-layer failures to HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, audience.ErrSegmentNotFound):
		respondError(w, http.StatusNotFound, "segment not found")
	case errors.Is(err, audience.ErrStoreTimeout):
		respondError(w, http.StatusGatewayTimeout, "subscriber store timeout")
	case errors.Is(err, audience.ErrAggregationFailed):
		respondError(w, http.StatusBadGateway, "audience aggregation failed")
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
