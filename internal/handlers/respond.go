// Package handlers exposes the read-only JSON API over chi.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/your-org/contentd/internal/domain"
)

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, logger *zap.Logger, status int, data interface{}, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, logger *zap.Logger, status int, message, requestID string) {
	respondJSON(w, logger, status, map[string]string{
		"error":      message,
		"request_id": requestID,
	}, requestID)
}

// respondDomainError maps the error kinds of the query pipeline onto HTTP
// statuses. NotFound and Forbidden must never collapse into each other; a
// structural failure is the server's fault, not the client's.
func respondDomainError(w http.ResponseWriter, logger *zap.Logger, err error, requestID string) {
	var structural *domain.StructuralError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, logger, http.StatusNotFound, "not found", requestID)
	case errors.Is(err, domain.ErrForbidden):
		respondError(w, logger, http.StatusForbidden, "forbidden", requestID)
	case errors.As(err, &structural):
		respondError(w, logger, http.StatusInternalServerError, "content tree integrity failure", requestID)
	default:
		respondError(w, logger, http.StatusInternalServerError, "internal error", requestID)
	}
}
