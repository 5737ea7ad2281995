package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/zatekoja/shopdiscovery/pkg/errors"
)

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// respondWithAppError maps an error's resilience kind to an HTTP status.
func respondWithAppError(w http.ResponseWriter, err error) {
	switch apperrors.Classify(err) {
	case apperrors.KindValidation:
		message := err.Error()
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			message = appErr.Message
		}
		respondWithError(w, http.StatusBadRequest, message)
	case apperrors.KindAuth:
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
	case apperrors.KindNotFound, apperrors.KindCircuitOpen, apperrors.KindTransient:
		// Search never reports a miss as not found; it only surfaces when the
		// store failed and no snapshot exists.
		respondWithError(w, http.StatusServiceUnavailable, "search temporarily unavailable")
	default:
		respondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}
