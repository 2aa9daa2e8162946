package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rx/pkg/apperrors"
)

// MessageResponse is the body of successful deletes and the liveness probe.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrValidation, apperrors.ErrUnreadableImage:
		return http.StatusBadRequest
	case apperrors.ErrUpstream, apperrors.ErrMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError answers a failed service call. Client errors carry the
// service's message; server errors log the cause and answer with fallback so
// driver and provider details stay out of responses.
func writeServiceError(w http.ResponseWriter, err error, notFound, fallback string, logger *zap.Logger) {
	status := StatusFor(err)

	message := fallback
	switch apperrors.KindOf(err) {
	case apperrors.ErrValidation, apperrors.ErrUnreadableImage, apperrors.ErrInvalidAnalysis:
		message = apperrors.Message(err)
	case apperrors.ErrNotFound:
		message = notFound
		if message == "" {
			message = apperrors.Message(err)
		}
	default:
		logger.Error("Request failed", zap.String("error_code", apperrors.Code(err)), zap.Error(err))
	}

	if err := ErrorResponse(w, status, apperrors.Code(err), message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// writeJSON writes data and logs an encoding failure.
func writeJSON(w http.ResponseWriter, status int, data any, logger *zap.Logger) {
	if err := WriteJSON(w, status, data); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

// writeError writes an error response and logs an encoding failure.
func writeError(w http.ResponseWriter, status int, code, message string, logger *zap.Logger) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
