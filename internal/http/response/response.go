// Package response writes the API's JSON envelope:
// success: {"success":true, ...}
// failure: {"success":false, "error":{"code":..., "message":...}}
package response

import (
	"encoding/json"
	"net/http"

	"github.com/vitalab/vitalab-backend/internal/domain"
	"github.com/vitalab/vitalab-backend/pkg/logger"
)

type errorBody struct {
	Code    domain.ErrorKind `json:"code"`
	Message string           `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// Success merges the payload into a success:true envelope.
func Success(w http.ResponseWriter, statusCode int, payload map[string]interface{}) {
	body := map[string]interface{}{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	writeJSON(w, statusCode, body)
}

// Error maps the domain error kind to an HTTP status and writes the
// failure envelope. The wrapped cause never reaches the wire.
func Error(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	writeJSON(w, statusFor(kind), map[string]interface{}{
		"success": false,
		"error":   errorBody{Code: kind, Message: domain.MessageOf(err)},
	})
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.ErrInvalidParams, domain.ErrCodeExpired, domain.ErrCodeInvalid:
		return http.StatusBadRequest
	case domain.ErrRateLimited:
		return http.StatusTooManyRequests
	case domain.ErrGatewayFailure:
		return http.StatusBadGateway
	case domain.ErrUnauthorized:
		return http.StatusUnauthorized
	case domain.ErrForbidden:
		return http.StatusForbidden
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
