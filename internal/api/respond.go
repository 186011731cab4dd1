package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/Proton-105/teller/internal/errors"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func statusFor(err *apperrors.AppError) int {
	switch err.Code {
	case apperrors.CodeValidation:
		return http.StatusBadRequest
	case apperrors.CodeStorage, apperrors.CodeVault:
		return http.StatusServiceUnavailable
	case apperrors.CodeBusy:
		return http.StatusConflict
	case apperrors.CodeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
