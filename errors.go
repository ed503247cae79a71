package main

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Error taxonomy handled at the handler boundary. Nothing below the
// handlers writes an HTTP status.
var (
	ErrDuplicateEmail        = errors.New("email already registered")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrEmailNotVerified      = errors.New("email not verified")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrInvalidRefreshToken   = errors.New("invalid refresh token")
	ErrUserNotFound          = errors.New("user not found")
	ErrCooldownActive        = errors.New("cooldown active")
)

// APIError represents a structured API error response
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
	Details string `json:"details,omitempty"`
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{
		Code:    code,
		Message: message,
	})
}
