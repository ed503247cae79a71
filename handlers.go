package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type creds struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return false
	}
	return true
}

func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var c creds
	if !decodeBody(w, r, &c) {
		return
	}
	if c.Email == "" || c.Password == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Email and password are required")
		return
	}
	user, err := a.svc.Register(c.Email, c.Password)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			writeError(w, http.StatusBadRequest, "DUPLICATE_EMAIL", "Email already registered")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Registration failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":    user.ID,
		"email": user.Email,
	})
}

func (a *App) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Token is required")
		return
	}
	msg, err := a.svc.VerifyEmail(token)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (a *App) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if in.Email == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Email is required")
		return
	}
	msg, err := a.svc.ResendVerification(in.Email)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var c creds
	if !decodeBody(w, r, &c) {
		return
	}
	pair, err := a.svc.Login(c.Email, c.Password)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (a *App) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if in.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Refresh token is required")
		return
	}
	access, err := a.svc.RefreshAccessToken(in.RefreshToken)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": access,
		"token_type":   "bearer",
	})
}

func (a *App) HandleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if in.Email == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Email is required")
		return
	}
	msg, err := a.svc.RequestPasswordReset(in.Email)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (a *App) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if in.Token == "" || in.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Token and new password are required")
		return
	}
	msg, err := a.svc.CompletePasswordReset(in.Token, in.NewPassword)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// HandleProtected is an example route requiring a valid access token; the
// RequireAccessToken middleware has already authenticated the caller.
func (a *App) HandleProtected(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Welcome user %d!", userID),
	})
}

// writeServiceError maps the service error taxonomy onto HTTP responses.
// Anything outside the taxonomy is a store/infrastructure failure.
func (a *App) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrCooldownActive):
		writeError(w, http.StatusTooManyRequests, "COOLDOWN_ACTIVE", "Please wait before requesting this again")
	case errors.Is(err, ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
	case errors.Is(err, ErrEmailNotVerified):
		writeError(w, http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Email is not verified")
	case errors.Is(err, ErrInvalidOrExpiredToken):
		writeError(w, http.StatusBadRequest, "INVALID_OR_EXPIRED_TOKEN", "Invalid or expired token")
	case errors.Is(err, ErrInvalidRefreshToken):
		writeError(w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Invalid refresh token")
	case errors.Is(err, ErrUserNotFound):
		writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
