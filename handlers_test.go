package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

type handlerFixture struct {
	router *mux.Router
	*serviceFixture
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := newServiceFixture(t)
	app := &App{
		svc:         f.svc,
		tokens:      f.engine,
		rateLimiter: NewRateLimiter(100),
	}
	return &handlerFixture{router: app.routes(f.store), serviceFixture: f}
}

func (h *handlerFixture) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func TestHandleRegister(t *testing.T) {
	h := newHandlerFixture(t)

	rec := h.do(t, "POST", "/register", map[string]string{"email": "a@x.com", "password": "pw1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotZero(t, out.ID)
	require.Equal(t, "a@x.com", out.Email)

	rec = h.do(t, "POST", "/register", map[string]string{"email": "a@x.com", "password": "pw2"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "DUPLICATE_EMAIL", decodeError(t, rec).Code)
}

func TestHandleRegisterRejectsMissingFields(t *testing.T) {
	h := newHandlerFixture(t)
	rec := h.do(t, "POST", "/register", map[string]string{"email": "a@x.com"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "INVALID_REQUEST", decodeError(t, rec).Code)
}

func TestHandleVerifyEmail(t *testing.T) {
	h := newHandlerFixture(t)
	h.do(t, "POST", "/register", map[string]string{"email": "a@x.com", "password": "pw1"}, nil)

	token, err := h.engine.MintEmailVerification("a@x.com")
	require.NoError(t, err)

	rec := h.do(t, "GET", "/verify-email?token="+token, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, "GET", "/verify-email?token=garbage", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "INVALID_OR_EXPIRED_TOKEN", decodeError(t, rec).Code)

	ghost, err := h.engine.MintEmailVerification("ghost@x.com")
	require.NoError(t, err)
	rec = h.do(t, "GET", "/verify-email?token="+ghost, nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "USER_NOT_FOUND", decodeError(t, rec).Code)
}

func TestHandleLoginStatusCodes(t *testing.T) {
	h := newHandlerFixture(t)
	h.do(t, "POST", "/register", map[string]string{"email": "a@x.com", "password": "pw1"}, nil)

	rec := h.do(t, "POST", "/login", map[string]string{"email": "a@x.com", "password": "pw1"}, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "EMAIL_NOT_VERIFIED", decodeError(t, rec).Code)

	verifyUser(t, h.serviceFixture, "a@x.com")

	rec = h.do(t, "POST", "/login", map[string]string{"email": "a@x.com", "password": "wrong"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "INVALID_CREDENTIALS", decodeError(t, rec).Code)

	rec = h.do(t, "POST", "/login", map[string]string{"email": "a@x.com", "password": "pw1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var pair TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "bearer", pair.TokenType)
}

func TestHandleRefresh(t *testing.T) {
	h := newHandlerFixture(t)
	h.do(t, "POST", "/register", map[string]string{"email": "a@x.com", "password": "pw1"}, nil)
	verifyUser(t, h.serviceFixture, "a@x.com")

	rec := h.do(t, "POST", "/login", map[string]string{"email": "a@x.com", "password": "pw1"}, nil)
	var pair TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))

	rec = h.do(t, "POST", "/refresh", map[string]string{"refresh_token": pair.RefreshToken}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.AccessToken)
	require.Equal(t, "bearer", out.TokenType)

	rec = h.do(t, "POST", "/refresh", map[string]string{"refresh_token": "garbage"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "INVALID_REFRESH_TOKEN", decodeError(t, rec).Code)
}

func TestHandlePasswordResetFlow(t *testing.T) {
	h := newHandlerFixture(t)
	h.do(t, "POST", "/register", map[string]string{"email": "a@x.com", "password": "pw1"}, nil)
	verifyUser(t, h.serviceFixture, "a@x.com")

	rec := h.do(t, "POST", "/request-password-reset", map[string]string{"email": "a@x.com"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, "POST", "/request-password-reset", map[string]string{"email": "a@x.com"}, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "COOLDOWN_ACTIVE", decodeError(t, rec).Code)

	token, err := h.engine.MintPasswordReset("a@x.com")
	require.NoError(t, err)
	rec = h.do(t, "POST", "/reset-password", map[string]string{"token": token, "new_password": "pw2"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, "POST", "/login", map[string]string{"email": "a@x.com", "password": "pw2"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleResendVerificationCooldown(t *testing.T) {
	h := newHandlerFixture(t)
	h.do(t, "POST", "/register", map[string]string{"email": "a@x.com", "password": "pw1"}, nil)

	rec := h.do(t, "POST", "/resend-verification-email", map[string]string{"email": "a@x.com"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, "POST", "/resend-verification-email", map[string]string{"email": "a@x.com"}, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHandleProtected(t *testing.T) {
	h := newHandlerFixture(t)
	h.do(t, "POST", "/register", map[string]string{"email": "a@x.com", "password": "pw1"}, nil)
	verifyUser(t, h.serviceFixture, "a@x.com")

	rec := h.do(t, "GET", "/protected", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, "GET", "/protected", nil, map[string]string{"Authorization": "Token abc"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, "GET", "/protected", nil, map[string]string{"Authorization": "Bearer garbage"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	login := h.do(t, "POST", "/login", map[string]string{"email": "a@x.com", "password": "pw1"}, nil)
	var pair TokenPair
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &pair))

	rec = h.do(t, "GET", "/protected", nil, map[string]string{"Authorization": "Bearer " + pair.AccessToken})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Welcome user")

	// an access token minted before a password reset stops working
	backdateReset(t, h.store, "a@x.com")
	login = h.do(t, "POST", "/login", map[string]string{"email": "a@x.com", "password": "pw1"}, nil)
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &pair))

	resetToken, err := h.engine.MintPasswordReset("a@x.com")
	require.NoError(t, err)
	rec = h.do(t, "POST", "/reset-password", map[string]string{"token": resetToken, "new_password": "pw2"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, "GET", "/protected", nil, map[string]string{"Authorization": "Bearer " + pair.AccessToken})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	h := newHandlerFixture(t)

	rec := h.do(t, "GET", "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, "GET", "/ready", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "true")
}

func TestRequestIDHeaderSet(t *testing.T) {
	h := newHandlerFixture(t)
	rec := h.do(t, "GET", "/health", nil, nil)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
