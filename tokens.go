package main

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Internal verification taxonomy. Handlers collapse these to a single
// unauthorized-style response; tests distinguish them.
var (
	ErrTokenExpired       = errors.New("token expired")
	ErrBadSignature       = errors.New("token signature invalid")
	ErrMalformedToken     = errors.New("token payload malformed")
	ErrSubjectNotFound    = errors.New("token subject not found")
	ErrStalePasswordReset = errors.New("token stale after password reset")
)

// SessionClaims is the claim set shared by access and refresh tokens.
// LastPasswordReset is the RFC3339Nano form of the user's stored timestamp;
// a mismatch beyond the tolerance rejects the token.
type SessionClaims struct {
	UserID            int64  `json:"user_id"`
	LastPasswordReset string `json:"last_password_reset"`
	jwt.RegisteredClaims
}

// resetTolerance absorbs timestamp precision loss between the claim string
// and the value round-tripped through the store.
const resetTolerance = time.Second

// TokenEngine mints and verifies the four token classes over a single
// HS256 secret. Access and refresh tokens are additionally checked against
// the credential store; verification and reset tokens are decode-only.
type TokenEngine struct {
	secret []byte
	users  Store

	accessTTL  time.Duration
	refreshTTL time.Duration
	verifyTTL  time.Duration
	resetTTL   time.Duration

	now func() time.Time
}

func NewTokenEngine(secret []byte, users Store, accessTTL, refreshTTL, verifyTTL, resetTTL time.Duration) (*TokenEngine, error) {
	if len(secret) == 0 {
		return nil, errors.New("token engine: signing secret is required")
	}
	if accessTTL <= 0 {
		accessTTL = 30 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	if verifyTTL <= 0 {
		verifyTTL = time.Hour
	}
	if resetTTL <= 0 {
		resetTTL = 15 * time.Minute
	}
	return &TokenEngine{
		secret:     secret,
		users:      users,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		verifyTTL:  verifyTTL,
		resetTTL:   resetTTL,
		now:        time.Now,
	}, nil
}

func (e *TokenEngine) MintAccess(u *User) (string, error) {
	return e.mintSession(u, e.accessTTL)
}

func (e *TokenEngine) MintRefresh(u *User) (string, error) {
	return e.mintSession(u, e.refreshTTL)
}

func (e *TokenEngine) mintSession(u *User, ttl time.Duration) (string, error) {
	claims := SessionClaims{
		UserID:            u.ID,
		LastPasswordReset: u.LastPasswordReset.UTC().Format(time.RFC3339Nano),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(e.now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.secret)
}

// MintEmailVerification issues a decode-only token whose subject is the
// email address to verify.
func (e *TokenEngine) MintEmailVerification(email Identity) (string, error) {
	return e.mintSubject(email, e.verifyTTL)
}

// MintPasswordReset issues a decode-only token authorizing a password reset
// for the subject email.
func (e *TokenEngine) MintPasswordReset(email Identity) (string, error) {
	return e.mintSubject(email, e.resetTTL)
}

func (e *TokenEngine) mintSubject(email Identity, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   email.String(),
		ExpiresAt: jwt.NewNumericDate(e.now().Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.secret)
}

// VerifySession decodes an access or refresh token, re-fetches the subject
// user and compares the embedded last_password_reset against the stored
// value. Returns the live user record alongside the claims.
func (e *TokenEngine) VerifySession(tokenString string) (*SessionClaims, *User, error) {
	claims := &SessionClaims{}
	if err := e.parse(tokenString, claims); err != nil {
		return nil, nil, err
	}
	if claims.UserID == 0 || claims.LastPasswordReset == "" {
		return nil, nil, ErrMalformedToken
	}

	u, err := e.users.GetUserByID(claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	if u == nil {
		return nil, nil, ErrSubjectNotFound
	}

	tokenReset, err := time.Parse(time.RFC3339Nano, claims.LastPasswordReset)
	if err != nil {
		return nil, nil, ErrMalformedToken
	}
	if d := tokenReset.Sub(u.LastPasswordReset); d > resetTolerance || d < -resetTolerance {
		return nil, nil, ErrStalePasswordReset
	}
	return claims, u, nil
}

// VerifySubject decodes an email-verification or password-reset token and
// returns its subject. No store state is consulted; the caller resolves
// the subject at consumption time.
func (e *TokenEngine) VerifySubject(tokenString string) (Identity, error) {
	claims := &jwt.RegisteredClaims{}
	if err := e.parse(tokenString, claims); err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", ErrMalformedToken
	}
	return Identity(claims.Subject), nil
}

func (e *TokenEngine) parse(tokenString string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return e.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(e.now),
		jwt.WithExpirationRequired(),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrBadSignature
	default:
		return ErrMalformedToken
	}
}
