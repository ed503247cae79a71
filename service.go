package main

import (
	"errors"
	"time"
)

// User-facing messages. The generic ones are deliberately identical for
// known and unknown emails so responses don't reveal account existence.
const (
	msgVerified         = "Email verified successfully."
	msgAlreadyVerified  = "Email is already verified."
	msgVerificationSent = "If an account exists for this email, a verification link has been sent."
	msgResetRequested   = "If an account exists for this email, a password reset link has been sent."
	msgPasswordReset    = "Password reset successful."
)

// Service orchestrates the account lifecycle: registration, verification,
// login, token refresh and password reset. All errors it returns belong to
// the taxonomy in errors.go; handlers translate them to HTTP codes.
type Service struct {
	store     Store
	tokens    *TokenEngine
	cooldowns *CooldownGuard
	mail      *MailDispatcher
	events    *EventRecorder

	frontendDomain string
	resendWindow   time.Duration
	resetWindow    time.Duration

	now func() time.Time
}

func NewService(store Store, tokens *TokenEngine, cooldowns *CooldownGuard, mail *MailDispatcher, events *EventRecorder, frontendDomain string, resendWindow, resetWindow time.Duration) *Service {
	if resendWindow <= 0 {
		resendWindow = 5 * time.Minute
	}
	if resetWindow <= 0 {
		resetWindow = time.Minute
	}
	return &Service{
		store:          store,
		tokens:         tokens,
		cooldowns:      cooldowns,
		mail:           mail,
		events:         events,
		frontendDomain: frontendDomain,
		resendWindow:   resendWindow,
		resetWindow:    resetWindow,
		now:            time.Now,
	}
}

// Register creates an unverified account and queues a verification email.
// A failed send never fails the registration.
func (s *Service) Register(email, password string) (*User, error) {
	hashed, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	u, err := s.store.CreateUser(email, hashed)
	if err != nil {
		return nil, err
	}
	s.sendVerificationEmail(Identity(u.Email))
	s.events.Record("user_registered", &u.ID, map[string]interface{}{"email": u.Email})
	return u, nil
}

func (s *Service) sendVerificationEmail(email Identity) {
	token, err := s.tokens.MintEmailVerification(email)
	if err != nil {
		return
	}
	body := renderEmail(verificationEmailTemplate, s.frontendDomain, token)
	s.mail.Enqueue(email.String(), "Verify Your Email", body)
}

// VerifyEmail consumes a verification token. Verifying an already verified
// account succeeds again with a distinct message; there is no transition
// back to unverified.
func (s *Service) VerifyEmail(token string) (string, error) {
	email, err := s.tokens.VerifySubject(token)
	if err != nil {
		return "", ErrInvalidOrExpiredToken
	}
	u, err := s.store.GetUserByEmail(email.String())
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", ErrUserNotFound
	}
	if u.IsVerified {
		return msgAlreadyVerified, nil
	}
	now := s.now().UTC()
	u.IsVerified = true
	u.VerifiedAt = &now
	if err := s.store.UpdateUser(u); err != nil {
		return "", err
	}
	s.events.Record("email_verified", &u.ID, nil)
	return msgVerified, nil
}

// ResendVerification re-sends the verification link, gated by a cooldown.
// Unknown emails get the same generic message as known ones.
func (s *Service) ResendVerification(email string) (string, error) {
	if err := s.cooldowns.Check(actionResendVerification, Identity(email), s.resendWindow); err != nil {
		return "", err
	}
	u, err := s.store.GetUserByEmail(email)
	if err != nil {
		return "", err
	}
	if u == nil {
		return msgVerificationSent, nil
	}
	if u.IsVerified {
		return msgAlreadyVerified, nil
	}
	s.sendVerificationEmail(Identity(u.Email))
	s.events.Record("verification_resent", &u.ID, nil)
	return msgVerificationSent, nil
}

// Login checks credentials and verification state, then mints an
// access/refresh pair carrying the user's current last_password_reset.
func (s *Service) Login(email, password string) (*TokenPair, error) {
	u, err := s.store.GetUserByEmail(email)
	if err != nil {
		return nil, err
	}
	// same failure for unknown email and wrong password
	if u == nil || !comparePassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !u.IsVerified {
		return nil, ErrEmailNotVerified
	}
	access, err := s.tokens.MintAccess(u)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.MintRefresh(u)
	if err != nil {
		return nil, err
	}
	s.events.Record("login", &u.ID, nil)
	return &TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}

// RefreshAccessToken verifies a refresh token and mints a fresh access
// token. The refresh token itself is not rotated or invalidated; it stays
// usable until it expires or a password reset advances
// last_password_reset.
func (s *Service) RefreshAccessToken(refreshToken string) (string, error) {
	_, u, err := s.tokens.VerifySession(refreshToken)
	if err != nil {
		if errors.Is(err, ErrSubjectNotFound) {
			return "", ErrUserNotFound
		}
		return "", ErrInvalidRefreshToken
	}
	return s.tokens.MintAccess(u)
}

// RequestPasswordReset queues a reset email when the account exists, gated
// by a cooldown. The response is identical either way.
func (s *Service) RequestPasswordReset(email string) (string, error) {
	if err := s.cooldowns.Check(actionPasswordReset, Identity(email), s.resetWindow); err != nil {
		return "", err
	}
	u, err := s.store.GetUserByEmail(email)
	if err != nil {
		return "", err
	}
	if u != nil {
		token, err := s.tokens.MintPasswordReset(Identity(u.Email))
		if err != nil {
			return "", err
		}
		body := renderEmail(resetEmailTemplate, s.frontendDomain, token)
		s.mail.Enqueue(u.Email, "Password Reset Request", body)
		s.events.Record("password_reset_requested", &u.ID, nil)
	}
	return msgResetRequested, nil
}

// CompletePasswordReset consumes a reset token, replaces the password hash
// and advances last_password_reset, which invalidates every outstanding
// access and refresh token.
func (s *Service) CompletePasswordReset(token, newPassword string) (string, error) {
	email, err := s.tokens.VerifySubject(token)
	if err != nil {
		return "", ErrInvalidOrExpiredToken
	}
	u, err := s.store.GetUserByEmail(email.String())
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", ErrUserNotFound
	}
	hashed, err := hashPassword(newPassword)
	if err != nil {
		return "", err
	}
	u.PasswordHash = hashed
	u.LastPasswordReset = s.now().UTC()
	if err := s.store.UpdateUser(u); err != nil {
		return "", err
	}
	s.events.Record("password_reset", &u.ID, nil)
	return msgPasswordReset, nil
}
