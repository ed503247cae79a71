package main

import "time"

// Identity is the email address used as the subject key for verification
// and reset tokens and for cooldown bookkeeping.
type Identity string

func (i Identity) String() string { return string(i) }

// User is the identity record owned by the credential store.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	IsVerified   bool
	VerifiedAt   *time.Time
	// LastPasswordReset is embedded into every access/refresh token at mint
	// time. A reset overwrites it, which invalidates all previously issued
	// session tokens without a revocation list.
	LastPasswordReset time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Event is an append-only audit record. It is written best-effort and
// never read back by the service.
type Event struct {
	ID        int64
	Name      string
	UserID    *int64
	Metadata  map[string]interface{}
	CreatedAt time.Time
}

// TokenPair is returned by a successful login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}
