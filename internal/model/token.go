package model

import "time"

// RefreshToken is the persisted form of an opaque refresh token. Only the SHA-256 hash
// of the value handed to the client is stored.
type RefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired uses a strict comparison: a token whose expiry equals now is expired.
func (t RefreshToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// Live reports whether the token can still be exchanged.
func (t RefreshToken) Live(now time.Time) bool {
	return !t.Used && !t.Expired(now)
}

// Rotation is the outcome of exchanging a refresh token. Previous is populated whenever
// the presented token was found, including when the exchange was rejected.
type Rotation struct {
	RawToken string
	Token    RefreshToken
	Previous RefreshToken
}

type LoginResponse struct {
	AccessToken    string    `json:"accessToken"`
	Type           string    `json:"type"`
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Authorities    []string  `json:"authorities"`
	Roles          []string  `json:"roles"`
	ExpirationDate time.Time `json:"expirationDate"`
	RefreshToken   string    `json:"refreshToken"`
	TenantID       *string   `json:"tenantId"`
	Plan           string    `json:"plan,omitempty"`
	LogoURL        string    `json:"logoUrl,omitempty"`
}

// RequestOrigin describes where an authentication request came from, for auditing.
type RequestOrigin struct {
	IP        string
	UserAgent string
}
