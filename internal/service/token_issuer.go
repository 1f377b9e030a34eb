package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go-business-hub/internal/model"
)

const minSecretLength = 32

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
	now       func() time.Time
}

type accessClaims struct {
	UserID   string   `json:"uid"`
	TenantID string   `json:"tid,omitempty"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// NewTokenIssuer validates the signing configuration by signing and verifying a sample
// token, so a broken secret fails at startup rather than on the first login.
func NewTokenIssuer(secret string, issuer string, accessTTL time.Duration, now func() time.Time) (*TokenIssuer, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("%w: secret must be at least %d bytes", model.ErrSigningMisconfigured, minSecretLength)
	}
	if accessTTL <= 0 {
		return nil, fmt.Errorf("%w: access token ttl must be positive", model.ErrSigningMisconfigured)
	}
	if now == nil {
		now = time.Now
	}

	ti := &TokenIssuer{secret: []byte(secret), issuer: issuer, accessTTL: accessTTL, now: now}

	sample, _, err := ti.IssueAccessToken(model.Principal{User: model.User{ID: "self-check", Username: "self-check"}})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrSigningMisconfigured, err)
	}
	if _, err := ti.ParseAccessToken(sample); err != nil {
		return nil, fmt.Errorf("%w: sample token rejected: %v", model.ErrSigningMisconfigured, err)
	}

	return ti, nil
}

// AccessTTL is the lifetime given to every issued access token.
func (t *TokenIssuer) AccessTTL() time.Duration {
	return t.accessTTL
}

// IssueAccessToken returns a signed token for the principal and its expiry. Timestamps
// have second precision, so the expiry is exactly issuedAt plus the access TTL.
func (t *TokenIssuer) IssueAccessToken(p model.Principal) (string, time.Time, error) {
	issuedAt := t.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(t.accessTTL)

	claims := accessClaims{
		UserID:   p.User.ID,
		TenantID: p.TenantID(),
		Roles:    p.Authorities(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.User.Username,
			Issuer:    t.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseAccessToken verifies signature, issuer and expiry. An expiry equal to now is
// expired. Expired tokens yield model.ErrTokenExpired, anything else model.ErrTokenInvalid.
func (t *TokenIssuer) ParseAccessToken(raw string) (*model.AuthClaims, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, model.ErrTokenExpired
	}
	if err != nil {
		return nil, model.ErrTokenInvalid
	}
	if claims.Subject == "" || claims.UserID == "" {
		return nil, model.ErrTokenInvalid
	}

	out := &model.AuthClaims{
		Subject:   claims.Subject,
		UserID:    claims.UserID,
		TenantID:  claims.TenantID,
		Roles:     claims.Roles,
		Issuer:    claims.Issuer,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
		Token:     raw,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	return out, nil
}
