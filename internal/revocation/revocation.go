// Package revocation holds access tokens that were invalidated before their natural expiry.
package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"go-business-hub/internal/model"
)

// List stores revoked access tokens until their original expiry.
// Blacklisting the same token twice is a no-op.
type List interface {
	Blacklist(ctx context.Context, token string, expiresAt time.Time) error
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

// Verifier checks an access token's signature and expiry.
type Verifier interface {
	ParseAccessToken(token string) (*model.AuthClaims, error)
}

type guardedList struct {
	List
	verifier Verifier
}

// Guarded wraps a List so that only validly signed tokens are stored. The stored expiry is
// taken from the token itself. Garbage yields model.ErrTokenInvalid; a token that has
// already expired needs no entry and is accepted without being stored.
func Guarded(list List, verifier Verifier) List {
	return &guardedList{List: list, verifier: verifier}
}

func (g *guardedList) Blacklist(ctx context.Context, token string, _ time.Time) error {
	claims, err := g.verifier.ParseAccessToken(token)
	if errors.Is(err, model.ErrTokenExpired) {
		return nil
	}
	if err != nil {
		return model.ErrTokenInvalid
	}
	return g.List.Blacklist(ctx, token, claims.ExpiresAt)
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
