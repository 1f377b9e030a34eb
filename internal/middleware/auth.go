package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"go-business-hub/internal/model"
)

type tokenValidator interface {
	ValidateAccessToken(ctx context.Context, raw string) (*model.AuthClaims, error)
}

type contextKey string

const authClaimsContextKey contextKey = "auth_claims"

// Policy maps "METHOD /chi/route/{pattern}" to the permission a route requires.
// An empty permission means any authenticated caller may proceed.
type Policy map[string]string

// AuthenticatedOnly marks a route that needs a principal but no particular permission.
const AuthenticatedOnly = ""

func PolicyKey(method string, pattern string) string {
	return method + " " + pattern
}

type AuthMiddleware struct {
	validator tokenValidator
	header    string
	prefix    string
}

func NewAuthMiddleware(validator tokenValidator, header string, prefix string) *AuthMiddleware {
	if strings.TrimSpace(header) == "" {
		header = "Authorization"
	}
	return &AuthMiddleware{validator: validator, header: header, prefix: strings.TrimSpace(prefix)}
}

// Authenticate establishes the request principal when a valid access token is presented.
// It never rejects a request: missing, malformed, expired and revoked tokens all leave the
// request unauthenticated, and Authorize produces the client-visible 401 or 403.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := m.extract(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.validator.ValidateAccessToken(r.Context(), token)
		if err != nil {
			if !errors.Is(err, model.ErrTokenInvalid) && !errors.Is(err, model.ErrTokenExpired) {
				slog.Warn("access token check failed", "path", r.URL.Path, "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		annotatePrincipal(r.Context(), claims.UserID, claims.TenantID)
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// Authorize enforces the policy for the matched route. It must run after routing, e.g.
// through chi's With, so the route pattern is known. Routes missing from the policy are
// denied.
func Authorize(policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
				return
			}

			pattern := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				pattern = rctx.RoutePattern()
			}

			required, known := policy[PolicyKey(r.Method, pattern)]
			if !known {
				slog.Warn("route has no authorization policy", "method", r.Method, "pattern", pattern)
				writeJSONError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}

			if required != AuthenticatedOnly && !claims.IsSuperAdmin() && !claims.Has(required) {
				writeJSONError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*model.AuthClaims, bool) {
	claims, ok := ctx.Value(authClaimsContextKey).(*model.AuthClaims)
	return claims, ok && claims != nil
}

// WithClaims returns a context carrying claims, as Authenticate does.
func WithClaims(ctx context.Context, claims *model.AuthClaims) context.Context {
	return context.WithValue(ctx, authClaimsContextKey, claims)
}

func (m *AuthMiddleware) extract(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get(m.header))
	if header == "" {
		return "", false
	}
	if m.prefix == "" {
		return header, true
	}

	prefix, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(prefix, m.prefix) {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}
