package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-business-hub/internal/model"
)

type stubValidator struct {
	claims map[string]*model.AuthClaims
	err    error
}

func (s stubValidator) ValidateAccessToken(_ context.Context, raw string) (*model.AuthClaims, error) {
	if s.err != nil {
		return nil, s.err
	}
	claims, ok := s.claims[raw]
	if !ok {
		return nil, model.ErrTokenInvalid
	}
	return claims, nil
}

func newAuthRouter(t *testing.T, validator tokenValidator) http.Handler {
	t.Helper()

	policy := Policy{
		PolicyKey(http.MethodGet, "/api/users/{id}"): model.PermReadUsers,
		PolicyKey(http.MethodGet, "/api/auth/me"):    AuthenticatedOnly,
	}
	auth := NewAuthMiddleware(validator, "Authorization", "Bearer")

	r := chi.NewRouter()
	r.Use(auth.Authenticate)
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

	r.With(Authorize(policy)).Get("/api/users/{id}", ok)
	r.With(Authorize(policy)).Get("/api/auth/me", ok)
	r.With(Authorize(policy)).Get("/api/unlisted", ok)

	return r
}

func doGet(h http.Handler, path string, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthorize(t *testing.T) {
	validator := stubValidator{claims: map[string]*model.AuthClaims{
		"reader": {UserID: "u1", Roles: []string{model.RoleUser, model.PermReadUsers}},
		"plain":  {UserID: "u2", Roles: []string{model.RoleUser}},
		"root":   {UserID: "u3", Roles: []string{model.RoleSuperAdmin}},
	}}
	h := newAuthRouter(t, validator)

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"no token", "/api/users/1", "", http.StatusUnauthorized},
		{"unknown token", "/api/users/1", "garbage", http.StatusUnauthorized},
		{"missing permission", "/api/users/1", "plain", http.StatusForbidden},
		{"granted permission", "/api/users/1", "reader", http.StatusOK},
		{"super admin bypass", "/api/users/1", "root", http.StatusOK},
		{"authenticated only", "/api/auth/me", "plain", http.StatusOK},
		{"route without policy", "/api/unlisted", "root", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doGet(h, tt.path, tt.token)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestAuthenticate_ValidatorFailureLeavesRequestAnonymous(t *testing.T) {
	h := newAuthRouter(t, stubValidator{err: errors.New("redis down")})

	rec := doGet(h, "/api/auth/me", "anything")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticate_PrefixHandling(t *testing.T) {
	claims := &model.AuthClaims{UserID: "u1"}
	mw := NewAuthMiddleware(stubValidator{claims: map[string]*model.AuthClaims{"tok": claims}}, "", "Bearer")

	var seen *model.AuthClaims
	h := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
	}))

	for _, header := range []string{"Bearer tok", "bearer tok", "Bearer   tok"} {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		h.ServeHTTP(httptest.NewRecorder(), req)
		require.Same(t, claims, seen, header)
	}

	for _, header := range []string{"tok", "Token tok", "Bearer"} {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		h.ServeHTTP(httptest.NewRecorder(), req)
		require.Nil(t, seen, header)
	}
}
