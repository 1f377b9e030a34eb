package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go-business-hub/internal/middleware"
	"go-business-hub/internal/model"
	"go-business-hub/pkg/apierror"
)

const maxJSONBody = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	defer r.Body.Close()

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst); err != nil {
		return apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest)
	}
	return nil
}

func actorFromRequest(r *http.Request) model.AuditActor {
	actor := model.AuditActor{IP: middleware.ClientIP(r)}

	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return actor
	}

	actor.UserID = claims.UserID
	actor.Username = claims.Subject
	actor.TenantID = claims.TenantID

	return actor
}

func originFromRequest(r *http.Request) model.RequestOrigin {
	return model.RequestOrigin{
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func scopeFromRequest(r *http.Request) (model.Scope, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return model.Scope{}, false
	}
	return model.ScopeFromClaims(claims), true
}

func parseIntOrDefault(raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func parseOptionalBool(raw string) (*bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
