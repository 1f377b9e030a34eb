package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"go-business-hub/internal/model"
	"go-business-hub/internal/service"
	"go-business-hub/pkg/apierror"
)

type UserHandler struct {
	service *service.UserService
}

func NewUserHandler(service *service.UserService) *UserHandler {
	return &UserHandler{service: service}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	query := r.URL.Query()
	enabled, err := parseOptionalBool(query.Get("enabled"))
	if err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "enabled must be a boolean", query.Get("enabled"), http.StatusBadRequest))
		return
	}

	users, meta, err := h.service.List(r.Context(), scope, model.UserQuery{
		Search:  strings.TrimSpace(query.Get("search")),
		Enabled: enabled,
		Page:    parseIntOrDefault(query.Get("page"), 1),
		Limit:   parseIntOrDefault(query.Get("limit"), 20),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, users, &meta)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	userID := chi.URLParam(r, "id")
	if userID == "" {
		writeError(w, apierror.New("BAD_REQUEST", "user id is required", "id", http.StatusBadRequest))
		return
	}

	user, err := h.service.Get(r.Context(), scope, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

func (h *UserHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	userID := chi.URLParam(r, "id")
	if userID == "" {
		writeError(w, apierror.New("BAD_REQUEST", "user id is required", "id", http.StatusBadRequest))
		return
	}

	var payload model.UpdateUserStatusRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if payload.Enabled == nil {
		writeError(w, apierror.New("BAD_REQUEST", "enabled is required", "enabled", http.StatusBadRequest))
		return
	}

	user, err := h.service.SetEnabled(r.Context(), scope, userID, *payload.Enabled, actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	userID := chi.URLParam(r, "id")
	if userID == "" {
		writeError(w, apierror.New("BAD_REQUEST", "user id is required", "id", http.StatusBadRequest))
		return
	}

	if err := h.service.Delete(r.Context(), scope, userID, actorFromRequest(r)); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"deleted": true}, nil)
}
