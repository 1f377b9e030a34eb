package handler

import (
	"net/http"

	"go-business-hub/internal/model"
	"go-business-hub/internal/service"
)

type RBACHandler struct {
	service *service.RBACService
}

func NewRBACHandler(service *service.RBACService) *RBACHandler {
	return &RBACHandler{service: service}
}

func (h *RBACHandler) Roles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, roles, nil)
}

func (h *RBACHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	permissions, err := h.service.ListPermissions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, permissions, nil)
}

// Company returns the caller's own tenant.
func (h *RBACHandler) Company(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	company, err := h.service.CurrentCompany(r.Context(), scope)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, company, nil)
}

func (h *RBACHandler) Companies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.service.ListCompanies(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, companies, nil)
}
