package router

import (
	"net/http"

	"go-business-hub/internal/middleware"
	"go-business-hub/internal/model"
)

// AccessPolicy lists every protected route and the permission it requires. Routes not
// listed here are denied by middleware.Authorize.
func AccessPolicy() middleware.Policy {
	return middleware.Policy{
		middleware.PolicyKey(http.MethodPost, "/api/auth/logout"): middleware.AuthenticatedOnly,
		middleware.PolicyKey(http.MethodGet, "/api/auth/me"):      middleware.AuthenticatedOnly,

		middleware.PolicyKey(http.MethodGet, "/api/users"):               model.PermReadUsers,
		middleware.PolicyKey(http.MethodGet, "/api/users/{id}"):          model.PermReadUsers,
		middleware.PolicyKey(http.MethodPatch, "/api/users/{id}/status"): model.PermUpdateUsers,
		middleware.PolicyKey(http.MethodDelete, "/api/users/{id}"):       model.PermDeleteUsers,
		middleware.PolicyKey(http.MethodGet, "/api/roles"):               model.PermReadRoles,
		middleware.PolicyKey(http.MethodGet, "/api/permissions"):         model.PermReadPermissions,
		middleware.PolicyKey(http.MethodGet, "/api/company"):             model.PermReadCompany,
		middleware.PolicyKey(http.MethodGet, "/api/companies"):           model.PermManageCompanies,
		middleware.PolicyKey(http.MethodGet, "/api/audit"):               model.PermReadAudit,
	}
}
