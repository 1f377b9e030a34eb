package service

import (
	"context"

	"go-business-hub/internal/model"
)

// RBACService exposes the role catalogue and tenant records.
type RBACService struct {
	access    AccessStore
	companies CompanyStore
}

func NewRBACService(access AccessStore, companies CompanyStore) *RBACService {
	return &RBACService{access: access, companies: companies}
}

func (s *RBACService) ListRoles(ctx context.Context) (model.RoleList, error) {
	roles, err := s.access.ListRoles(ctx)
	if err != nil {
		return model.RoleList{}, err
	}
	return model.RoleList{Roles: roles}, nil
}

func (s *RBACService) ListPermissions(ctx context.Context) (model.PermissionList, error) {
	perms, err := s.access.ListPermissions(ctx)
	if err != nil {
		return model.PermissionList{}, err
	}
	return model.PermissionList{Permissions: perms}, nil
}

// CurrentCompany returns the caller's own tenant. Platform users have none.
func (s *RBACService) CurrentCompany(ctx context.Context, scope model.Scope) (model.Company, error) {
	if scope.TenantID == "" {
		return model.Company{}, model.ErrCompanyNotFound
	}
	return s.companies.FindByID(ctx, scope.TenantID)
}

func (s *RBACService) ListCompanies(ctx context.Context) (model.CompanyList, error) {
	companies, err := s.companies.List(ctx)
	if err != nil {
		return model.CompanyList{}, err
	}
	return model.CompanyList{Companies: companies}, nil
}
