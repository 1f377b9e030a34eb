package model

import "time"

const (
	RoleSuperAdmin = "ROLE_SUPER_ADMIN"
	RoleAdmin      = "ROLE_ADMIN"
	RoleUser       = "ROLE_USER"
)

const (
	PermReadUsers       = "READ_USERS"
	PermUpdateUsers     = "UPDATE_USERS"
	PermDeleteUsers     = "DELETE_USERS"
	PermReadRoles       = "READ_ROLES"
	PermReadPermissions = "READ_PERMISSIONS"
	PermReadCompany     = "READ_COMPANY"
	PermManageCompanies = "MANAGE_COMPANIES"
	PermReadAudit       = "READ_AUDIT"
)

const (
	PlanFree       = "FREE"
	PlanBasic      = "BASIC"
	PlanEnterprise = "ENTERPRISE"
)

type Role struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
}

type Permission struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Plan      string    `json:"plan"`
	LogoURL   string    `json:"logoUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type RoleList struct {
	Roles []Role `json:"roles"`
}

type PermissionList struct {
	Permissions []Permission `json:"permissions"`
}

type CompanyList struct {
	Companies []Company `json:"companies"`
}
