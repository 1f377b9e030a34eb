package model

import (
	"slices"
	"time"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Enabled      bool      `json:"enabled"`
	CompanyID    *string   `json:"company_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Principal is an authenticated user with its grants resolved through role membership.
type Principal struct {
	User        User
	Roles       []string
	Permissions []string
	Company     *Company
}

// Authorities returns role names followed by permission names, the set carried in the
// access token "roles" claim.
func (p Principal) Authorities() []string {
	out := make([]string, 0, len(p.Roles)+len(p.Permissions))
	out = append(out, p.Roles...)
	for _, perm := range p.Permissions {
		if !slices.Contains(out, perm) {
			out = append(out, perm)
		}
	}
	return out
}

func (p Principal) TenantID() string {
	if p.User.CompanyID == nil {
		return ""
	}
	return *p.User.CompanyID
}

// AuthClaims is the verified content of an access token.
type AuthClaims struct {
	Subject   string    `json:"sub"`
	UserID    string    `json:"uid"`
	TenantID  string    `json:"tid,omitempty"`
	Roles     []string  `json:"roles"`
	Issuer    string    `json:"iss"`
	TokenID   string    `json:"jti"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
	Token     string    `json:"-"`
}

// Has reports whether the claims grant the named role or permission.
func (c *AuthClaims) Has(authority string) bool {
	if c == nil {
		return false
	}
	return slices.Contains(c.Roles, authority)
}

func (c *AuthClaims) IsSuperAdmin() bool {
	return c.Has(RoleSuperAdmin)
}

type UserView struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Enabled     bool     `json:"enabled"`
	TenantID    *string  `json:"tenantId,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Authorities []string `json:"authorities,omitempty"`
}

type UserList struct {
	Users []UserView `json:"users"`
}

type UserQuery struct {
	TenantID string
	Search   string
	Enabled  *bool
	Page     int
	Limit    int
}

// Scope is the tenant visibility of a caller.
type Scope struct {
	UserID     string
	TenantID   string
	SuperAdmin bool
}

// Allows reports whether a resource owned by tenantID is visible in this scope.
func (s Scope) Allows(tenantID *string) bool {
	if s.SuperAdmin {
		return true
	}
	if tenantID == nil || s.TenantID == "" {
		return false
	}
	return *tenantID == s.TenantID
}

func ScopeFromClaims(c *AuthClaims) Scope {
	if c == nil {
		return Scope{}
	}
	return Scope{UserID: c.UserID, TenantID: c.TenantID, SuperAdmin: c.IsSuperAdmin()}
}
