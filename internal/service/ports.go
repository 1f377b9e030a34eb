package service

import (
	"context"
	"time"

	"go-business-hub/internal/model"
)

type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByUsername(ctx context.Context, username string) (model.User, error)
	Create(ctx context.Context, u model.User) error
	Count(ctx context.Context) (int, error)
	List(ctx context.Context, query model.UserQuery) ([]model.User, model.Meta, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	Delete(ctx context.Context, id string) error
}

type AccessStore interface {
	Grants(ctx context.Context, userID string) (roles []string, permissions []string, err error)
	AssignRole(ctx context.Context, userID string, roleName string) error
	ListRoles(ctx context.Context) ([]model.Role, error)
	ListPermissions(ctx context.Context) ([]model.Permission, error)
}

type CompanyStore interface {
	FindByID(ctx context.Context, id string) (model.Company, error)
	FindOrCreate(ctx context.Context, name string, plan string) (model.Company, error)
	List(ctx context.Context) ([]model.Company, error)
}

type RefreshTokenStore interface {
	Create(ctx context.Context, userID string, ttl time.Duration) (string, model.RefreshToken, error)
	FindByPrincipal(ctx context.Context, userID string) (model.RefreshToken, error)
	Rotate(ctx context.Context, raw string, ttl time.Duration) (model.Rotation, error)
	DeleteByPrincipal(ctx context.Context, userID string) (int64, error)
}

type AuditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}
