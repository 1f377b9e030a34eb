package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"go-business-hub/internal/event"
	"go-business-hub/internal/model"
	"go-business-hub/pkg/apierror"
)

// UserService administers users inside the caller's tenant. Users of other tenants are
// reported as not found.
type UserService struct {
	users  UserStore
	access AccessStore
	tokens RefreshTokenStore
	bus    event.Bus
}

func NewUserService(users UserStore, access AccessStore, tokens RefreshTokenStore, bus event.Bus) *UserService {
	return &UserService{users: users, access: access, tokens: tokens, bus: bus}
}

func (s *UserService) List(ctx context.Context, scope model.Scope, query model.UserQuery) (model.UserList, model.Meta, error) {
	if !scope.SuperAdmin {
		if scope.TenantID == "" {
			return model.UserList{}, model.Meta{}, model.ErrForbidden
		}
		query.TenantID = scope.TenantID
	}

	users, meta, err := s.users.List(ctx, query)
	if err != nil {
		return model.UserList{}, model.Meta{}, err
	}

	views := make([]model.UserView, 0, len(users))
	for _, u := range users {
		roles, _, err := s.access.Grants(ctx, u.ID)
		if err != nil {
			return model.UserList{}, model.Meta{}, fmt.Errorf("resolve grants: %w", err)
		}
		views = append(views, model.UserView{ID: u.ID, Username: u.Username, Enabled: u.Enabled, TenantID: u.CompanyID, Roles: roles})
	}

	return model.UserList{Users: views}, meta, nil
}

func (s *UserService) Get(ctx context.Context, scope model.Scope, id string) (model.UserView, error) {
	u, err := s.visible(ctx, scope, id)
	if err != nil {
		return model.UserView{}, err
	}

	roles, perms, err := s.access.Grants(ctx, u.ID)
	if err != nil {
		return model.UserView{}, fmt.Errorf("resolve grants: %w", err)
	}
	return principalView(model.Principal{User: u, Roles: roles, Permissions: perms}), nil
}

// SetEnabled enables or disables a user. Disabling also ends the user's session.
func (s *UserService) SetEnabled(ctx context.Context, scope model.Scope, id string, enabled bool, actor model.AuditActor) (model.UserView, error) {
	if id == scope.UserID {
		return model.UserView{}, apierror.New("BAD_REQUEST", "cannot change your own status", id, http.StatusBadRequest)
	}

	u, err := s.visible(ctx, scope, id)
	if err != nil {
		return model.UserView{}, err
	}

	if err := s.users.SetEnabled(ctx, u.ID, enabled); err != nil {
		return model.UserView{}, err
	}
	if !enabled {
		if _, err := s.tokens.DeleteByPrincipal(ctx, u.ID); err != nil {
			return model.UserView{}, fmt.Errorf("revoke refresh token: %w", err)
		}
	}

	detail := "enabled"
	if !enabled {
		detail = "disabled"
	}
	s.publish(event.TypeUserStatusChanged, actor, u, detail)

	return s.Get(ctx, scope, u.ID)
}

func (s *UserService) Delete(ctx context.Context, scope model.Scope, id string, actor model.AuditActor) error {
	if id == scope.UserID {
		return apierror.New("BAD_REQUEST", "cannot delete your own account", id, http.StatusBadRequest)
	}

	u, err := s.visible(ctx, scope, id)
	if err != nil {
		return err
	}

	if _, err := s.tokens.DeleteByPrincipal(ctx, u.ID); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if err := s.users.Delete(ctx, u.ID); err != nil {
		return err
	}

	slog.Info("user deleted", "user_id", u.ID, "by", actor.UserID)
	s.publish(event.TypeUserDeleted, actor, u, "")
	return nil
}

func (s *UserService) visible(ctx context.Context, scope model.Scope, id string) (model.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	if !scope.Allows(u.CompanyID) {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (s *UserService) publish(t event.Type, actor model.AuditActor, target model.User, detail string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.New(t, actor.UserID, event.SecurityLog{
		Username: actor.Username,
		TenantID: actor.TenantID,
		IP:       actor.IP,
		Success:  true,
		Resource: "user:" + target.ID,
		Detail:   detail,
	}))
}
