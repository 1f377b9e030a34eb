package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-business-hub/internal/event"
	"go-business-hub/internal/model"
	"go-business-hub/internal/storetest"
	"go-business-hub/pkg/apierror"
)

func seedTenantUsers(t *testing.T, stores *storetest.Stores) (model.Company, model.Company) {
	t.Helper()
	ctx := context.Background()

	acme, err := stores.Companies.FindOrCreate(ctx, "Acme", model.PlanBasic)
	require.NoError(t, err)
	globex, err := stores.Companies.FindOrCreate(ctx, "Globex", model.PlanFree)
	require.NoError(t, err)

	now := time.Now().UTC()
	for _, u := range []model.User{
		{ID: "acme-admin", Username: "alice", Enabled: true, CompanyID: &acme.ID, CreatedAt: now},
		{ID: "acme-user", Username: "bob", Enabled: true, CompanyID: &acme.ID, CreatedAt: now},
		{ID: "globex-user", Username: "carol", Enabled: true, CompanyID: &globex.ID, CreatedAt: now},
	} {
		stores.Users.Add(u)
	}
	require.NoError(t, stores.Access.AssignRole(ctx, "acme-admin", model.RoleAdmin))
	require.NoError(t, stores.Access.AssignRole(ctx, "acme-user", model.RoleUser))
	return acme, globex
}

func TestUserServiceTenantScope(t *testing.T) {
	stores := storetest.New(nil)
	acme, _ := seedTenantUsers(t, stores)
	svc := NewUserService(stores.Users, stores.Access, stores.Tokens, nil)
	ctx := context.Background()

	scope := model.Scope{UserID: "acme-admin", TenantID: acme.ID}

	list, meta, err := svc.List(ctx, scope, model.UserQuery{})
	require.NoError(t, err)
	require.Equal(t, 2, meta.Total)
	require.Len(t, list.Users, 2)
	require.Equal(t, "alice", list.Users[0].Username)
	require.Equal(t, []string{model.RoleAdmin}, list.Users[0].Roles)

	_, err = svc.Get(ctx, scope, "globex-user")
	require.ErrorIs(t, err, model.ErrUserNotFound)

	view, err := svc.Get(ctx, scope, "acme-user")
	require.NoError(t, err)
	require.Equal(t, []string{model.PermReadCompany}, view.Authorities[1:])

	all, _, err := svc.List(ctx, model.Scope{SuperAdmin: true}, model.UserQuery{})
	require.NoError(t, err)
	require.Len(t, all.Users, 3)

	_, _, err = svc.List(ctx, model.Scope{UserID: "orphan"}, model.UserQuery{})
	require.ErrorIs(t, err, model.ErrForbidden)
}

func TestUserServiceDisableRevokesSession(t *testing.T) {
	stores := storetest.New(nil)
	acme, _ := seedTenantUsers(t, stores)
	bus := event.NewBus()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	svc := NewUserService(stores.Users, stores.Access, stores.Tokens, bus)
	ctx := context.Background()
	scope := model.Scope{UserID: "acme-admin", TenantID: acme.ID}

	_, _, err := stores.Tokens.Create(ctx, "acme-user", time.Hour)
	require.NoError(t, err)

	view, err := svc.SetEnabled(ctx, scope, "acme-user", false, model.AuditActor{UserID: "acme-admin", TenantID: acme.ID})
	require.NoError(t, err)
	require.False(t, view.Enabled)
	require.Equal(t, 0, stores.Tokens.Live("acme-user"))

	e := <-events
	require.Equal(t, event.TypeUserStatusChanged, e.Type)
	require.Equal(t, "disabled", e.Payload.Detail)

	_, err = svc.SetEnabled(ctx, scope, "globex-user", false, model.AuditActor{})
	require.ErrorIs(t, err, model.ErrUserNotFound)

	_, err = svc.SetEnabled(ctx, scope, "acme-admin", false, model.AuditActor{})
	var apiErr *apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "BAD_REQUEST", apiErr.Code)
}

func TestUserServiceDelete(t *testing.T) {
	stores := storetest.New(nil)
	acme, _ := seedTenantUsers(t, stores)
	svc := NewUserService(stores.Users, stores.Access, stores.Tokens, nil)
	ctx := context.Background()
	scope := model.Scope{UserID: "acme-admin", TenantID: acme.ID}

	_, _, err := stores.Tokens.Create(ctx, "acme-user", time.Hour)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, scope, "acme-user", model.AuditActor{UserID: "acme-admin"}))
	_, err = stores.Users.FindByID(ctx, "acme-user")
	require.ErrorIs(t, err, model.ErrUserNotFound)
	_, err = stores.Tokens.FindByPrincipal(ctx, "acme-user")
	require.ErrorIs(t, err, model.ErrTokenNotFound)

	require.ErrorIs(t, svc.Delete(ctx, scope, "globex-user", model.AuditActor{}), model.ErrUserNotFound)
}
