package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/require"

	"go-business-hub/internal/model"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestAccessGrantsResolvesRolesAndPermissions(t *testing.T) {
	mock := newMockPool(t)
	repo := NewAccessRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`JOIN roles r ON r.id = ur.role_id`)).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow(model.RoleAdmin))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT DISTINCT p.name`)).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow(model.PermReadRoles).AddRow(model.PermReadUsers))

	roles, perms, err := repo.Grants(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, []string{model.RoleAdmin}, roles)
	require.Equal(t, []string{model.PermReadRoles, model.PermReadUsers}, perms)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessAssignUnknownRole(t *testing.T) {
	mock := newMockPool(t)
	repo := NewAccessRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM roles WHERE name = $1`)).
		WithArgs("ROLE_GHOST").
		WillReturnError(pgx.ErrNoRows)

	err := repo.AssignRole(context.Background(), "user-1", "ROLE_GHOST")
	require.ErrorIs(t, err, model.ErrRoleNotFound)
}

func TestAccessAssignRole(t *testing.T) {
	mock := newMockPool(t)
	repo := NewAccessRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM roles WHERE name = $1`)).
		WithArgs(model.RoleAdmin).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("role-admin"))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO user_roles`)).
		WithArgs("user-1", "role-admin").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.AssignRole(context.Background(), "user-1", model.RoleAdmin))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompanyFindOrCreate(t *testing.T) {
	mock := newMockPool(t)
	repo := NewCompanyRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM companies WHERE lower(name) = lower($1)`)).
		WithArgs("Default Company").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO companies`)).
		WithArgs(pgxmock.AnyArg(), "Default Company", model.PlanFree, "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	c, err := repo.FindOrCreate(context.Background(), " Default Company ", model.PlanFree)
	require.NoError(t, err)
	require.NotEmpty(t, c.ID)
	require.Equal(t, model.PlanFree, c.Plan)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompanyFindOrCreateReturnsExisting(t *testing.T) {
	mock := newMockPool(t)
	repo := NewCompanyRepository(mock)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM companies WHERE lower(name) = lower($1)`)).
		WithArgs("Acme").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "plan", "logo_url", "created_at"}).
			AddRow("company-1", "Acme", model.PlanEnterprise, "https://acme.test/logo.png", now))

	c, err := repo.FindOrCreate(context.Background(), "Acme", model.PlanFree)
	require.NoError(t, err)
	require.Equal(t, "company-1", c.ID)
	require.Equal(t, model.PlanEnterprise, c.Plan)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompanyFindByIDNotFound(t *testing.T) {
	mock := newMockPool(t)
	repo := NewCompanyRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM companies WHERE id = $1`)).WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "nope")
	require.ErrorIs(t, err, model.ErrCompanyNotFound)
}
