package repository

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/require"

	"go-business-hub/internal/model"
)

func TestAuditLogAndQuery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAuditRepository(mock)
	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO audit_entries`).
		WithArgs("auth.refresh.reuse", occurred, "user-1", "admin", "company-1", "10.0.0.1", "failure", "", "refresh token reused").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Log(context.Background(), model.AuditEntry{
		Action:     "auth.refresh.reuse",
		OccurredAt: occurred.Format(time.RFC3339Nano),
		Actor:      model.AuditActor{UserID: "user-1", Username: "admin", TenantID: "company-1", IP: "10.0.0.1"},
		Status:     "failure",
		Detail:     "refresh token reused",
	})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_entries WHERE \(tenant_id = \$1 AND lower\(action\) = lower\(\$2\)\)`).
		WithArgs("company-1", "auth.refresh.reuse").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`FROM audit_entries .* ORDER BY occurred_at DESC LIMIT 50 OFFSET 0`).
		WithArgs("company-1", "auth.refresh.reuse").
		WillReturnRows(pgxmock.NewRows([]string{
			"action", "occurred_at", "actor_user_id", "actor_username", "tenant_id", "actor_ip", "status", "resource", "detail",
		}).AddRow("auth.refresh.reuse", occurred, "user-1", "admin", "company-1", "10.0.0.1", "failure", "", "refresh token reused"))

	entries, meta, err := repo.Query(context.Background(), model.AuditQuery{TenantID: "company-1", Action: "auth.refresh.reuse"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "company-1", entries[0].Actor.TenantID)
	require.Equal(t, 1, meta.Total)
	require.NoError(t, mock.ExpectationsWereMet())
}
