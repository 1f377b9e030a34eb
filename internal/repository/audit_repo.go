package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	"go-business-hub/internal/model"
)

type AuditRepository struct {
	pool Pool
}

func NewAuditRepository(pool Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Log(ctx context.Context, entry model.AuditEntry) error {
	occurredAt, err := time.Parse(time.RFC3339Nano, entry.OccurredAt)
	if err != nil {
		occurredAt = time.Now().UTC()
	}

	sql, args, err := psql.Insert("audit_entries").
		Columns("action", "occurred_at", "actor_user_id", "actor_username", "tenant_id", "actor_ip",
			"status", "resource", "detail").
		Values(entry.Action, occurredAt, entry.Actor.UserID, entry.Actor.Username, entry.Actor.TenantID,
			entry.Actor.IP, entry.Status, entry.Resource, entry.Detail).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit sql: %w", err)
	}

	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("log audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepository) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	page, limit := pageBounds(query.Page, query.Limit, 50, 200)

	where := squirrel.And{}
	if tenant := strings.TrimSpace(query.TenantID); tenant != "" {
		where = append(where, squirrel.Eq{"tenant_id": tenant})
	}
	if action := strings.TrimSpace(query.Action); action != "" {
		where = append(where, squirrel.Expr("lower(action) = lower(?)", action))
	}
	if actorID := strings.TrimSpace(query.ActorID); actorID != "" {
		where = append(where, squirrel.Eq{"actor_user_id": actorID})
	}
	if status := strings.TrimSpace(query.Status); status != "" {
		where = append(where, squirrel.Expr("lower(status) = lower(?)", status))
	}
	if from := strings.TrimSpace(query.From); from != "" {
		where = append(where, squirrel.Expr("occurred_at >= ?::timestamptz", from))
	}
	if to := strings.TrimSpace(query.To); to != "" {
		where = append(where, squirrel.Expr("occurred_at <= ?::timestamptz", to))
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("audit_entries").Where(where).ToSql()
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("build count audit sql: %w", err)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, model.Meta{}, fmt.Errorf("count audit entries: %w", err)
	}
	meta := model.Meta{Page: page, Limit: limit, Total: total, TotalPages: totalPages(total, limit)}

	dataSQL, dataArgs, err := psql.
		Select("action", "occurred_at", "actor_user_id", "actor_username", "tenant_id", "actor_ip",
			"status", "resource", "detail").
		From("audit_entries").
		Where(where).
		OrderBy("occurred_at DESC").
		Limit(uint64(limit)).
		Offset(uint64((page - 1) * limit)).
		ToSql()
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("build query audit sql: %w", err)
	}

	rows, err := r.pool.Query(ctx, dataSQL, dataArgs...)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]model.AuditEntry, 0)
	for rows.Next() {
		var e model.AuditEntry
		var occurredAt time.Time

		if err := rows.Scan(
			&e.Action, &occurredAt,
			&e.Actor.UserID, &e.Actor.Username, &e.Actor.TenantID, &e.Actor.IP,
			&e.Status, &e.Resource, &e.Detail,
		); err != nil {
			return nil, model.Meta{}, fmt.Errorf("scan audit entry: %w", err)
		}

		e.OccurredAt = occurredAt.UTC().Format(time.RFC3339Nano)
		entries = append(entries, e)
	}

	return entries, meta, rows.Err()
}
