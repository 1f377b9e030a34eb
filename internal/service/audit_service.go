package service

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go-business-hub/internal/event"
	"go-business-hub/internal/model"
	"go-business-hub/pkg/apierror"
)

const (
	auditStatusSuccess = "success"
	auditStatusFailure = "failure"

	auditWriteTimeout = 5 * time.Second
)

// AuditService persists security events from the bus and serves the audit log.
type AuditService struct {
	store AuditStore
	wg    sync.WaitGroup
}

func NewAuditService(store AuditStore) *AuditService {
	return &AuditService{store: store}
}

// Start consumes bus events until the returned stop function is called. Stop drains
// events that were already delivered before returning.
func (s *AuditService) Start(bus event.Bus) func() {
	events, unsubscribe := bus.Subscribe()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for e := range events {
			s.record(e)
		}
	}()

	return func() {
		unsubscribe()
		s.wg.Wait()
	}
}

func (s *AuditService) Log(ctx context.Context, entry model.AuditEntry) {
	if s == nil {
		return
	}
	if entry.OccurredAt == "" {
		entry.OccurredAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if err := s.store.Log(ctx, entry); err != nil {
		slog.Error("failed to write audit entry", "action", entry.Action, "error", err)
	}
}

// Query returns audit entries visible in scope. Tenant users only see their own tenant.
func (s *AuditService) Query(ctx context.Context, scope model.Scope, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	if !scope.SuperAdmin {
		if scope.TenantID == "" {
			return nil, model.Meta{}, model.ErrForbidden
		}
		query.TenantID = scope.TenantID
	}

	if _, err := parseOptionalAuditTime(query.From); err != nil {
		return nil, model.Meta{}, apierror.New("BAD_REQUEST", "invalid 'from' datetime format", query.From, http.StatusBadRequest)
	}
	if _, err := parseOptionalAuditTime(query.To); err != nil {
		return nil, model.Meta{}, apierror.New("BAD_REQUEST", "invalid 'to' datetime format", query.To, http.StatusBadRequest)
	}

	return s.store.Query(ctx, query)
}

func (s *AuditService) record(e event.Event) {
	status := auditStatusFailure
	if e.Payload.Success {
		status = auditStatusSuccess
	}

	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()

	s.Log(ctx, model.AuditEntry{
		Action:     string(e.Type),
		OccurredAt: e.Timestamp,
		Actor: model.AuditActor{
			UserID:   e.ActorID,
			Username: e.Payload.Username,
			TenantID: e.Payload.TenantID,
			IP:       e.Payload.IP,
		},
		Status:   status,
		Resource: e.Payload.Resource,
		Detail:   e.Payload.Detail,
	})
}

func parseOptionalAuditTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}

	if value, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
		return value.UTC(), nil
	}

	value, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, err
	}
	return value.UTC(), nil
}
