package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeLoginSucceeded    Type = "auth.login.succeeded"
	TypeLoginFailed       Type = "auth.login.failed"
	TypeLogout            Type = "auth.logout"
	TypeRefreshSucceeded  Type = "auth.refresh.succeeded"
	TypeRefreshReuse      Type = "auth.refresh.reuse"
	TypeUserDeleted       Type = "user.deleted"
	TypeUserStatusChanged Type = "user.status.changed"
)

type Event struct {
	ID        string      `json:"id"`
	Type      Type        `json:"type"`
	Payload   SecurityLog `json:"payload"`
	Timestamp string      `json:"timestamp"`
	ActorID   string      `json:"actor_id,omitempty"` // Who triggered the event
}

// SecurityLog describes who did what to which resource.
type SecurityLog struct {
	Username  string `json:"username,omitempty"`
	TenantID  string `json:"tenant_id,omitempty"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Success   bool   `json:"success"`
	Resource  string `json:"resource,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

func New(t Type, actorID string, payload SecurityLog) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		ActorID:   actorID,
	}
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
