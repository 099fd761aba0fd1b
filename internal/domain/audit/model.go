package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Action is the mutation verb an audit record describes.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Entry is what a service hands the recorder after a committed mutation.
type Entry struct {
	Verb       Action
	ObjectType string
	ObjectID   string
	Payload    any
}

// Record is a persisted audit log row.
type Record struct {
	ID         int64           `json:"id,omitempty"`
	EventID    string          `json:"event_id"`
	TenantID   string          `json:"tenant_id"`
	ActorID    *uuid.UUID      `json:"user_id,omitempty"`
	ActorRole  string          `json:"actor_role,omitempty"`
	Action     Action          `json:"action"`
	ObjectType string          `json:"object_type"`
	ObjectID   string          `json:"object_id,omitempty"`
	Changes    json.RawMessage `json:"changes,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Recorder accepts audit entries. Record never fails and never blocks the
// caller; delivery problems are handled and reported by the implementation.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// Nop discards every entry.
type Nop struct{}

func (Nop) Record(context.Context, Entry) {}

// Filter narrows an audit log listing.
type Filter struct {
	ActorID    *uuid.UUID
	Action     Action
	ObjectType string
	Start      *time.Time
	End        *time.Time
}
