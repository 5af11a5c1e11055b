package events

import (
	"context"
	"time"
)

// Event types
const (
	EventActionStatusChanged    = "action_status_changed"
	EventActionApprovalRequired = "action_approval_required"
	EventUserLifecycleChanged   = "user_lifecycle_changed"
)

// StreamActions is the pub/sub channel carrying scheduler and action events.
const StreamActions = "events:actions"

type Event struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	EmittedAt time.Time      `json:"emitted_at"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
