package models

import (
	"time"

	"github.com/google/uuid"
)

// Lifecycle event categories
const (
	AuditCategoryLifecycle = "lifecycle"
	AuditCategoryApproval  = "approval"
	AuditCategoryScheduler = "scheduler"
)

type LifecycleEvent struct {
	ID          uuid.UUID  `json:"id"`
	OrgID       uuid.UUID  `json:"org_id"`
	ActorUserID *uuid.UUID `json:"actor_user_id,omitempty"`
	ActorType   string     `json:"actor_type"` // user/admin/scheduler
	Category    string     `json:"category"`
	EventType   string     `json:"event_type"`
	EntityType  string     `json:"entity_type"`
	EntityID    *uuid.UUID `json:"entity_id,omitempty"`
	Details     any        `json:"details,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
