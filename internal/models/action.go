package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Action types
const (
	ActionTypeOnboard   = "onboard"
	ActionTypeOffboard  = "offboard"
	ActionTypeSuspend   = "suspend"
	ActionTypeUnsuspend = "unsuspend"
	ActionTypeDelete    = "delete"
	ActionTypeRestore   = "restore"
)

// Action statuses
const (
	ActionStatusPending    = "pending"
	ActionStatusInProgress = "in_progress"
	ActionStatusCompleted  = "completed"
	ActionStatusFailed     = "failed"
	ActionStatusCancelled  = "cancelled"
)

// Recurrence intervals
const (
	RecurrenceDaily   = "daily"
	RecurrenceWeekly  = "weekly"
	RecurrenceMonthly = "monthly"
)

var (
	ErrActionNotPending    = errors.New("action is not pending")
	ErrApprovalNotRequired = errors.New("action does not require approval")
	ErrAlreadyApproved     = errors.New("action is already approved")
)

// Valid state transitions: from -> []to.
// completed -> pending is the recurrence re-arm path; in_progress -> pending is retry.
var ValidActionTransitions = map[string][]string{
	ActionStatusPending:    {ActionStatusInProgress, ActionStatusCancelled},
	ActionStatusInProgress: {ActionStatusCompleted, ActionStatusFailed, ActionStatusPending},
	ActionStatusCompleted:  {ActionStatusPending},
	ActionStatusFailed:     {},
	ActionStatusCancelled:  {},
}

func IsValidTransition(from, to string) bool {
	allowed, ok := ValidActionTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

func IsValidActionType(t string) bool {
	switch t {
	case ActionTypeOnboard, ActionTypeOffboard, ActionTypeSuspend,
		ActionTypeUnsuspend, ActionTypeDelete, ActionTypeRestore:
		return true
	}
	return false
}

func IsValidRecurrenceInterval(i string) bool {
	switch i {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

type ScheduledAction struct {
	ID    uuid.UUID `json:"id"`
	OrgID uuid.UUID `json:"org_id"`

	// Target: either an existing org user, or inline details for a
	// not-yet-created user (onboard).
	UserID              *uuid.UUID `json:"user_id,omitempty"`
	TargetEmail         *string    `json:"target_email,omitempty"`
	TargetFirstName     *string    `json:"target_first_name,omitempty"`
	TargetLastName      *string    `json:"target_last_name,omitempty"`
	TargetPersonalEmail *string    `json:"target_personal_email,omitempty"`

	ActionType      string         `json:"action_type"`
	TemplateID      *uuid.UUID     `json:"template_id,omitempty"`
	ActionConfig    map[string]any `json:"action_config,omitempty"`
	ConfigOverrides map[string]any `json:"config_overrides,omitempty"`

	ScheduledFor       time.Time  `json:"scheduled_for"`
	IsRecurring        bool       `json:"is_recurring"`
	RecurrenceInterval *string    `json:"recurrence_interval,omitempty"` // daily / weekly / monthly
	RecurrenceUntil    *time.Time `json:"recurrence_until,omitempty"`
	LastRecurrenceAt   *time.Time `json:"last_recurrence_at,omitempty"`

	Status       string     `json:"status"`
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`

	RequiresApproval bool       `json:"requires_approval"`
	ApprovedBy       *uuid.UUID `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	ApprovalNotes    *string    `json:"approval_notes,omitempty"`
	RejectedBy       *uuid.UUID `json:"rejected_by,omitempty"`
	RejectedAt       *time.Time `json:"rejected_at,omitempty"`
	RejectionReason  *string    `json:"rejection_reason,omitempty"`

	DependsOnActionID *uuid.UUID `json:"depends_on_action_id,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedBy    uuid.UUID  `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CancelledBy  *uuid.UUID `json:"cancelled_by,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason *string    `json:"cancel_reason,omitempty"`
}

// ApprovalSatisfied reports whether the approval gate allows execution.
// Mirrored by the SQL predicate in the due-action query.
func (a *ScheduledAction) ApprovalSatisfied() bool {
	return !a.RequiresApproval || a.ApprovedAt != nil
}

// DependencySatisfied reports whether the prerequisite action (if any) has
// completed. dep is the resolved dependency, nil when it could not be loaded.
func (a *ScheduledAction) DependencySatisfied(dep *ScheduledAction) bool {
	if a.DependsOnActionID == nil {
		return true
	}
	return dep != nil && dep.Status == ActionStatusCompleted
}

// IsDue reports whether the action's schedule (and retry hold-off) has arrived.
func (a *ScheduledAction) IsDue(now time.Time) bool {
	if a.Status != ActionStatusPending {
		return false
	}
	if a.ScheduledFor.After(now) {
		return false
	}
	if a.NextRetryAt != nil && a.NextRetryAt.After(now) {
		return false
	}
	return true
}

// NextOccurrence computes the next run time for a recurring action. The next
// occurrence is derived from the prior scheduled_for, not from now, so a late
// run does not shift the cadence. Returns false when the action does not recur
// or the next occurrence falls past recurrence_until.
func (a *ScheduledAction) NextOccurrence() (time.Time, bool) {
	if !a.IsRecurring || a.RecurrenceInterval == nil {
		return time.Time{}, false
	}

	var next time.Time
	switch *a.RecurrenceInterval {
	case RecurrenceDaily:
		next = a.ScheduledFor.AddDate(0, 0, 1)
	case RecurrenceWeekly:
		next = a.ScheduledFor.AddDate(0, 0, 7)
	case RecurrenceMonthly:
		next = a.ScheduledFor.AddDate(0, 1, 0)
	default:
		return time.Time{}, false
	}

	if a.RecurrenceUntil != nil && next.After(*a.RecurrenceUntil) {
		return time.Time{}, false
	}
	return next, true
}
