package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/helios-hq/backend/internal/events"
	"github.com/helios-hq/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// OnboardingExecutor provisions a new directory user. The engine only sees
// this contract; the real implementation talks to the provisioning bridge.
type OnboardingExecutor interface {
	ExecuteOnboarding(ctx context.Context, req OnboardingRequest) (*OnboardingResult, error)
}

type OnboardingRequest struct {
	OrgID         uuid.UUID      `json:"org_id"`
	ActionID      uuid.UUID      `json:"action_id"`
	TriggeredBy   uuid.UUID      `json:"triggered_by"`
	Email         string         `json:"email"`
	FirstName     string         `json:"first_name"`
	LastName      string         `json:"last_name"`
	PersonalEmail *string        `json:"personal_email,omitempty"`
	Config        map[string]any `json:"config,omitempty"`
}

type OnboardingResult struct {
	Success bool       `json:"success"`
	UserID  *uuid.UUID `json:"user_id,omitempty"`
	Errors  []string   `json:"errors,omitempty"`
}

// OffboardingExecutor runs an offboarding template against an existing user.
type OffboardingExecutor interface {
	ExecuteFromTemplate(ctx context.Context, req OffboardingRequest) (*OffboardingResult, error)
}

type OffboardingRequest struct {
	OrgID           uuid.UUID      `json:"org_id"`
	UserID          uuid.UUID      `json:"user_id"`
	TemplateID      *uuid.UUID     `json:"template_id,omitempty"`
	ActionID        uuid.UUID      `json:"action_id"`
	TriggeredBy     uuid.UUID      `json:"triggered_by"`
	ConfigOverrides map[string]any `json:"config_overrides,omitempty"`
}

type OffboardingResult struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors,omitempty"`
}

// UserStore is the organization_users contract the dispatcher needs,
// satisfied by repositories.OrgUserRepo.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.OrgUser, error)
	SetLifecycleStatus(ctx context.Context, id uuid.UUID, userStatus string, isActive bool, deletedAt *time.Time) error
}

// ExecutionResult is what a dispatch reports back to the poll loop. Permanent
// failures carry no retry benefit (structurally invalid actions, unknown
// types) and short-circuit straight to terminal failed.
type ExecutionResult struct {
	Success       bool
	Error         string
	Permanent     bool
	CreatedUserID *uuid.UUID
}

// ActionExecutor dispatches one due action. Implementations never return an
// error or panic to the caller; everything is folded into the result.
type ActionExecutor interface {
	Execute(ctx context.Context, action *models.ScheduledAction) ExecutionResult
}

type Dispatcher struct {
	users       UserStore
	audit       AuditLogger
	publisher   events.Publisher
	onboarding  OnboardingExecutor
	offboarding OffboardingExecutor
	log         *zap.Logger
}

func NewDispatcher(
	users UserStore,
	audit AuditLogger,
	publisher events.Publisher,
	onboarding OnboardingExecutor,
	offboarding OffboardingExecutor,
	log *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		users:       users,
		audit:       audit,
		publisher:   publisher,
		onboarding:  onboarding,
		offboarding: offboarding,
		log:         log,
	}
}

func (d *Dispatcher) Execute(ctx context.Context, action *models.ScheduledAction) (result ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic during action dispatch",
				zap.String("action_id", action.ID.String()),
				zap.Any("panic", r),
			)
			result = ExecutionResult{Error: fmt.Sprintf("panic during dispatch: %v", r)}
		}
	}()

	switch action.ActionType {
	case models.ActionTypeOnboard:
		return d.executeOnboard(ctx, action)
	case models.ActionTypeOffboard:
		return d.executeOffboard(ctx, action)
	case models.ActionTypeSuspend:
		return d.setUserStatus(ctx, action, models.UserStatusSuspended, false, false)
	case models.ActionTypeUnsuspend:
		return d.setUserStatus(ctx, action, models.UserStatusActive, true, false)
	case models.ActionTypeDelete:
		return d.setUserStatus(ctx, action, models.UserStatusDeleted, false, true)
	case models.ActionTypeRestore:
		return d.setUserStatus(ctx, action, models.UserStatusActive, true, false)
	default:
		return ExecutionResult{
			Error:     fmt.Sprintf("unknown action type %q", action.ActionType),
			Permanent: true,
		}
	}
}

func (d *Dispatcher) executeOnboard(ctx context.Context, action *models.ScheduledAction) ExecutionResult {
	if strVal(action.TargetEmail) == "" || strVal(action.TargetFirstName) == "" || strVal(action.TargetLastName) == "" {
		return ExecutionResult{
			Error:     "onboard action is missing target email, first name or last name",
			Permanent: true,
		}
	}

	res, err := d.onboarding.ExecuteOnboarding(ctx, OnboardingRequest{
		OrgID:         action.OrgID,
		ActionID:      action.ID,
		TriggeredBy:   action.CreatedBy,
		Email:         *action.TargetEmail,
		FirstName:     *action.TargetFirstName,
		LastName:      *action.TargetLastName,
		PersonalEmail: action.TargetPersonalEmail,
		Config:        action.ActionConfig,
	})
	if err != nil {
		return ExecutionResult{Error: fmt.Sprintf("onboarding executor: %v", err)}
	}
	if !res.Success {
		return ExecutionResult{Error: joinErrors(res.Errors, "onboarding failed")}
	}
	return ExecutionResult{Success: true, CreatedUserID: res.UserID}
}

func (d *Dispatcher) executeOffboard(ctx context.Context, action *models.ScheduledAction) ExecutionResult {
	if action.UserID == nil {
		return ExecutionResult{
			Error:     "offboard action has no target user",
			Permanent: true,
		}
	}

	res, err := d.offboarding.ExecuteFromTemplate(ctx, OffboardingRequest{
		OrgID:           action.OrgID,
		UserID:          *action.UserID,
		TemplateID:      action.TemplateID,
		ActionID:        action.ID,
		TriggeredBy:     action.CreatedBy,
		ConfigOverrides: action.ConfigOverrides,
	})
	if err != nil {
		return ExecutionResult{Error: fmt.Sprintf("offboarding executor: %v", err)}
	}
	if !res.Success {
		return ExecutionResult{Error: joinErrors(res.Errors, "offboarding failed")}
	}
	return ExecutionResult{Success: true}
}

// setUserStatus applies suspend/unsuspend/delete/restore directly to the
// local user record. These action types do not call directory APIs.
func (d *Dispatcher) setUserStatus(ctx context.Context, action *models.ScheduledAction, userStatus string, isActive, markDeleted bool) ExecutionResult {
	if action.UserID == nil {
		return ExecutionResult{
			Error:     fmt.Sprintf("%s action has no target user", action.ActionType),
			Permanent: true,
		}
	}

	user, err := d.users.GetByID(ctx, *action.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ExecutionResult{
				Error:     fmt.Sprintf("user %s not found", action.UserID),
				Permanent: true,
			}
		}
		return ExecutionResult{Error: fmt.Sprintf("load user: %v", err)}
	}

	var deletedAt *time.Time
	if markDeleted {
		now := time.Now()
		deletedAt = &now
	}

	if err := d.users.SetLifecycleStatus(ctx, user.ID, userStatus, isActive, deletedAt); err != nil {
		return ExecutionResult{Error: fmt.Sprintf("update user status: %v", err)}
	}

	_ = d.audit.Log(ctx, models.LifecycleEvent{
		OrgID:      action.OrgID,
		ActorType:  "scheduler",
		Category:   models.AuditCategoryLifecycle,
		EventType:  "user_" + userStatus,
		EntityType: "org_user",
		EntityID:   action.UserID,
		Details: map[string]any{
			"action_id":   action.ID.String(),
			"action_type": action.ActionType,
		},
	})

	_ = d.publisher.Publish(ctx, events.StreamActions, events.Event{
		Type: events.EventUserLifecycleChanged,
		Payload: map[string]any{
			"user_id":     user.ID.String(),
			"org_id":      action.OrgID.String(),
			"user_status": userStatus,
			"action_id":   action.ID.String(),
		},
	})

	return ExecutionResult{Success: true}
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func joinErrors(errs []string, fallback string) string {
	if len(errs) == 0 {
		return fallback
	}
	return strings.Join(errs, "; ")
}
