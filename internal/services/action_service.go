package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/helios-hq/backend/internal/config"
	"github.com/helios-hq/backend/internal/events"
	"github.com/helios-hq/backend/internal/models"
	"github.com/helios-hq/backend/internal/repositories"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ActionStore is the persistence contract for scheduled lifecycle actions,
// satisfied by repositories.ActionRepo.
type ActionStore interface {
	Create(ctx context.Context, a *models.ScheduledAction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ScheduledAction, error)
	List(ctx context.Context, f repositories.ActionFilter) ([]models.ScheduledAction, int, error)
	GetDue(ctx context.Context, orgID *uuid.UUID, limit int) ([]models.ScheduledAction, error)
	GetPendingApproval(ctx context.Context, orgID uuid.UUID) ([]models.ScheduledAction, error)
	GetPendingApprovalOlderThan(ctx context.Context, cutoff time.Time) ([]models.ScheduledAction, error)
	ClaimPending(ctx context.Context, id uuid.UUID) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, retryCount int, nextRetryAt time.Time, errMsg string) error
	Rearm(ctx context.Context, id uuid.UUID, nextFor, rearmedAt time.Time) error
	SetUserID(ctx context.Context, id, userID uuid.UUID) error
	UpdatePending(ctx context.Context, a *models.ScheduledAction) (bool, error)
	Approve(ctx context.Context, id, approvedBy uuid.UUID, notes *string) (bool, error)
	Reject(ctx context.Context, id, rejectedBy uuid.UUID, reason *string) (bool, error)
	Cancel(ctx context.Context, id, cancelledBy uuid.UUID, reason *string) (bool, error)
}

// TemplateStore resolves action config baselines, satisfied by
// repositories.TemplateRepo.
type TemplateStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ActionTemplate, error)
	GetDefaultForType(ctx context.Context, orgID uuid.UUID, actionType string) (*models.ActionTemplate, error)
}

// AuditLogger appends lifecycle audit entries, satisfied by
// repositories.AuditRepo. Appends are fire-and-forget for callers.
type AuditLogger interface {
	Log(ctx context.Context, entry models.LifecycleEvent) error
	GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.LifecycleEvent, error)
}

type ActionService struct {
	actions   ActionStore
	templates TemplateStore
	audit     AuditLogger
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
}

func NewActionService(
	actions ActionStore,
	templates TemplateStore,
	audit AuditLogger,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *ActionService {
	return &ActionService{
		actions:   actions,
		templates: templates,
		audit:     audit,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

type ScheduleActionInput struct {
	OrgID      uuid.UUID
	CreatedBy  uuid.UUID
	ActionType string

	UserID              *uuid.UUID
	TargetEmail         *string
	TargetFirstName     *string
	TargetLastName      *string
	TargetPersonalEmail *string

	TemplateID      *uuid.UUID
	ConfigOverrides map[string]any

	ScheduledFor       time.Time
	IsRecurring        bool
	RecurrenceInterval *string
	RecurrenceUntil    *time.Time

	RequiresApproval  bool
	MaxRetries        *int
	DependsOnActionID *uuid.UUID
}

func (s *ActionService) Schedule(ctx context.Context, input ScheduleActionInput) (*models.ScheduledAction, error) {
	if !models.IsValidActionType(input.ActionType) {
		return nil, fmt.Errorf("invalid action type %q", input.ActionType)
	}
	if input.IsRecurring {
		if input.RecurrenceInterval == nil || !models.IsValidRecurrenceInterval(*input.RecurrenceInterval) {
			return nil, fmt.Errorf("recurring action requires a recurrence interval (daily, weekly, monthly)")
		}
	}

	if input.DependsOnActionID != nil {
		dep, err := s.actions.GetByID(ctx, *input.DependsOnActionID)
		if err != nil {
			return nil, fmt.Errorf("dependency action not found: %w", err)
		}
		if dep.OrgID != input.OrgID {
			return nil, fmt.Errorf("dependency action belongs to another organization")
		}
	}

	baseConfig, templateID, err := s.resolveTemplate(ctx, input)
	if err != nil {
		return nil, err
	}

	maxRetries := s.cfg.DefaultMaxRetries
	if input.MaxRetries != nil && *input.MaxRetries >= 0 {
		maxRetries = *input.MaxRetries
	}

	action := &models.ScheduledAction{
		OrgID:               input.OrgID,
		UserID:              input.UserID,
		TargetEmail:         input.TargetEmail,
		TargetFirstName:     input.TargetFirstName,
		TargetLastName:      input.TargetLastName,
		TargetPersonalEmail: input.TargetPersonalEmail,
		ActionType:          input.ActionType,
		TemplateID:          templateID,
		ActionConfig:        models.MergeConfigs(baseConfig, input.ConfigOverrides),
		ConfigOverrides:     input.ConfigOverrides,
		ScheduledFor:        input.ScheduledFor,
		IsRecurring:         input.IsRecurring,
		RecurrenceInterval:  input.RecurrenceInterval,
		RecurrenceUntil:     input.RecurrenceUntil,
		Status:              models.ActionStatusPending,
		MaxRetries:          maxRetries,
		RequiresApproval:    input.RequiresApproval,
		DependsOnActionID:   input.DependsOnActionID,
		CreatedBy:           input.CreatedBy,
	}

	if err := s.actions.Create(ctx, action); err != nil {
		return nil, err
	}

	_ = s.audit.Log(ctx, models.LifecycleEvent{
		OrgID:       action.OrgID,
		ActorUserID: &input.CreatedBy,
		ActorType:   "user",
		Category:    models.AuditCategoryScheduler,
		EventType:   "action_scheduled",
		EntityType:  "scheduled_action",
		EntityID:    &action.ID,
		Details: map[string]any{
			"action_type":   action.ActionType,
			"scheduled_for": action.ScheduledFor,
		},
	})

	if action.RequiresApproval {
		_ = s.publisher.Publish(ctx, events.StreamActions, events.Event{
			Type: events.EventActionApprovalRequired,
			Payload: map[string]any{
				"action_id":   action.ID.String(),
				"org_id":      action.OrgID.String(),
				"action_type": action.ActionType,
			},
		})
	}

	return action, nil
}

func (s *ActionService) resolveTemplate(ctx context.Context, input ScheduleActionInput) (map[string]any, *uuid.UUID, error) {
	if input.TemplateID != nil {
		tpl, err := s.templates.GetByID(ctx, *input.TemplateID)
		if err != nil {
			return nil, nil, fmt.Errorf("template not found: %w", err)
		}
		if tpl.OrgID != input.OrgID {
			return nil, nil, fmt.Errorf("template belongs to another organization")
		}
		if tpl.ActionType != input.ActionType {
			return nil, nil, fmt.Errorf("template is for action type %q, not %q", tpl.ActionType, input.ActionType)
		}
		return tpl.Config, &tpl.ID, nil
	}

	// No explicit template: fall back to the org default for this type, if any.
	tpl, err := s.templates.GetDefaultForType(ctx, input.OrgID, input.ActionType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("resolve default template: %w", err)
	}
	return tpl.Config, &tpl.ID, nil
}

func (s *ActionService) Get(ctx context.Context, id uuid.UUID) (*models.ScheduledAction, error) {
	return s.actions.GetByID(ctx, id)
}

func (s *ActionService) List(ctx context.Context, f repositories.ActionFilter) ([]models.ScheduledAction, int, error) {
	return s.actions.List(ctx, f)
}

func (s *ActionService) PendingApprovals(ctx context.Context, orgID uuid.UUID) ([]models.ScheduledAction, error) {
	return s.actions.GetPendingApproval(ctx, orgID)
}

func (s *ActionService) GetEvents(ctx context.Context, actionID uuid.UUID) ([]models.LifecycleEvent, error) {
	return s.audit.GetByEntity(ctx, "scheduled_action", actionID, 100, 0)
}

type UpdateActionInput struct {
	ScheduledFor       *time.Time
	ConfigOverrides    map[string]any
	RequiresApproval   *bool
	MaxRetries         *int
	IsRecurring        *bool
	RecurrenceInterval *string
	RecurrenceUntil    *time.Time
	DependsOnActionID  *uuid.UUID
}

// Update mutates a pending action. Config overrides are merged into both the
// retained override delta and the effective action config, so the template
// baseline underneath is never lost.
func (s *ActionService) Update(ctx context.Context, id uuid.UUID, patch UpdateActionInput) (*models.ScheduledAction, error) {
	action, err := s.actions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if action.Status != models.ActionStatusPending {
		return nil, models.ErrActionNotPending
	}

	if patch.ScheduledFor != nil {
		action.ScheduledFor = *patch.ScheduledFor
	}
	if patch.ConfigOverrides != nil {
		action.ConfigOverrides = models.MergeConfigs(action.ConfigOverrides, patch.ConfigOverrides)
		action.ActionConfig = models.MergeConfigs(action.ActionConfig, patch.ConfigOverrides)
	}
	if patch.RequiresApproval != nil {
		action.RequiresApproval = *patch.RequiresApproval
	}
	if patch.MaxRetries != nil && *patch.MaxRetries >= 0 {
		action.MaxRetries = *patch.MaxRetries
	}
	if patch.IsRecurring != nil {
		action.IsRecurring = *patch.IsRecurring
	}
	if patch.RecurrenceInterval != nil {
		if !models.IsValidRecurrenceInterval(*patch.RecurrenceInterval) {
			return nil, fmt.Errorf("invalid recurrence interval %q", *patch.RecurrenceInterval)
		}
		action.RecurrenceInterval = patch.RecurrenceInterval
	}
	if patch.RecurrenceUntil != nil {
		action.RecurrenceUntil = patch.RecurrenceUntil
	}
	if patch.DependsOnActionID != nil {
		dep, err := s.actions.GetByID(ctx, *patch.DependsOnActionID)
		if err != nil {
			return nil, fmt.Errorf("dependency action not found: %w", err)
		}
		if dep.OrgID != action.OrgID {
			return nil, fmt.Errorf("dependency action belongs to another organization")
		}
		action.DependsOnActionID = patch.DependsOnActionID
	}

	ok, err := s.actions.UpdatePending(ctx, action)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race with the scheduler or a concurrent cancel.
		return nil, models.ErrActionNotPending
	}

	return s.actions.GetByID(ctx, id)
}

func (s *ActionService) Approve(ctx context.Context, id, approverID uuid.UUID, notes *string) error {
	action, err := s.actions.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if action.Status != models.ActionStatusPending {
		return models.ErrActionNotPending
	}
	if !action.RequiresApproval {
		return models.ErrApprovalNotRequired
	}
	if action.ApprovedAt != nil {
		return models.ErrAlreadyApproved
	}

	ok, err := s.actions.Approve(ctx, id, approverID, notes)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrActionNotPending
	}

	_ = s.audit.Log(ctx, models.LifecycleEvent{
		OrgID:       action.OrgID,
		ActorUserID: &approverID,
		ActorType:   "user",
		Category:    models.AuditCategoryApproval,
		EventType:   "action_approved",
		EntityType:  "scheduled_action",
		EntityID:    &action.ID,
		Details:     map[string]any{"action_type": action.ActionType},
	})

	return nil
}

// Reject cancels a pending approval-gated action. The terminal status is the
// shared cancelled state; the rejection metadata records which path got there.
func (s *ActionService) Reject(ctx context.Context, id, rejecterID uuid.UUID, reason *string) error {
	action, err := s.actions.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if action.Status != models.ActionStatusPending {
		return models.ErrActionNotPending
	}

	ok, err := s.actions.Reject(ctx, id, rejecterID, reason)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrActionNotPending
	}

	s.recordStatusChange(ctx, action, models.ActionStatusCancelled, &rejecterID, "action_rejected")
	return nil
}

func (s *ActionService) Cancel(ctx context.Context, id, cancellerID uuid.UUID, reason *string) error {
	action, err := s.actions.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if action.Status != models.ActionStatusPending {
		return models.ErrActionNotPending
	}

	ok, err := s.actions.Cancel(ctx, id, cancellerID, reason)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrActionNotPending
	}

	s.recordStatusChange(ctx, action, models.ActionStatusCancelled, &cancellerID, "action_cancelled")
	return nil
}

func (s *ActionService) recordStatusChange(ctx context.Context, action *models.ScheduledAction, newStatus string, actorID *uuid.UUID, eventType string) {
	_ = s.audit.Log(ctx, models.LifecycleEvent{
		OrgID:       action.OrgID,
		ActorUserID: actorID,
		ActorType:   "user",
		Category:    models.AuditCategoryScheduler,
		EventType:   eventType,
		EntityType:  "scheduled_action",
		EntityID:    &action.ID,
		Details:     map[string]any{"old_status": action.Status, "new_status": newStatus},
	})

	_ = s.publisher.Publish(ctx, events.StreamActions, events.Event{
		Type: events.EventActionStatusChanged,
		Payload: map[string]any{
			"action_id":  action.ID.String(),
			"org_id":     action.OrgID.String(),
			"old_status": action.Status,
			"new_status": newStatus,
		},
	})
}
