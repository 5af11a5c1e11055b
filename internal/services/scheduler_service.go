package services

import (
	"context"
	"time"

	"github.com/helios-hq/backend/internal/config"
	"github.com/helios-hq/backend/internal/events"
	"github.com/helios-hq/backend/internal/models"
	"go.uber.org/zap"
)

// BatchResult aggregates one poll cycle. Skipped counts actions that left the
// pending state between the due query and the claim (cancelled, or taken by a
// concurrent poller).
type BatchResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// SchedulerService drives the lifecycle action engine: one call to
// ProcessPendingActions processes one batch of due actions sequentially.
// Ownership of the periodic trigger belongs to the caller (the worker).
type SchedulerService struct {
	actions   ActionStore
	executor  ActionExecutor
	audit     AuditLogger
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
	now       func() time.Time
}

func NewSchedulerService(
	actions ActionStore,
	executor ActionExecutor,
	audit AuditLogger,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *SchedulerService {
	return &SchedulerService{
		actions:   actions,
		executor:  executor,
		audit:     audit,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// ProcessPendingActions fetches up to limit due actions and processes them
// sequentially. A failing action never aborts the rest of the batch.
func (s *SchedulerService) ProcessPendingActions(ctx context.Context, limit int) (BatchResult, error) {
	if limit <= 0 {
		limit = s.cfg.SchedulerBatchLimit
	}

	due, err := s.actions.GetDue(ctx, nil, limit)
	if err != nil {
		return BatchResult{}, err
	}

	var result BatchResult
	for i := range due {
		action := &due[i]
		result.Processed++

		claimed, err := s.actions.ClaimPending(ctx, action.ID)
		if err != nil {
			s.log.Error("failed to claim action",
				zap.String("action_id", action.ID.String()), zap.Error(err))
			result.Skipped++
			continue
		}
		if !claimed {
			// Mutated between the due query and the claim.
			result.Skipped++
			continue
		}
		s.publishStatusChange(ctx, action, models.ActionStatusPending, models.ActionStatusInProgress)

		if s.processOne(ctx, action) {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	if result.Processed > 0 {
		s.log.Info("poll cycle complete",
			zap.Int("processed", result.Processed),
			zap.Int("succeeded", result.Succeeded),
			zap.Int("failed", result.Failed),
			zap.Int("skipped", result.Skipped),
		)
	}

	return result, nil
}

// processOne runs a claimed action to a settled state. A panic anywhere in
// the dispatch path is treated like any other execution failure.
func (s *SchedulerService) processOne(ctx context.Context, action *models.ScheduledAction) (succeeded bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic processing action",
				zap.String("action_id", action.ID.String()), zap.Any("panic", r))
			s.handleFailure(ctx, action, ExecutionResult{Error: "internal error during execution"})
			succeeded = false
		}
	}()

	res := s.executor.Execute(ctx, action)
	if !res.Success {
		s.handleFailure(ctx, action, res)
		return false
	}

	if err := s.actions.MarkCompleted(ctx, action.ID); err != nil {
		s.log.Error("failed to mark action completed",
			zap.String("action_id", action.ID.String()), zap.Error(err))
		return false
	}
	s.publishStatusChange(ctx, action, models.ActionStatusInProgress, models.ActionStatusCompleted)

	// Onboard reports the directory user it created; attach it so follow-up
	// actions can target the user by id.
	if res.CreatedUserID != nil && action.UserID == nil {
		if err := s.actions.SetUserID(ctx, action.ID, *res.CreatedUserID); err != nil {
			s.log.Error("failed to back-fill user id",
				zap.String("action_id", action.ID.String()), zap.Error(err))
		}
	}

	_ = s.audit.Log(ctx, models.LifecycleEvent{
		OrgID:      action.OrgID,
		ActorType:  "scheduler",
		Category:   models.AuditCategoryScheduler,
		EventType:  "action_completed",
		EntityType: "scheduled_action",
		EntityID:   &action.ID,
		Details:    map[string]any{"action_type": action.ActionType},
	})

	s.rearmIfRecurring(ctx, action)
	return true
}

// rearmIfRecurring resets a completed recurring action in place for its next
// occurrence. Recurrence terminates silently once the next occurrence falls
// past recurrence_until.
func (s *SchedulerService) rearmIfRecurring(ctx context.Context, action *models.ScheduledAction) {
	next, ok := action.NextOccurrence()
	if !ok {
		return
	}

	if err := s.actions.Rearm(ctx, action.ID, next, s.now()); err != nil {
		s.log.Error("failed to re-arm recurring action",
			zap.String("action_id", action.ID.String()), zap.Error(err))
		return
	}

	s.publishStatusChange(ctx, action, models.ActionStatusCompleted, models.ActionStatusPending)
	s.log.Info("recurring action re-armed",
		zap.String("action_id", action.ID.String()),
		zap.Time("next_scheduled_for", next),
	)
}

// handleFailure either schedules a retry with exponential backoff or promotes
// the action to terminal failed. Permanent failures skip the remaining retry
// budget: retrying a structurally invalid action cannot succeed.
func (s *SchedulerService) handleFailure(ctx context.Context, action *models.ScheduledAction, res ExecutionResult) {
	if res.Permanent || action.RetryCount >= action.MaxRetries {
		if err := s.actions.MarkFailed(ctx, action.ID, res.Error); err != nil {
			s.log.Error("failed to mark action failed",
				zap.String("action_id", action.ID.String()), zap.Error(err))
			return
		}
		s.publishStatusChange(ctx, action, models.ActionStatusInProgress, models.ActionStatusFailed)

		_ = s.audit.Log(ctx, models.LifecycleEvent{
			OrgID:      action.OrgID,
			ActorType:  "scheduler",
			Category:   models.AuditCategoryScheduler,
			EventType:  "action_failed",
			EntityType: "scheduled_action",
			EntityID:   &action.ID,
			Details: map[string]any{
				"error":       res.Error,
				"retry_count": action.RetryCount,
				"permanent":   res.Permanent,
			},
		})

		s.log.Warn("action failed terminally",
			zap.String("action_id", action.ID.String()),
			zap.String("action_type", action.ActionType),
			zap.String("error", res.Error),
			zap.Bool("permanent", res.Permanent),
		)
		return
	}

	delay := RetryDelay(action.RetryCount,
		s.cfg.RetryBackoffBaseMinutes, s.cfg.RetryBackoffFactor, s.cfg.RetryBackoffCapMinutes)
	nextRetryAt := s.now().Add(delay)

	if err := s.actions.ScheduleRetry(ctx, action.ID, action.RetryCount+1, nextRetryAt, res.Error); err != nil {
		s.log.Error("failed to schedule retry",
			zap.String("action_id", action.ID.String()), zap.Error(err))
		return
	}
	s.publishStatusChange(ctx, action, models.ActionStatusInProgress, models.ActionStatusPending)

	s.log.Info("action retry scheduled",
		zap.String("action_id", action.ID.String()),
		zap.Int("retry_count", action.RetryCount+1),
		zap.Time("next_retry_at", nextRetryAt),
	)
}

// ApprovalReminders publishes a reminder event for each approval-gated action
// that has been waiting longer than age. Consumed by the worker's hourly sweep.
func (s *SchedulerService) ApprovalReminders(ctx context.Context, age time.Duration) (int, error) {
	stale, err := s.actions.GetPendingApprovalOlderThan(ctx, s.now().Add(-age))
	if err != nil {
		return 0, err
	}

	for i := range stale {
		a := &stale[i]
		_ = s.publisher.Publish(ctx, events.StreamActions, events.Event{
			Type: events.EventActionApprovalRequired,
			Payload: map[string]any{
				"action_id":     a.ID.String(),
				"org_id":        a.OrgID.String(),
				"action_type":   a.ActionType,
				"waiting_since": a.CreatedAt,
			},
		})
	}
	return len(stale), nil
}

func (s *SchedulerService) publishStatusChange(ctx context.Context, action *models.ScheduledAction, oldStatus, newStatus string) {
	_ = s.publisher.Publish(ctx, events.StreamActions, events.Event{
		Type: events.EventActionStatusChanged,
		Payload: map[string]any{
			"action_id":  action.ID.String(),
			"org_id":     action.OrgID.String(),
			"old_status": oldStatus,
			"new_status": newStatus,
		},
	})
}
