package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/helios-hq/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ActionRepo struct {
	pool *pgxpool.Pool
}

func NewActionRepo(pool *pgxpool.Pool) *ActionRepo {
	return &ActionRepo{pool: pool}
}

const actionColumns = `
	id, org_id, user_id, target_email, target_first_name, target_last_name, target_personal_email,
	action_type, template_id, action_config, config_overrides,
	scheduled_for, is_recurring, recurrence_interval, recurrence_until, last_recurrence_at,
	status, retry_count, max_retries, next_retry_at, error_message,
	requires_approval, approved_by, approved_at, approval_notes, rejected_by, rejected_at, rejection_reason,
	depends_on_action_id, started_at, completed_at,
	created_by, created_at, updated_at, cancelled_by, cancelled_at, cancel_reason`

func scanAction(row pgx.Row) (*models.ScheduledAction, error) {
	var a models.ScheduledAction
	var configBytes, overridesBytes []byte
	err := row.Scan(
		&a.ID, &a.OrgID, &a.UserID, &a.TargetEmail, &a.TargetFirstName, &a.TargetLastName, &a.TargetPersonalEmail,
		&a.ActionType, &a.TemplateID, &configBytes, &overridesBytes,
		&a.ScheduledFor, &a.IsRecurring, &a.RecurrenceInterval, &a.RecurrenceUntil, &a.LastRecurrenceAt,
		&a.Status, &a.RetryCount, &a.MaxRetries, &a.NextRetryAt, &a.ErrorMessage,
		&a.RequiresApproval, &a.ApprovedBy, &a.ApprovedAt, &a.ApprovalNotes, &a.RejectedBy, &a.RejectedAt, &a.RejectionReason,
		&a.DependsOnActionID, &a.StartedAt, &a.CompletedAt,
		&a.CreatedBy, &a.CreatedAt, &a.UpdatedAt, &a.CancelledBy, &a.CancelledAt, &a.CancelReason,
	)
	if err != nil {
		return nil, err
	}
	if len(configBytes) > 0 {
		_ = json.Unmarshal(configBytes, &a.ActionConfig)
	}
	if len(overridesBytes) > 0 {
		_ = json.Unmarshal(overridesBytes, &a.ConfigOverrides)
	}
	return &a, nil
}

func collectActions(rows pgx.Rows) ([]models.ScheduledAction, error) {
	defer rows.Close()
	var actions []models.ScheduledAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, *a)
	}
	return actions, rows.Err()
}

func (r *ActionRepo) Create(ctx context.Context, a *models.ScheduledAction) error {
	configBytes, _ := json.Marshal(a.ActionConfig)
	overridesBytes, _ := json.Marshal(a.ConfigOverrides)
	return r.pool.QueryRow(ctx, `
		INSERT INTO scheduled_user_actions (
			org_id, user_id, target_email, target_first_name, target_last_name, target_personal_email,
			action_type, template_id, action_config, config_overrides,
			scheduled_for, is_recurring, recurrence_interval, recurrence_until,
			status, max_retries, requires_approval, depends_on_action_id, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id, created_at, updated_at
	`, a.OrgID, a.UserID, a.TargetEmail, a.TargetFirstName, a.TargetLastName, a.TargetPersonalEmail,
		a.ActionType, a.TemplateID, configBytes, overridesBytes,
		a.ScheduledFor, a.IsRecurring, a.RecurrenceInterval, a.RecurrenceUntil,
		a.Status, a.MaxRetries, a.RequiresApproval, a.DependsOnActionID, a.CreatedBy,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (r *ActionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ScheduledAction, error) {
	return scanAction(r.pool.QueryRow(ctx,
		`SELECT `+actionColumns+` FROM scheduled_user_actions WHERE id = $1`, id))
}

type ActionFilter struct {
	OrgID      uuid.UUID
	Status     *string
	ActionType *string
	UserID     *uuid.UUID
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// List returns the filtered page plus the unpaginated match count.
func (r *ActionRepo) List(ctx context.Context, f ActionFilter) ([]models.ScheduledAction, int, error) {
	where := "WHERE org_id = $1"
	args := []any{f.OrgID}
	argIdx := 2

	if f.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *f.Status)
		argIdx++
	}
	if f.ActionType != nil {
		where += fmt.Sprintf(" AND action_type = $%d", argIdx)
		args = append(args, *f.ActionType)
		argIdx++
	}
	if f.UserID != nil {
		where += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, *f.UserID)
		argIdx++
	}
	if f.From != nil {
		where += fmt.Sprintf(" AND scheduled_for >= $%d", argIdx)
		args = append(args, *f.From)
		argIdx++
	}
	if f.To != nil {
		where += fmt.Sprintf(" AND scheduled_for <= $%d", argIdx)
		args = append(args, *f.To)
		argIdx++
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM scheduled_user_actions "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := fmt.Sprintf("SELECT %s FROM scheduled_user_actions %s ORDER BY scheduled_for ASC LIMIT $%d OFFSET $%d",
		actionColumns, where, argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	actions, err := collectActions(rows)
	if err != nil {
		return nil, 0, err
	}
	return actions, total, nil
}

// GetDue returns pending actions whose schedule has arrived and whose approval
// and dependency gates are satisfied. Both gates live in the query so they are
// re-evaluated on every poll.
func (r *ActionRepo) GetDue(ctx context.Context, orgID *uuid.UUID, limit int) ([]models.ScheduledAction, error) {
	query := `
		SELECT ` + actionColumns + `
		FROM scheduled_user_actions a
		WHERE a.status = 'pending'
		  AND a.scheduled_for <= now()
		  AND (a.next_retry_at IS NULL OR a.next_retry_at <= now())
		  AND (a.requires_approval = false OR a.approved_at IS NOT NULL)
		  AND (a.depends_on_action_id IS NULL OR EXISTS (
			SELECT 1 FROM scheduled_user_actions dep
			WHERE dep.id = a.depends_on_action_id AND dep.status = 'completed'))
	`
	args := []any{}
	argIdx := 1
	if orgID != nil {
		query += fmt.Sprintf(" AND a.org_id = $%d", argIdx)
		args = append(args, *orgID)
		argIdx++
	}

	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" ORDER BY a.scheduled_for ASC LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectActions(rows)
}

func (r *ActionRepo) GetPendingApproval(ctx context.Context, orgID uuid.UUID) ([]models.ScheduledAction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+actionColumns+`
		FROM scheduled_user_actions
		WHERE org_id = $1 AND status = 'pending' AND requires_approval = true
		  AND approved_at IS NULL AND rejected_at IS NULL
		ORDER BY scheduled_for ASC
	`, orgID)
	if err != nil {
		return nil, err
	}
	return collectActions(rows)
}

// GetPendingApprovalOlderThan feeds the approval-reminder sweep across all orgs.
func (r *ActionRepo) GetPendingApprovalOlderThan(ctx context.Context, cutoff time.Time) ([]models.ScheduledAction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+actionColumns+`
		FROM scheduled_user_actions
		WHERE status = 'pending' AND requires_approval = true
		  AND approved_at IS NULL AND rejected_at IS NULL
		  AND created_at < $1
		ORDER BY created_at ASC
	`, cutoff)
	if err != nil {
		return nil, err
	}
	return collectActions(rows)
}

// ClaimPending atomically moves a pending action to in_progress. Returns false
// when the row was mutated between the due query and the claim (cancelled,
// approved away, or picked up by another poller).
func (r *ActionRepo) ClaimPending(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_user_actions
		SET status = 'in_progress', started_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ActionRepo) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scheduled_user_actions
		SET status = 'completed', completed_at = now(), error_message = NULL,
		    next_retry_at = NULL, updated_at = now()
		WHERE id = $1
	`, id)
	return err
}

func (r *ActionRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scheduled_user_actions
		SET status = 'failed', error_message = $2, updated_at = now()
		WHERE id = $1
	`, id, errMsg)
	return err
}

func (r *ActionRepo) ScheduleRetry(ctx context.Context, id uuid.UUID, retryCount int, nextRetryAt time.Time, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scheduled_user_actions
		SET status = 'pending', started_at = NULL, retry_count = $2,
		    next_retry_at = $3, error_message = $4, updated_at = now()
		WHERE id = $1
	`, id, retryCount, nextRetryAt, errMsg)
	return err
}

// Rearm resets a completed recurring action in place for its next occurrence.
func (r *ActionRepo) Rearm(ctx context.Context, id uuid.UUID, nextFor, rearmedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scheduled_user_actions
		SET status = 'pending', started_at = NULL, completed_at = NULL,
		    scheduled_for = $2, last_recurrence_at = $3,
		    retry_count = 0, next_retry_at = NULL, error_message = NULL, updated_at = now()
		WHERE id = $1
	`, id, nextFor, rearmedAt)
	return err
}

// SetUserID back-fills the created user id after a successful onboard.
func (r *ActionRepo) SetUserID(ctx context.Context, id, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scheduled_user_actions SET user_id = $2, updated_at = now() WHERE id = $1
	`, id, userID)
	return err
}

// UpdatePending writes the mutable fields of a pending action. The status
// guard keeps a concurrent claim or cancel from being overwritten.
func (r *ActionRepo) UpdatePending(ctx context.Context, a *models.ScheduledAction) (bool, error) {
	configBytes, _ := json.Marshal(a.ActionConfig)
	overridesBytes, _ := json.Marshal(a.ConfigOverrides)
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_user_actions
		SET scheduled_for = $2, action_config = $3, config_overrides = $4,
		    requires_approval = $5, max_retries = $6,
		    is_recurring = $7, recurrence_interval = $8, recurrence_until = $9,
		    depends_on_action_id = $10, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, a.ID, a.ScheduledFor, configBytes, overridesBytes,
		a.RequiresApproval, a.MaxRetries,
		a.IsRecurring, a.RecurrenceInterval, a.RecurrenceUntil,
		a.DependsOnActionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ActionRepo) Approve(ctx context.Context, id, approvedBy uuid.UUID, notes *string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_user_actions
		SET approved_by = $2, approved_at = now(), approval_notes = $3, updated_at = now()
		WHERE id = $1 AND status = 'pending' AND requires_approval = true AND approved_at IS NULL
	`, id, approvedBy, notes)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Reject cancels a pending approval-gated action and records why.
func (r *ActionRepo) Reject(ctx context.Context, id, rejectedBy uuid.UUID, reason *string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_user_actions
		SET status = 'cancelled', rejected_by = $2, rejected_at = now(),
		    rejection_reason = $3, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id, rejectedBy, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ActionRepo) Cancel(ctx context.Context, id, cancelledBy uuid.UUID, reason *string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_user_actions
		SET status = 'cancelled', cancelled_by = $2, cancelled_at = now(),
		    cancel_reason = $3, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id, cancelledBy, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
