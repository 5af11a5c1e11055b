package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/helios-hq/backend/internal/events"
	"github.com/helios-hq/backend/internal/models"
	"github.com/helios-hq/backend/internal/repositories"
	"github.com/jackc/pgx/v5"
)

// fakeClock is shared between the fake store and the service under test so
// due-set evaluation and backoff computation see the same time.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeActionStore is an in-memory ActionStore. Gate evaluation reuses the
// model predicates that the SQL due-query mirrors.
type fakeActionStore struct {
	clock     *fakeClock
	actions   map[uuid.UUID]*models.ScheduledAction
	failClaim map[uuid.UUID]bool
}

func newFakeActionStore(clock *fakeClock) *fakeActionStore {
	return &fakeActionStore{
		clock:     clock,
		actions:   make(map[uuid.UUID]*models.ScheduledAction),
		failClaim: make(map[uuid.UUID]bool),
	}
}

func (s *fakeActionStore) put(a *models.ScheduledAction) *models.ScheduledAction {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = models.ActionStatusPending
	}
	a.CreatedAt = s.clock.Now()
	a.UpdatedAt = a.CreatedAt
	s.actions[a.ID] = a
	return a
}

func (s *fakeActionStore) Create(_ context.Context, a *models.ScheduledAction) error {
	a.ID = uuid.New()
	a.CreatedAt = s.clock.Now()
	a.UpdatedAt = a.CreatedAt
	copied := *a
	s.actions[a.ID] = &copied
	return nil
}

func (s *fakeActionStore) GetByID(_ context.Context, id uuid.UUID) (*models.ScheduledAction, error) {
	a, ok := s.actions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *a
	return &copied, nil
}

func (s *fakeActionStore) List(_ context.Context, f repositories.ActionFilter) ([]models.ScheduledAction, int, error) {
	var out []models.ScheduledAction
	for _, a := range s.actions {
		if a.OrgID != f.OrgID {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.ActionType != nil && a.ActionType != *f.ActionType {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	return out, len(out), nil
}

func (s *fakeActionStore) GetDue(_ context.Context, orgID *uuid.UUID, limit int) ([]models.ScheduledAction, error) {
	now := s.clock.Now()
	var due []models.ScheduledAction
	for _, a := range s.actions {
		if orgID != nil && a.OrgID != *orgID {
			continue
		}
		if !a.IsDue(now) || !a.ApprovalSatisfied() {
			continue
		}
		var dep *models.ScheduledAction
		if a.DependsOnActionID != nil {
			dep = s.actions[*a.DependsOnActionID]
		}
		if !a.DependencySatisfied(dep) {
			continue
		}
		due = append(due, *a)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledFor.Before(due[j].ScheduledFor) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *fakeActionStore) GetPendingApproval(_ context.Context, orgID uuid.UUID) ([]models.ScheduledAction, error) {
	var out []models.ScheduledAction
	for _, a := range s.actions {
		if a.OrgID == orgID && a.Status == models.ActionStatusPending &&
			a.RequiresApproval && a.ApprovedAt == nil && a.RejectedAt == nil {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	return out, nil
}

func (s *fakeActionStore) GetPendingApprovalOlderThan(_ context.Context, cutoff time.Time) ([]models.ScheduledAction, error) {
	var out []models.ScheduledAction
	for _, a := range s.actions {
		if a.Status == models.ActionStatusPending && a.RequiresApproval &&
			a.ApprovedAt == nil && a.RejectedAt == nil && a.CreatedAt.Before(cutoff) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *fakeActionStore) ClaimPending(_ context.Context, id uuid.UUID) (bool, error) {
	a, ok := s.actions[id]
	if !ok || a.Status != models.ActionStatusPending || s.failClaim[id] {
		return false, nil
	}
	now := s.clock.Now()
	a.Status = models.ActionStatusInProgress
	a.StartedAt = &now
	a.UpdatedAt = now
	return true, nil
}

func (s *fakeActionStore) MarkCompleted(_ context.Context, id uuid.UUID) error {
	a, ok := s.actions[id]
	if !ok {
		return pgx.ErrNoRows
	}
	now := s.clock.Now()
	a.Status = models.ActionStatusCompleted
	a.CompletedAt = &now
	a.ErrorMessage = nil
	a.NextRetryAt = nil
	a.UpdatedAt = now
	return nil
}

func (s *fakeActionStore) MarkFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	a, ok := s.actions[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.Status = models.ActionStatusFailed
	a.ErrorMessage = &errMsg
	a.UpdatedAt = s.clock.Now()
	return nil
}

func (s *fakeActionStore) ScheduleRetry(_ context.Context, id uuid.UUID, retryCount int, nextRetryAt time.Time, errMsg string) error {
	a, ok := s.actions[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.Status = models.ActionStatusPending
	a.StartedAt = nil
	a.RetryCount = retryCount
	a.NextRetryAt = &nextRetryAt
	a.ErrorMessage = &errMsg
	a.UpdatedAt = s.clock.Now()
	return nil
}

func (s *fakeActionStore) Rearm(_ context.Context, id uuid.UUID, nextFor, rearmedAt time.Time) error {
	a, ok := s.actions[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.Status = models.ActionStatusPending
	a.StartedAt = nil
	a.CompletedAt = nil
	a.ScheduledFor = nextFor
	a.LastRecurrenceAt = &rearmedAt
	a.RetryCount = 0
	a.NextRetryAt = nil
	a.ErrorMessage = nil
	a.UpdatedAt = s.clock.Now()
	return nil
}

func (s *fakeActionStore) SetUserID(_ context.Context, id, userID uuid.UUID) error {
	a, ok := s.actions[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.UserID = &userID
	return nil
}

func (s *fakeActionStore) UpdatePending(_ context.Context, updated *models.ScheduledAction) (bool, error) {
	a, ok := s.actions[updated.ID]
	if !ok || a.Status != models.ActionStatusPending {
		return false, nil
	}
	a.ScheduledFor = updated.ScheduledFor
	a.ActionConfig = updated.ActionConfig
	a.ConfigOverrides = updated.ConfigOverrides
	a.RequiresApproval = updated.RequiresApproval
	a.MaxRetries = updated.MaxRetries
	a.IsRecurring = updated.IsRecurring
	a.RecurrenceInterval = updated.RecurrenceInterval
	a.RecurrenceUntil = updated.RecurrenceUntil
	a.DependsOnActionID = updated.DependsOnActionID
	a.UpdatedAt = s.clock.Now()
	return true, nil
}

func (s *fakeActionStore) Approve(_ context.Context, id, approvedBy uuid.UUID, notes *string) (bool, error) {
	a, ok := s.actions[id]
	if !ok || a.Status != models.ActionStatusPending || !a.RequiresApproval || a.ApprovedAt != nil {
		return false, nil
	}
	now := s.clock.Now()
	a.ApprovedBy = &approvedBy
	a.ApprovedAt = &now
	a.ApprovalNotes = notes
	a.UpdatedAt = now
	return true, nil
}

func (s *fakeActionStore) Reject(_ context.Context, id, rejectedBy uuid.UUID, reason *string) (bool, error) {
	a, ok := s.actions[id]
	if !ok || a.Status != models.ActionStatusPending {
		return false, nil
	}
	now := s.clock.Now()
	a.Status = models.ActionStatusCancelled
	a.RejectedBy = &rejectedBy
	a.RejectedAt = &now
	a.RejectionReason = reason
	a.UpdatedAt = now
	return true, nil
}

func (s *fakeActionStore) Cancel(_ context.Context, id, cancelledBy uuid.UUID, reason *string) (bool, error) {
	a, ok := s.actions[id]
	if !ok || a.Status != models.ActionStatusPending {
		return false, nil
	}
	now := s.clock.Now()
	a.Status = models.ActionStatusCancelled
	a.CancelledBy = &cancelledBy
	a.CancelledAt = &now
	a.CancelReason = reason
	a.UpdatedAt = now
	return true, nil
}

type fakeUserStore struct {
	users map[uuid.UUID]*models.OrgUser
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[uuid.UUID]*models.OrgUser)}
}

func (s *fakeUserStore) put(u *models.OrgUser) *models.OrgUser {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	s.users[u.ID] = u
	return u
}

func (s *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*models.OrgUser, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *u
	return &copied, nil
}

func (s *fakeUserStore) SetLifecycleStatus(_ context.Context, id uuid.UUID, userStatus string, isActive bool, deletedAt *time.Time) error {
	u, ok := s.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.UserStatus = userStatus
	u.IsActive = isActive
	u.DeletedAt = deletedAt
	return nil
}

type fakeAuditLog struct {
	entries []models.LifecycleEvent
}

func (l *fakeAuditLog) Log(_ context.Context, entry models.LifecycleEvent) error {
	l.entries = append(l.entries, entry)
	return nil
}

func (l *fakeAuditLog) GetByEntity(_ context.Context, entityType string, entityID uuid.UUID, _, _ int) ([]models.LifecycleEvent, error) {
	var out []models.LifecycleEvent
	for _, e := range l.entries {
		if e.EntityType == entityType && e.EntityID != nil && *e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakePublisher struct {
	published []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, _ string, event events.Event) error {
	p.published = append(p.published, event)
	return nil
}

type fakeTemplateStore struct {
	templates map[uuid.UUID]*models.ActionTemplate
	err       error
}

func newFakeTemplateStore() *fakeTemplateStore {
	return &fakeTemplateStore{templates: make(map[uuid.UUID]*models.ActionTemplate)}
}

func (s *fakeTemplateStore) put(t *models.ActionTemplate) *models.ActionTemplate {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	s.templates[t.ID] = t
	return t
}

func (s *fakeTemplateStore) GetByID(_ context.Context, id uuid.UUID) (*models.ActionTemplate, error) {
	t, ok := s.templates[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return t, nil
}

func (s *fakeTemplateStore) GetDefaultForType(_ context.Context, orgID uuid.UUID, actionType string) (*models.ActionTemplate, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, t := range s.templates {
		if t.OrgID == orgID && t.ActionType == actionType && t.IsDefault {
			return t, nil
		}
	}
	return nil, pgx.ErrNoRows
}

// scriptedExecutor replays a queue of results; once the queue drains it keeps
// returning the last one. A nil result entry makes the call panic, for the
// batch-isolation tests.
type scriptedExecutor struct {
	results []*ExecutionResult
	calls   []uuid.UUID
}

func (e *scriptedExecutor) Execute(_ context.Context, action *models.ScheduledAction) ExecutionResult {
	e.calls = append(e.calls, action.ID)
	if len(e.results) == 0 {
		return ExecutionResult{Success: true}
	}
	res := e.results[0]
	if len(e.results) > 1 {
		e.results = e.results[1:]
	}
	if res == nil {
		panic("scripted executor failure")
	}
	return *res
}

type fakeOnboardingExecutor struct {
	result *OnboardingResult
	err    error
	calls  []OnboardingRequest
}

func (e *fakeOnboardingExecutor) ExecuteOnboarding(_ context.Context, req OnboardingRequest) (*OnboardingResult, error) {
	e.calls = append(e.calls, req)
	return e.result, e.err
}

type fakeOffboardingExecutor struct {
	result *OffboardingResult
	err    error
	calls  []OffboardingRequest
}

func (e *fakeOffboardingExecutor) ExecuteFromTemplate(_ context.Context, req OffboardingRequest) (*OffboardingResult, error) {
	e.calls = append(e.calls, req)
	return e.result, e.err
}
