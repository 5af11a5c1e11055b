package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/helios-hq/backend/internal/models"
	"go.uber.org/zap"
)

func newTestActionService(clock *fakeClock) (*ActionService, *fakeActionStore, *fakeTemplateStore, *fakeAuditLog, *fakePublisher) {
	store := newFakeActionStore(clock)
	templates := newFakeTemplateStore()
	audit := &fakeAuditLog{}
	publisher := &fakePublisher{}
	svc := NewActionService(store, templates, audit, publisher, testConfig(), zap.NewNop())
	return svc, store, templates, audit, publisher
}

func TestScheduleAppliesTemplateAndOverrides(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	svc, _, templates, audit, _ := newTestActionService(clock)

	orgID := uuid.New()
	tpl := templates.put(&models.ActionTemplate{
		OrgID:      orgID,
		Name:       "standard offboarding",
		ActionType: models.ActionTypeOffboard,
		Config:     map[string]any{"revoke_sessions": true, "forward_email_days": 30},
		IsDefault:  true,
	})

	userID := uuid.New()
	action, err := svc.Schedule(context.Background(), ScheduleActionInput{
		OrgID:           orgID,
		CreatedBy:       uuid.New(),
		ActionType:      models.ActionTypeOffboard,
		UserID:          &userID,
		ConfigOverrides: map[string]any{"forward_email_days": 90},
		ScheduledFor:    clock.Now().Add(72 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if action.TemplateID == nil || *action.TemplateID != tpl.ID {
		t.Errorf("template id = %v, want org default %s", action.TemplateID, tpl.ID)
	}
	if action.ActionConfig["revoke_sessions"] != true {
		t.Error("template baseline key lost in merge")
	}
	if action.ActionConfig["forward_email_days"] != 90 {
		t.Errorf("forward_email_days = %v, want override 90", action.ActionConfig["forward_email_days"])
	}
	if action.ConfigOverrides["forward_email_days"] != 90 {
		t.Error("override delta not retained")
	}
	if action.MaxRetries != 3 {
		t.Errorf("max retries = %d, want config default 3", action.MaxRetries)
	}
	if action.Status != models.ActionStatusPending {
		t.Errorf("status = %q, want pending", action.Status)
	}
	if len(audit.entries) != 1 || audit.entries[0].EventType != "action_scheduled" {
		t.Errorf("audit entries = %+v", audit.entries)
	}
}

func TestScheduleFailsWhenTemplateStoreUnavailable(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	svc, store, templates, _, _ := newTestActionService(clock)
	templates.err = errors.New("connection refused")

	userID := uuid.New()
	_, err := svc.Schedule(context.Background(), ScheduleActionInput{
		OrgID:        uuid.New(),
		CreatedBy:    uuid.New(),
		ActionType:   models.ActionTypeOffboard,
		UserID:       &userID,
		ScheduledFor: clock.Now().Add(72 * time.Hour),
	})
	if err == nil {
		t.Fatal("expected Schedule to fail when the default template lookup errors")
	}
	if len(store.actions) != 0 {
		t.Errorf("action was created despite template store outage: %d stored", len(store.actions))
	}
}

func TestScheduleWithoutTemplateKeepsOverridesOnly(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	svc, _, _, _, _ := newTestActionService(clock)

	userID := uuid.New()
	action, err := svc.Schedule(context.Background(), ScheduleActionInput{
		OrgID:           uuid.New(),
		CreatedBy:       uuid.New(),
		ActionType:      models.ActionTypeSuspend,
		UserID:          &userID,
		ConfigOverrides: map[string]any{"notify_manager": true},
		ScheduledFor:    clock.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if action.TemplateID != nil {
		t.Errorf("template id = %v, want nil", action.TemplateID)
	}
	if action.ActionConfig["notify_manager"] != true {
		t.Errorf("action config = %v", action.ActionConfig)
	}
}

func TestScheduleValidation(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	svc, store, templates, _, _ := newTestActionService(clock)

	orgID := uuid.New()
	otherOrg := uuid.New()
	userID := uuid.New()
	when := clock.Now().Add(time.Hour)

	foreignDep := store.put(&models.ScheduledAction{
		OrgID:        otherOrg,
		ActionType:   models.ActionTypeOnboard,
		ScheduledFor: when,
		CreatedBy:    uuid.New(),
	})
	wrongTypeTpl := templates.put(&models.ActionTemplate{
		OrgID:      orgID,
		ActionType: models.ActionTypeOnboard,
		Config:     map[string]any{},
	})
	monthly := models.RecurrenceMonthly

	tests := []struct {
		name  string
		input ScheduleActionInput
	}{
		{
			name: "unknown action type",
			input: ScheduleActionInput{
				OrgID: orgID, CreatedBy: userID,
				ActionType: "promote", UserID: &userID, ScheduledFor: when,
			},
		},
		{
			name: "recurring without interval",
			input: ScheduleActionInput{
				OrgID: orgID, CreatedBy: userID,
				ActionType: models.ActionTypeSuspend, UserID: &userID,
				ScheduledFor: when, IsRecurring: true,
			},
		},
		{
			name: "dependency from another org",
			input: ScheduleActionInput{
				OrgID: orgID, CreatedBy: userID,
				ActionType: models.ActionTypeOffboard, UserID: &userID,
				ScheduledFor: when, DependsOnActionID: &foreignDep.ID,
			},
		},
		{
			name: "template for another action type",
			input: ScheduleActionInput{
				OrgID: orgID, CreatedBy: userID,
				ActionType: models.ActionTypeOffboard, UserID: &userID,
				ScheduledFor: when, TemplateID: &wrongTypeTpl.ID,
				IsRecurring: true, RecurrenceInterval: &monthly,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Schedule(context.Background(), tt.input); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestUpdatePendingRemergesOverrides(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	svc, _, templates, _, _ := newTestActionService(clock)

	orgID := uuid.New()
	templates.put(&models.ActionTemplate{
		OrgID:      orgID,
		ActionType: models.ActionTypeOffboard,
		Config:     map[string]any{"revoke_sessions": true, "forward_email_days": 30},
		IsDefault:  true,
	})

	userID := uuid.New()
	action, err := svc.Schedule(context.Background(), ScheduleActionInput{
		OrgID:           orgID,
		CreatedBy:       uuid.New(),
		ActionType:      models.ActionTypeOffboard,
		UserID:          &userID,
		ConfigOverrides: map[string]any{"forward_email_days": 90},
		ScheduledFor:    clock.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	newTime := clock.Now().Add(48 * time.Hour)
	updated, err := svc.Update(context.Background(), action.ID, UpdateActionInput{
		ScheduledFor:    &newTime,
		ConfigOverrides: map[string]any{"wipe_devices": true},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if !updated.ScheduledFor.Equal(newTime) {
		t.Errorf("scheduled_for = %v, want %v", updated.ScheduledFor, newTime)
	}
	if updated.ActionConfig["revoke_sessions"] != true {
		t.Error("template baseline lost on update")
	}
	if updated.ActionConfig["forward_email_days"] != 90 {
		t.Error("earlier override lost on update")
	}
	if updated.ActionConfig["wipe_devices"] != true || updated.ConfigOverrides["wipe_devices"] != true {
		t.Error("new override not applied to config and delta")
	}
}

func TestMutationsRejectNonPendingActions(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	svc, store, _, _, _ := newTestActionService(clock)

	actor := uuid.New()
	when := clock.Now()

	for _, status := range []string{
		models.ActionStatusInProgress,
		models.ActionStatusCompleted,
		models.ActionStatusFailed,
		models.ActionStatusCancelled,
	} {
		action := store.put(&models.ScheduledAction{
			OrgID:            uuid.New(),
			ActionType:       models.ActionTypeSuspend,
			ScheduledFor:     when,
			Status:           status,
			RequiresApproval: true,
			CreatedBy:        actor,
		})

		if _, err := svc.Update(context.Background(), action.ID, UpdateActionInput{ScheduledFor: &when}); err != models.ErrActionNotPending {
			t.Errorf("Update on %s: err = %v, want ErrActionNotPending", status, err)
		}
		if err := svc.Approve(context.Background(), action.ID, actor, nil); err != models.ErrActionNotPending {
			t.Errorf("Approve on %s: err = %v, want ErrActionNotPending", status, err)
		}
		if err := svc.Reject(context.Background(), action.ID, actor, nil); err != models.ErrActionNotPending {
			t.Errorf("Reject on %s: err = %v, want ErrActionNotPending", status, err)
		}
		if err := svc.Cancel(context.Background(), action.ID, actor, nil); err != models.ErrActionNotPending {
			t.Errorf("Cancel on %s: err = %v, want ErrActionNotPending", status, err)
		}
	}
}

func TestApproveValidations(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	svc, store, _, audit, _ := newTestActionService(clock)

	approver := uuid.New()

	plain := store.put(&models.ScheduledAction{
		OrgID:        uuid.New(),
		ActionType:   models.ActionTypeSuspend,
		ScheduledFor: clock.Now(),
		CreatedBy:    uuid.New(),
	})
	if err := svc.Approve(context.Background(), plain.ID, approver, nil); err != models.ErrApprovalNotRequired {
		t.Errorf("approve ungated action: err = %v, want ErrApprovalNotRequired", err)
	}

	gated := store.put(&models.ScheduledAction{
		OrgID:            uuid.New(),
		ActionType:       models.ActionTypeOffboard,
		ScheduledFor:     clock.Now(),
		RequiresApproval: true,
		CreatedBy:        uuid.New(),
	})
	notes := "reviewed with HR"
	if err := svc.Approve(context.Background(), gated.ID, approver, &notes); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	got, _ := store.GetByID(context.Background(), gated.ID)
	if got.ApprovedAt == nil || got.ApprovedBy == nil || *got.ApprovedBy != approver {
		t.Errorf("approval metadata not recorded: %+v", got)
	}
	if got.Status != models.ActionStatusPending {
		t.Errorf("status = %q, approval must not change status", got.Status)
	}
	if got.ApprovalNotes == nil || *got.ApprovalNotes != notes {
		t.Errorf("approval notes = %v", got.ApprovalNotes)
	}

	if err := svc.Approve(context.Background(), gated.ID, approver, nil); err != models.ErrAlreadyApproved {
		t.Errorf("second approve: err = %v, want ErrAlreadyApproved", err)
	}

	var found bool
	for _, e := range audit.entries {
		if e.EventType == "action_approved" && e.Category == models.AuditCategoryApproval {
			found = true
		}
	}
	if !found {
		t.Error("approval audit entry missing")
	}
}

func TestRejectCancelsWithRejectionMetadata(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	svc, store, _, _, publisher := newTestActionService(clock)

	rejecter := uuid.New()
	gated := store.put(&models.ScheduledAction{
		OrgID:            uuid.New(),
		ActionType:       models.ActionTypeDelete,
		ScheduledFor:     clock.Now(),
		RequiresApproval: true,
		CreatedBy:        uuid.New(),
	})

	reason := "user is on leave, not terminated"
	if err := svc.Reject(context.Background(), gated.ID, rejecter, &reason); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	got, _ := store.GetByID(context.Background(), gated.ID)
	if got.Status != models.ActionStatusCancelled {
		t.Fatalf("status = %q, want cancelled", got.Status)
	}
	if got.RejectedBy == nil || *got.RejectedBy != rejecter || got.RejectedAt == nil {
		t.Errorf("rejection metadata not recorded: %+v", got)
	}
	if got.RejectionReason == nil || *got.RejectionReason != reason {
		t.Errorf("rejection reason = %v", got.RejectionReason)
	}

	if len(publisher.published) != 1 {
		t.Fatalf("published %d events, want 1", len(publisher.published))
	}
	if publisher.published[0].Payload["new_status"] != models.ActionStatusCancelled {
		t.Errorf("event payload = %+v", publisher.published[0].Payload)
	}
}

func TestCancelRecordsActorAndReason(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	svc, store, _, audit, _ := newTestActionService(clock)

	canceller := uuid.New()
	action := store.put(&models.ScheduledAction{
		OrgID:        uuid.New(),
		ActionType:   models.ActionTypeSuspend,
		ScheduledFor: clock.Now().Add(time.Hour),
		CreatedBy:    uuid.New(),
	})

	reason := "rescheduled manually"
	if err := svc.Cancel(context.Background(), action.ID, canceller, &reason); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	got, _ := store.GetByID(context.Background(), action.ID)
	if got.Status != models.ActionStatusCancelled {
		t.Fatalf("status = %q, want cancelled", got.Status)
	}
	if got.CancelledBy == nil || *got.CancelledBy != canceller || got.CancelReason == nil {
		t.Errorf("cancel metadata not recorded: %+v", got)
	}

	var found bool
	for _, e := range audit.entries {
		if e.EventType == "action_cancelled" {
			found = true
		}
	}
	if !found {
		t.Error("cancel audit entry missing")
	}
}

func TestPendingApprovalsListsOnlyUnresolved(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	svc, store, _, _, _ := newTestActionService(clock)

	orgID := uuid.New()
	now := clock.Now()

	waiting := store.put(&models.ScheduledAction{
		OrgID: orgID, ActionType: models.ActionTypeOffboard,
		ScheduledFor: now, RequiresApproval: true, CreatedBy: uuid.New(),
	})
	approved := store.put(&models.ScheduledAction{
		OrgID: orgID, ActionType: models.ActionTypeOffboard,
		ScheduledFor: now, RequiresApproval: true, CreatedBy: uuid.New(),
	})
	approved.ApprovedAt = &now
	store.put(&models.ScheduledAction{
		OrgID: orgID, ActionType: models.ActionTypeSuspend,
		ScheduledFor: now, CreatedBy: uuid.New(),
	})
	store.put(&models.ScheduledAction{
		OrgID: uuid.New(), ActionType: models.ActionTypeOffboard,
		ScheduledFor: now, RequiresApproval: true, CreatedBy: uuid.New(),
	})

	got, err := svc.PendingApprovals(context.Background(), orgID)
	if err != nil {
		t.Fatalf("PendingApprovals: %v", err)
	}
	if len(got) != 1 || got[0].ID != waiting.ID {
		t.Errorf("pending approvals = %+v, want only the unresolved one", got)
	}
}
