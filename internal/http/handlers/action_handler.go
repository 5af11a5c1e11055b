package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/helios-hq/backend/internal/http/dto"
	"github.com/helios-hq/backend/internal/middleware"
	"github.com/helios-hq/backend/internal/models"
	"github.com/helios-hq/backend/internal/repositories"
	"github.com/helios-hq/backend/internal/services"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type ActionHandler struct {
	actionService *services.ActionService
	log           *zap.Logger
}

func NewActionHandler(actionService *services.ActionService, log *zap.Logger) *ActionHandler {
	return &ActionHandler{actionService: actionService, log: log}
}

func (h *ActionHandler) ScheduleAction(c *fiber.Ctx) error {
	var req dto.ScheduleActionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.ActionType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "action_type is required"})
	}
	if req.ScheduledFor.IsZero() {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "scheduled_for is required"})
	}

	input := services.ScheduleActionInput{
		OrgID:               middleware.GetOrgID(c),
		CreatedBy:           middleware.GetUserID(c),
		ActionType:          req.ActionType,
		TargetEmail:         req.TargetEmail,
		TargetFirstName:     req.TargetFirstName,
		TargetLastName:      req.TargetLastName,
		TargetPersonalEmail: req.TargetPersonalEmail,
		ConfigOverrides:     req.ConfigOverrides,
		ScheduledFor:        req.ScheduledFor,
		IsRecurring:         req.IsRecurring,
		RecurrenceInterval:  req.RecurrenceInterval,
		RecurrenceUntil:     req.RecurrenceUntil,
		RequiresApproval:    req.RequiresApproval,
		MaxRetries:          req.MaxRetries,
	}

	var err error
	if input.UserID, err = parseOptionalUUID(req.UserID, "user_id"); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	if input.TemplateID, err = parseOptionalUUID(req.TemplateID, "template_id"); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	if input.DependsOnActionID, err = parseOptionalUUID(req.DependsOnActionID, "depends_on_action_id"); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	action, err := h.actionService.Schedule(c.Context(), input)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: action})
}

func (h *ActionHandler) GetAction(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid action id"})
	}

	action, err := h.actionService.Get(c.Context(), id)
	if err != nil || action.OrgID != middleware.GetOrgID(c) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "action not found"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: action})
}

func (h *ActionHandler) ListActions(c *fiber.Ctx) error {
	filter := repositories.ActionFilter{
		OrgID:  middleware.GetOrgID(c),
		Limit:  20,
		Offset: 0,
	}

	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}
	if v := c.Query("status"); v != "" {
		filter.Status = &v
	}
	if v := c.Query("action_type"); v != "" {
		filter.ActionType = &v
	}
	if v := c.Query("user_id"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			filter.UserID = &id
		}
	}

	actions, total, err := h.actionService.List(c.Context(), filter)
	if err != nil {
		h.log.Error("list actions failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.ListResponse{OK: true, Data: actions, Total: total})
}

func (h *ActionHandler) UpdateAction(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid action id"})
	}
	if ok, err := h.requireOrgAction(c, id); !ok {
		return err
	}

	var req dto.UpdateActionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	patch := services.UpdateActionInput{
		ScheduledFor:       req.ScheduledFor,
		ConfigOverrides:    req.ConfigOverrides,
		RequiresApproval:   req.RequiresApproval,
		MaxRetries:         req.MaxRetries,
		IsRecurring:        req.IsRecurring,
		RecurrenceInterval: req.RecurrenceInterval,
		RecurrenceUntil:    req.RecurrenceUntil,
	}
	if patch.DependsOnActionID, err = parseOptionalUUID(req.DependsOnActionID, "depends_on_action_id"); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	action, err := h.actionService.Update(c.Context(), id, patch)
	if err != nil {
		return h.actionError(c, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: action})
}

func (h *ActionHandler) ApproveAction(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid action id"})
	}
	if ok, err := h.requireOrgAction(c, id); !ok {
		return err
	}

	var req dto.ApproveActionRequest
	_ = c.BodyParser(&req) // empty body is fine

	if err := h.actionService.Approve(c.Context(), id, middleware.GetUserID(c), req.Notes); err != nil {
		return h.actionError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *ActionHandler) RejectAction(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid action id"})
	}
	if ok, err := h.requireOrgAction(c, id); !ok {
		return err
	}

	var req dto.RejectActionRequest
	_ = c.BodyParser(&req)

	if err := h.actionService.Reject(c.Context(), id, middleware.GetUserID(c), req.Reason); err != nil {
		return h.actionError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *ActionHandler) CancelAction(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid action id"})
	}
	if ok, err := h.requireOrgAction(c, id); !ok {
		return err
	}

	var req dto.CancelActionRequest
	_ = c.BodyParser(&req)

	if err := h.actionService.Cancel(c.Context(), id, middleware.GetUserID(c), req.Reason); err != nil {
		return h.actionError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *ActionHandler) PendingApprovals(c *fiber.Ctx) error {
	actions, err := h.actionService.PendingApprovals(c.Context(), middleware.GetOrgID(c))
	if err != nil {
		h.log.Error("pending approvals failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.ListResponse{OK: true, Data: actions, Total: len(actions)})
}

func (h *ActionHandler) GetActionEvents(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid action id"})
	}
	if ok, err := h.requireOrgAction(c, id); !ok {
		return err
	}

	entries, err := h.actionService.GetEvents(c.Context(), id)
	if err != nil {
		h.log.Error("get action events failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.ListResponse{OK: true, Data: entries, Total: len(entries)})
}

// requireOrgAction rejects cross-org access before any mutation runs. When ok
// is false the 404 response has already been written.
func (h *ActionHandler) requireOrgAction(c *fiber.Ctx, id uuid.UUID) (bool, error) {
	action, err := h.actionService.Get(c.Context(), id)
	if err != nil || action.OrgID != middleware.GetOrgID(c) {
		return false, c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "action not found"})
	}
	return true, nil
}

func (h *ActionHandler) actionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "action not found"})
	case errors.Is(err, models.ErrActionNotPending),
		errors.Is(err, models.ErrAlreadyApproved):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrApprovalNotRequired):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	default:
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
}

func parseOptionalUUID(s *string, field string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+field)
	}
	return &id, nil
}
