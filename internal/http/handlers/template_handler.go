package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/helios-hq/backend/internal/http/dto"
	"github.com/helios-hq/backend/internal/middleware"
	"github.com/helios-hq/backend/internal/models"
	"github.com/helios-hq/backend/internal/repositories"
	"go.uber.org/zap"
)

type TemplateHandler struct {
	templateRepo *repositories.TemplateRepo
	log          *zap.Logger
}

func NewTemplateHandler(templateRepo *repositories.TemplateRepo, log *zap.Logger) *TemplateHandler {
	return &TemplateHandler{templateRepo: templateRepo, log: log}
}

func (h *TemplateHandler) CreateTemplate(c *fiber.Ctx) error {
	var req dto.CreateTemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "name is required"})
	}
	if !models.IsValidActionType(req.ActionType) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid action_type"})
	}

	tpl := &models.ActionTemplate{
		OrgID:      middleware.GetOrgID(c),
		Name:       req.Name,
		ActionType: req.ActionType,
		Config:     req.Config,
		IsDefault:  req.IsDefault,
	}
	if err := h.templateRepo.Create(c.Context(), tpl); err != nil {
		h.log.Error("create template failed", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "could not create template"})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: tpl})
}

func (h *TemplateHandler) GetTemplate(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid template id"})
	}

	tpl, err := h.templateRepo.GetByID(c.Context(), id)
	if err != nil || tpl.OrgID != middleware.GetOrgID(c) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "template not found"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: tpl})
}

func (h *TemplateHandler) ListTemplates(c *fiber.Ctx) error {
	templates, err := h.templateRepo.ListByOrg(c.Context(), middleware.GetOrgID(c))
	if err != nil {
		h.log.Error("list templates failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.ListResponse{OK: true, Data: templates, Total: len(templates)})
}
