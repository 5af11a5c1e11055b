package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/helios-hq/backend/internal/http/dto"
	"github.com/helios-hq/backend/internal/middleware"
	"github.com/helios-hq/backend/internal/models"
	"github.com/helios-hq/backend/internal/repositories"
	"go.uber.org/zap"
)

type UserHandler struct {
	userRepo *repositories.OrgUserRepo
	log      *zap.Logger
}

func NewUserHandler(userRepo *repositories.OrgUserRepo, log *zap.Logger) *UserHandler {
	return &UserHandler{userRepo: userRepo, log: log}
}

func (h *UserHandler) CreateUser(c *fiber.Ctx) error {
	var req dto.CreateOrgUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "email is required"})
	}

	orgID := middleware.GetOrgID(c)
	if existing, err := h.userRepo.GetByEmail(c.Context(), orgID, req.Email); err == nil && existing != nil {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "a user with this email already exists"})
	}

	user := &models.OrgUser{
		OrgID:         orgID,
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		PersonalEmail: req.PersonalEmail,
		UserStatus:    models.UserStatusActive,
		IsActive:      true,
	}
	if err := h.userRepo.Create(c.Context(), user); err != nil {
		h.log.Error("create user failed", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "could not create user"})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: user})
}

func (h *UserHandler) GetUser(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid user id"})
	}

	user, err := h.userRepo.GetByID(c.Context(), id)
	if err != nil || user.OrgID != middleware.GetOrgID(c) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "user not found"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: user})
}

func (h *UserHandler) ListUsers(c *fiber.Ctx) error {
	filter := repositories.OrgUserFilter{
		OrgID: middleware.GetOrgID(c),
		Limit: 20,
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
		filter.UserStatus = &v
	}

	users, err := h.userRepo.List(c.Context(), filter)
	if err != nil {
		h.log.Error("list users failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.ListResponse{OK: true, Data: users, Total: len(users)})
}
