package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/helios-hq/backend/internal/auth"
	"github.com/helios-hq/backend/internal/config"
	"github.com/helios-hq/backend/internal/http/dto"
	"github.com/helios-hq/backend/internal/middleware"
	"github.com/helios-hq/backend/internal/models"
	"github.com/helios-hq/backend/internal/rbac"
	"github.com/helios-hq/backend/internal/repositories"
	"go.uber.org/zap"
)

type AuthHandler struct {
	apiKeyRepo *repositories.APIKeyRepo
	cfg        *config.Config
	log        *zap.Logger
}

func NewAuthHandler(apiKeyRepo *repositories.APIKeyRepo, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{apiKeyRepo: apiKeyRepo, cfg: cfg, log: log}
}

// CreateAPIKey mints a new console key for a member of the caller's org.
// The plaintext is returned once; only its hash is stored.
func (h *AuthHandler) CreateAPIKey(c *fiber.Ctx) error {
	var req dto.CreateAPIKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "name is required"})
	}
	if _, ok := rbac.RolePermissions[req.Role]; !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "unknown role"})
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid user_id"})
	}

	raw := "hk_" + uuid.NewString() + uuid.NewString()
	key := &models.APIKey{
		OrgID:   middleware.GetOrgID(c),
		UserID:  userID,
		Role:    req.Role,
		Name:    req.Name,
		KeyHash: models.HashAPIKey(raw),
	}
	if err := h.apiKeyRepo.Create(c.Context(), key); err != nil {
		h.log.Error("failed to create api key", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.CreateAPIKeyResponse{
		ID:        key.ID.String(),
		Name:      key.Name,
		Role:      key.Role,
		APIKey:    raw,
		CreatedAt: key.CreatedAt,
	})
}

// ExchangeAPIKey trades a console API key for a short-lived org-scoped JWT.
func (h *AuthHandler) ExchangeAPIKey(c *fiber.Ctx) error {
	var req dto.ExchangeAPIKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.APIKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "api_key is required"})
	}

	key, err := h.apiKeyRepo.GetByHash(c.Context(), models.HashAPIKey(req.APIKey))
	if err != nil {
		h.log.Debug("api key lookup failed", zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid api key"})
	}
	if key.Revoked() {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "api key revoked"})
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, key.UserID, key.OrgID, key.Role, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	if err := h.apiKeyRepo.TouchLastUsed(c.Context(), key.ID); err != nil {
		h.log.Warn("failed to record api key use", zap.Error(err))
	}

	return c.JSON(dto.AuthResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.cfg.JWTExpiration),
		OrgID:     key.OrgID.String(),
		Role:      key.Role,
	})
}
