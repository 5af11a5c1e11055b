package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/helios-hq/backend/internal/http/dto"
	"github.com/helios-hq/backend/internal/signature"
	"go.uber.org/zap"
)

type SignatureHandler struct {
	parser *signature.Parser
	log    *zap.Logger
}

func NewSignatureHandler(parser *signature.Parser, log *zap.Logger) *SignatureHandler {
	return &SignatureHandler{parser: parser, log: log}
}

func (h *SignatureHandler) ParseSignature(c *fiber.Ctx) error {
	var req dto.ParseSignatureRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.HTML == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "html is required"})
	}

	stats, err := h.parser.Parse(req.HTML)
	if err != nil {
		h.log.Error("signature parse failed", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "could not parse signature html"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: stats})
}

func (h *SignatureHandler) VerifyBanner(c *fiber.Ctx) error {
	var req dto.VerifyBannerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.BannerURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "banner_url is required"})
	}

	live, err := h.parser.VerifyBanner(c.Context(), req.BannerURL)
	if err != nil {
		h.log.Warn("banner verification failed", zap.String("url", req.BannerURL), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "could not verify banner"})
	}

	return c.JSON(dto.VerifyBannerResponse{BannerURL: req.BannerURL, Live: live})
}
