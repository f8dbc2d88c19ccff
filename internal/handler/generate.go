package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/artistamplifier/api/internal/client"
	"github.com/artistamplifier/api/internal/model"
	"github.com/artistamplifier/api/internal/service"
	"github.com/artistamplifier/api/pkg/response"
)

type GenerateHandler struct {
	service   service.DescriptionGenerator
	validator *validator.Validate
}

func NewGenerateHandler(svc service.DescriptionGenerator, v *validator.Validate) *GenerateHandler {
	return &GenerateHandler{
		service:   svc,
		validator: v,
	}
}

// Generate handles POST /api/audio/generate
// @Summary      Generate press description
// @Description  Generates a press description from the artist profile and a completed audio analysis
// @Tags         Audio
// @Accept       json
// @Produce      json
// @Param        request body model.GenerateRequest true "Generate request"
// @Success      200 {object} model.GenerateResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Router       /api/audio/generate [post]
func (h *GenerateHandler) Generate(c *fiber.Ctx) error {
	var req model.GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Generate(c.Context(), &req)
	if err != nil {
		return generateError(c, err)
	}

	return response.OK(c, result)
}

// generateError maps model failures onto stable error codes.
func generateError(c *fiber.Ctx, err error) error {
	if pe, ok := client.AsProviderError(err); ok {
		switch {
		case pe.Status == 429:
			return response.Error(c, fiber.StatusTooManyRequests, response.CodeLLMRateLimit,
				"The language model is rate limiting requests", nil)
		case pe.Code == response.CodeLLMEmptyResponse:
			return response.Error(c, fiber.StatusBadGateway, response.CodeLLMEmptyResponse,
				"The language model returned an empty description", nil)
		default:
			return response.Error(c, fiber.StatusBadGateway, response.CodeLLMBadGateway,
				"The language model is unavailable", nil)
		}
	}
	return response.ServiceError(c, "Failed to generate description")
}
