package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/artistamplifier/api/internal/model"
	"github.com/artistamplifier/api/internal/service"
	"github.com/artistamplifier/api/pkg/response"
)

type UploadHandler struct {
	service   service.UploadTokenIssuer
	validator *validator.Validate
}

func NewUploadHandler(svc service.UploadTokenIssuer, v *validator.Validate) *UploadHandler {
	return &UploadHandler{
		service:   svc,
		validator: v,
	}
}

// Token handles POST /api/upload
// @Summary      Issue an upload token
// @Description  Issues a short-lived presigned PUT URL so the client uploads audio straight to object storage
// @Tags         Upload
// @Accept       json
// @Produce      json
// @Param        request body model.UploadTokenRequest true "Upload token request"
// @Success      200 {object} model.UploadTokenResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/upload [post]
func (h *UploadHandler) Token(c *fiber.Ctx) error {
	var req model.UploadTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	token, err := h.service.IssueToken(c.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedType) {
			return response.ValidationError(c, "Unsupported audio type, expected MP3 or WAV", nil)
		}
		return response.ServiceError(c, "Failed to issue upload token")
	}

	return response.OK(c, token)
}
