package handler

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/artistamplifier/api/internal/fetch"
	"github.com/artistamplifier/api/internal/model"
	"github.com/artistamplifier/api/pkg/response"
)

type ValidateHandler struct {
	maxSize int64
}

func NewValidateHandler(maxSize int64) *ValidateHandler {
	return &ValidateHandler{maxSize: maxSize}
}

// Validate handles POST /api/audio/validate
// @Summary      Pre-check an audio file
// @Description  Checks the uploaded file's size, declared type and magic bytes before the client bothers uploading it to storage
// @Tags         Audio
// @Accept       multipart/form-data
// @Produce      json
// @Param        file formData file true "Audio file (MP3 or WAV)"
// @Success      200 {object} model.ValidateResponse
// @Failure      400 {object} response.ErrorResponse
// @Router       /api/audio/validate [post]
func (h *ValidateHandler) Validate(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "Missing file field", nil)
	}

	if fileHeader.Size <= 0 {
		return response.ValidationError(c, "File is empty", nil)
	}
	if fileHeader.Size > h.maxSize {
		return response.ValidationError(c, "File exceeds the size limit", nil)
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if !fetch.AllowedType(contentType) {
		return response.ValidationError(c, "Unsupported audio type, expected MP3 or WAV", nil)
	}

	f, err := fileHeader.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to read uploaded file")
	}
	defer f.Close()

	head := make([]byte, 16)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return response.ServiceError(c, "Failed to read uploaded file")
	}

	if !fetch.MatchesDeclaredType(head[:n], contentType) {
		return response.ValidationError(c, "File content does not match its declared type", nil)
	}

	return response.OK(c, model.ValidateResponse{OK: true})
}
