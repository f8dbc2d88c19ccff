package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/artistamplifier/api/internal/client"
	"github.com/artistamplifier/api/internal/fetch"
	"github.com/artistamplifier/api/internal/model"
	"github.com/artistamplifier/api/internal/service"
	"github.com/artistamplifier/api/pkg/response"
)

type AnalysisHandler struct {
	service   *service.AnalysisService
	validator *validator.Validate
}

func NewAnalysisHandler(svc *service.AnalysisService, v *validator.Validate) *AnalysisHandler {
	return &AnalysisHandler{
		service:   svc,
		validator: v,
	}
}

// Analyze handles POST /api/audio/analyze
// @Summary      Analyze uploaded audio
// @Description  Fetches the uploaded audio, verifies its integrity and submits it for analysis. Answers with the result when it finishes inside the wait window, otherwise with a job handle to poll.
// @Tags         Audio
// @Accept       json
// @Produce      json
// @Param        request body model.AnalyzeRequest true "Analyze request"
// @Success      200 {object} model.AnalysisResult
// @Success      202 {object} model.ProcessingResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      422 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Router       /api/audio/analyze [post]
func (h *AnalysisHandler) Analyze(c *fiber.Ctx) error {
	var req model.AnalyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	outcome, err := h.service.Submit(c.Context(), &req)
	if err != nil {
		return h.submitError(c, err)
	}

	return writeOutcome(c, outcome)
}

// Status handles GET /api/audio/analyze/status/:jobId
// @Summary      Poll analysis status
// @Description  Resumes waiting on an analysis job for a bounded window and answers with the result, the failure, or another processing handle.
// @Tags         Audio
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.AnalysisResult
// @Success      202 {object} model.ProcessingResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Router       /api/audio/analyze/status/{jobId} [get]
func (h *AnalysisHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Missing job ID", nil)
	}

	outcome, err := h.service.PollStatus(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Unknown or expired job")
		}
		return response.ServiceError(c, "Failed to read job status")
	}

	return writeOutcome(c, outcome)
}

// writeOutcome maps the three-state outcome onto the HTTP surface.
func writeOutcome(c *fiber.Ctx, outcome *model.AnalysisOutcome) error {
	switch outcome.State {
	case model.OutcomeDone:
		return response.OK(c, outcome.Result)
	case model.OutcomePending:
		return response.Accepted(c, model.ProcessingResponse{
			Status: "processing",
			JobID:  outcome.JobID,
		})
	default:
		return writeJobError(c, outcome.Err)
	}
}

func writeJobError(c *fiber.Ctx, jobErr *model.JobError) error {
	status := fiber.StatusBadGateway
	switch jobErr.Code {
	case response.CodeAnalysisRateLimit:
		status = fiber.StatusTooManyRequests
	case response.CodeAnalysisTimeout:
		status = fiber.StatusGatewayTimeout
	}
	return response.Error(c, status, jobErr.Code, jobErr.Message, nil)
}

// submitError maps submission failures onto stable error codes. Integrity
// mismatches are 422: the request was well formed, the object just does not
// match what the client declared.
func (h *AnalysisHandler) submitError(c *fiber.Ctx, err error) error {
	if errors.Is(err, service.ErrUnsupportedType) {
		return response.ValidationError(c, "Unsupported audio type, expected MP3 or WAV", nil)
	}
	if errors.Is(err, service.ErrSignatureMismatch) {
		return response.ValidationError(c, "File content does not match its declared type", nil)
	}

	var fetchErr *fetch.Error
	if errors.As(err, &fetchErr) {
		switch fetchErr.Kind {
		case fetch.KindSizeMismatch:
			return response.Error(c, fiber.StatusUnprocessableEntity, response.CodeSizeMismatch,
				"Downloaded audio size does not match the declared size", nil)
		case fetch.KindChecksumMismatch:
			return response.Error(c, fiber.StatusUnprocessableEntity, response.CodeChecksumMismatch,
				"Downloaded audio checksum does not match the declared checksum", nil)
		case fetch.KindTooLarge:
			return response.ValidationError(c, "Audio file exceeds the size limit", nil)
		default:
			return response.Error(c, fiber.StatusBadGateway, response.CodeDownloadFailed,
				"Could not download the uploaded audio", nil)
		}
	}

	if client.IsRateLimited(err) {
		return response.Error(c, fiber.StatusTooManyRequests, response.CodeAnalysisRateLimit,
			"The analysis provider is rate limiting requests", nil)
	}
	if client.IsUpstreamFailure(err) {
		return response.Error(c, fiber.StatusBadGateway, response.CodeAnalysisBadGateway,
			"The analysis provider is unavailable", nil)
	}

	return response.ServiceError(c, "Failed to submit audio for analysis")
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
