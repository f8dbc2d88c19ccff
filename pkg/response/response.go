package response

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Error codes
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeRateLimited     = "RATE_LIMIT"
	CodeServiceError    = "SERVICE_ERROR"

	// Audio fetch and verification
	CodeDownloadError    = "DOWNLOAD_ERROR"
	CodeDownloadFailed   = "DOWNLOAD_FAILED"
	CodeSizeMismatch     = "SIZE_MISMATCH"
	CodeChecksumMismatch = "CHECKSUM_MISMATCH"

	// Analysis provider
	CodeAnalysisFailed        = "ANALYSIS_FAILED"
	CodeAnalysisTimeout       = "ANALYSIS_TIMEOUT"
	CodeAnalysisRateLimit     = "ANALYSIS_RATE_LIMIT"
	CodeAnalysisBadGateway    = "ANALYSIS_BAD_GATEWAY"
	CodeAnalysisEmptyResponse = "ANALYSIS_EMPTY_RESPONSE"

	// Description generation
	CodeLLMRateLimit     = "LLM_RATE_LIMIT"
	CodeLLMBadGateway    = "LLM_BAD_GATEWAY"
	CodeLLMEmptyResponse = "LLM_EMPTY_RESPONSE"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the stable error envelope. Timestamp and RequestID are
// filled in by Error so callers never set them.
type ErrorDetail struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp string      `json:"timestamp"`
	RequestID string      `json:"requestId,omitempty"`
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return ""
}

func Error(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			Details:   details,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			RequestID: requestID(c),
		},
	})
}

func ValidationError(c *fiber.Ctx, message string, details interface{}) error {
	return Error(c, fiber.StatusBadRequest, CodeValidationError, message, details)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, CodeNotFound, message, nil)
}

func RateLimited(c *fiber.Ctx, message string) error {
	if message == "" {
		message = "Rate limit exceeded"
	}
	return Error(c, fiber.StatusTooManyRequests, CodeRateLimited, message, nil)
}

func ServiceError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, CodeServiceError, message, nil)
}

func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(data)
}

func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(data)
}

func Accepted(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusAccepted).JSON(data)
}

func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}
