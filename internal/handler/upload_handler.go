package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/examify/submission-api/internal/dto"
	"github.com/examify/submission-api/internal/examdir"
	"github.com/examify/submission-api/internal/service"
	"github.com/examify/submission-api/internal/utils"
)

// UploadHandler handles direct external-CDN buffer uploads.
type UploadHandler struct {
	service service.CDNUploadService
	logger  zerolog.Logger
}

// NewUploadHandler constructs an upload handler.
func NewUploadHandler(service service.CDNUploadService, logger zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		service: service,
		logger:  logger.With().Str("component", "upload_handler").Logger(),
	}
}

// Register wires the buffer upload route.
func (h *UploadHandler) Register(router fiber.Router) {
	router.Post("/buffer", h.uploadBuffer)
}

func (h *UploadHandler) uploadBuffer(c *fiber.Ctx) error {
	studentID, ok := currentUserID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	var payload dto.BufferUploadRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.UploadBuffer(c.Context(), studentID, payload)
	if err != nil {
		var validationErrors validator.ValidationErrors
		switch {
		case errors.As(err, &validationErrors):
			return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
		case errors.Is(err, service.ErrPayloadTooLarge):
			return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, service.ErrEmptyPayload), errors.Is(err, service.ErrUploadNotPDF):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrDuplicateSubmission):
			return utils.SendError(c, fiber.StatusConflict, err.Error())
		case errors.Is(err, examdir.ErrExamNotFound):
			return utils.SendError(c, fiber.StatusNotFound, err.Error())
		default:
			h.logger.Error().Err(err).Msg("buffer upload failed")
			return utils.SendError(c, fiber.StatusInternalServerError, "upload failed")
		}
	}

	return utils.SendSuccess(c, "upload successful", result)
}
