package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/examify/submission-api/internal/blobstore"
	"github.com/examify/submission-api/internal/service"
	"github.com/examify/submission-api/internal/utils"
)

// MaterialsHandler stores and streams study-material files.
type MaterialsHandler struct {
	service service.MaterialsService
	logger  zerolog.Logger
}

// NewMaterialsHandler builds a materials handler instance.
func NewMaterialsHandler(service service.MaterialsService, logger zerolog.Logger) *MaterialsHandler {
	return &MaterialsHandler{
		service: service,
		logger:  logger.With().Str("component", "materials_handler").Logger(),
	}
}

// Register attaches material routes to the provided group.
func (h *MaterialsHandler) Register(router fiber.Router) {
	router.Post("", h.upload)
	router.Get("/:id", h.download)
}

func (h *MaterialsHandler) upload(c *fiber.Ctx) error {
	uploaderID, ok := currentUserID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	role := currentUserRole(c)
	if role != "instructor" && role != "admin" {
		return utils.SendError(c, fiber.StatusForbidden, "instructor access required")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	result, err := h.service.Upload(c.Context(), file, uploaderID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMaterialTooLarge):
			return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, service.ErrMaterialTypeNotAllowed):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		default:
			h.logger.Error().Err(err).Msg("material upload failed")
			return utils.SendError(c, fiber.StatusInternalServerError, "upload failed")
		}
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "material stored", result)
}

func (h *MaterialsHandler) download(c *fiber.Ctx) error {
	if _, ok := currentUserID(c); !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	info, content, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "material not found")
		}
		h.logger.Error().Err(err).Msg("material download failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "download failed")
	}

	if info.ContentType != "" {
		c.Set(fiber.HeaderContentType, info.ContentType)
	}

	return c.Send(content)
}
