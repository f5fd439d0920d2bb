package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/examify/submission-api/internal/blobstore"
	"github.com/examify/submission-api/internal/dto"
	"github.com/examify/submission-api/internal/examdir"
	"github.com/examify/submission-api/internal/service"
	"github.com/examify/submission-api/internal/utils"
)

// SubmissionHandler manages the submission intake endpoints.
type SubmissionHandler struct {
	service service.IntakeService
	logger  zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.IntakeService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the authenticated intake routes. Auth is applied per
// route rather than at group level so the degrade-ladder paths under the
// same prefix stay reachable without a token.
func (h *SubmissionHandler) Register(router fiber.Router, auth fiber.Handler, limit fiber.Handler) {
	router.Post("", auth, limit, h.submit)
	router.Post("/chunk-init", auth, h.chunkInit)
	router.Post("/chunk", auth, limit, h.chunk)
	router.Post("/chunk-finalize", auth, h.finalize)
	router.Get("/check/:examId", auth, h.check)
	router.Get("/file/:id", auth, h.file)
}

// RegisterEmergency attaches the unauthenticated degrade-ladder routes.
// These skip the JWT boundary on purpose: a client down to this tier may no
// longer hold a valid token.
func (h *SubmissionHandler) RegisterEmergency(router fiber.Router) {
	router.Post("/submissions/emergency", h.emergency("emergency"))
	router.Post("/submissions/simplified", h.emergency("simplified"))
	router.Post("/submissions/ultra-simple", h.emergency("ultra-simple"))
	router.Post("/exams/:examId/submit", h.examSubmit)
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	studentID, ok := currentUserID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	var payload dto.SubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	submission, err := h.service.SubmitSingle(c.Context(), studentID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission complete", submission)
}

func (h *SubmissionHandler) chunkInit(c *fiber.Ctx) error {
	studentID, ok := currentUserID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	var payload dto.ChunkInitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	submission, err := h.service.ChunkInit(c.Context(), studentID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "chunked submission ready", submission)
}

func (h *SubmissionHandler) chunk(c *fiber.Ctx) error {
	studentID, ok := currentUserID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	var payload dto.ChunkUploadRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	submission, err := h.service.ChunkUpload(c.Context(), studentID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "chunk received", submission)
}

func (h *SubmissionHandler) finalize(c *fiber.Ctx) error {
	studentID, ok := currentUserID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	var payload dto.FinalizeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.Finalize(c.Context(), studentID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission finalized", result)
}

// emergency returns a degrade-ladder handler for one tier. Whatever happens
// inside, the response is a 200 acknowledgement: these endpoints exist to
// stop retry storms, and persistence continues after the response.
func (h *SubmissionHandler) emergency(tier string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var payload dto.EmergencyRequest
		if err := c.BodyParser(&payload); err != nil {
			h.logger.Warn().Err(err).Str("tier", tier).Msg("unparseable emergency payload, acknowledging anyway")
		}

		h.service.EmergencySubmit(c.Context(), tier, payload)

		return utils.SendSuccess(c, "submission logged, persistence is best-effort", fiber.Map{
			"tier": tier,
		})
	}
}

func (h *SubmissionHandler) examSubmit(c *fiber.Ctx) error {
	var payload dto.EmergencyRequest
	if err := c.BodyParser(&payload); err != nil {
		h.logger.Warn().Err(err).Msg("unparseable exam-level emergency payload, acknowledging anyway")
	}
	payload.ExamID = c.Params("examId")

	h.service.EmergencySubmit(c.Context(), "exam-submit", payload)

	return utils.SendSuccess(c, "submission logged, persistence is best-effort", fiber.Map{
		"tier": "exam-submit",
	})
}

func (h *SubmissionHandler) check(c *fiber.Ctx) error {
	studentID, ok := currentUserID(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	examID := c.Params("examId")
	if examID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "missing examId")
	}

	result, err := h.service.Check(c.Context(), examID, studentID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission status", result)
}

func (h *SubmissionHandler) file(c *fiber.Ctx) error {
	role := currentUserRole(c)
	if role != "instructor" && role != "admin" {
		return utils.SendError(c, fiber.StatusForbidden, "instructor access required")
	}

	blobID := c.Params("id")
	info, content, err := h.service.GetFile(c.Context(), blobID)
	if err != nil {
		return h.handleError(c, err)
	}

	if info.ContentType != "" {
		c.Set(fiber.HeaderContentType, info.ContentType)
	}
	if info.FileName != "" {
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+info.FileName+`"`)
	}

	return c.Send(content)
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	case errors.Is(err, service.ErrMissingPDFPrefix),
		errors.Is(err, service.ErrEmptyPayload),
		errors.Is(err, service.ErrStudentNameRequired),
		errors.Is(err, service.ErrInvalidChunkIndex):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrDuplicateSubmission), errors.Is(err, service.ErrAlreadyFinalized):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNotOwner):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrSubmissionNotFound),
		errors.Is(err, examdir.ErrExamNotFound),
		errors.Is(err, blobstore.ErrNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrPayloadTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, blobstore.ErrStoreUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, service.ErrReassemblyImpossible), errors.Is(err, blobstore.ErrWriteTimeout):
		return utils.SendError(c, fiber.StatusInternalServerError, err.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
