package handler_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/examify/submission-api/internal/blobstore"
	"github.com/examify/submission-api/internal/config"
	"github.com/examify/submission-api/internal/dto"
	"github.com/examify/submission-api/internal/examdir"
	"github.com/examify/submission-api/internal/handler"
	"github.com/examify/submission-api/internal/models"
	"github.com/examify/submission-api/internal/repository"
	"github.com/examify/submission-api/internal/router"
	"github.com/examify/submission-api/internal/service"
)

const pdfPrefix = "data:application/pdf;base64,"

type stubDirectory struct{}

func (stubDirectory) GetExam(_ context.Context, examID string) (examdir.Exam, error) {
	if examID == "missing-exam" {
		return examdir.Exam{}, examdir.ErrExamNotFound
	}

	return examdir.Exam{ID: examID, Title: "Test Exam", Active: true}, nil
}

// testAuth mimics the JWT middleware: identity comes from test headers so a
// single app can exercise different callers and roles.
func testAuth(c *fiber.Ctx) error {
	if header := c.Get("X-Test-User"); header != "" {
		if id, err := strconv.ParseUint(header, 10, 64); err == nil {
			c.Locals("user_id", uint(id))
		}
	}
	if role := c.Get("X-Test-Role"); role != "" {
		c.Locals("user_role", role)
	}

	return c.Next()
}

func setupSubmissionApp(t *testing.T) (*fiber.App, repository.SubmissionRepository) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:submission_handler_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Submission{}, &models.ChunkReceipt{}))

	logger := zerolog.New(io.Discard)
	store := blobstore.New(db, 30*time.Second, 15*time.Second, logger)
	require.NoError(t, store.Connect(context.Background()))

	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	repo := repository.NewSubmissionRepository(db)
	reassembler := service.NewReassemblyEngine(store, logger)
	validate := validator.New(validator.WithRequiredStructEnabled())
	intake := service.NewIntakeService(repo, store, reassembler, stubDirectory{}, validate, cache, nil, service.IntakeConfig{}, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", JWTSecret: "secret"}, router.Dependencies{
		SubmissionHandler: handler.NewSubmissionHandler(intake, logger),
		JWTMiddleware:     testAuth,
	})

	return app, repo
}

func jsonRequest(method, target string, payload any) *http.Request {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	return req
}

func decodeEnvelope(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(data, target))
}

func TestSubmissionEndpointSingleShot(t *testing.T) {
	app, _ := setupSubmissionApp(t)

	req := jsonRequest("POST", "/api/v1/submissions", dto.SubmitRequest{
		ExamID:      "exam-http-single",
		StudentName: "Ada",
		PDFData:     pdfPrefix + base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 http")),
	})
	req.Header.Set("X-Test-User", "60")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var body struct {
		Success bool                   `json:"success"`
		Data    dto.SubmissionResponse `json:"data"`
		Message string                 `json:"message"`
	}
	decodeEnvelope(t, resp, &body)
	require.True(t, body.Success)
	require.True(t, body.Data.Complete)

	// second attempt is a duplicate
	dupReq := jsonRequest("POST", "/api/v1/submissions", dto.SubmitRequest{
		ExamID:      "exam-http-single",
		StudentName: "Ada",
		PDFData:     pdfPrefix + base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 again")),
	})
	dupReq.Header.Set("X-Test-User", "60")

	dupResp, err := app.Test(dupReq, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, dupResp.StatusCode)
}

func TestSubmissionEndpointRejectsBadPrefix(t *testing.T) {
	app, _ := setupSubmissionApp(t)

	req := jsonRequest("POST", "/api/v1/submissions", dto.SubmitRequest{
		ExamID:      "exam-http-prefix",
		StudentName: "Ada",
		PDFData:     base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 naked")),
	})
	req.Header.Set("X-Test-User", "61")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestSubmissionEndpointRequiresAuth(t *testing.T) {
	app, _ := setupSubmissionApp(t)

	req := jsonRequest("POST", "/api/v1/submissions", dto.SubmitRequest{
		ExamID:  "exam-http-noauth",
		PDFData: pdfPrefix + base64.StdEncoding.EncodeToString([]byte("x")),
	})

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestChunkedEndpointsRoundTrip(t *testing.T) {
	app, _ := setupSubmissionApp(t)
	user := "62"

	initReq := jsonRequest("POST", "/api/v1/submissions/chunk-init", dto.ChunkInitRequest{
		ExamID:      "exam-http-chunked",
		TotalChunks: 2,
		FileName:    "big.pdf",
	})
	initReq.Header.Set("X-Test-User", user)

	initResp, err := app.Test(initReq, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, initResp.StatusCode)

	var initBody struct {
		Success bool                   `json:"success"`
		Data    dto.SubmissionResponse `json:"data"`
	}
	decodeEnvelope(t, initResp, &initBody)
	require.NotZero(t, initBody.Data.ID)

	for index, piece := range [][]byte{[]byte("%PDF-1.4 aa"), []byte("bb")} {
		chunkReq := jsonRequest("POST", "/api/v1/submissions/chunk", dto.ChunkUploadRequest{
			SubmissionID: initBody.Data.ID,
			ChunkIndex:   index,
			TotalChunks:  2,
			PDFData:      base64.StdEncoding.EncodeToString(piece),
		})
		chunkReq.Header.Set("X-Test-User", user)

		chunkResp, err := app.Test(chunkReq, -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, chunkResp.StatusCode)
	}

	finReq := jsonRequest("POST", "/api/v1/submissions/chunk-finalize", dto.FinalizeRequest{
		SubmissionID: initBody.Data.ID,
	})
	finReq.Header.Set("X-Test-User", user)

	finResp, err := app.Test(finReq, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, finResp.StatusCode)

	var finBody struct {
		Success bool                 `json:"success"`
		Data    dto.FinalizeResponse `json:"data"`
	}
	decodeEnvelope(t, finResp, &finBody)
	require.True(t, finBody.Data.Complete)
	require.Equal(t, 2, finBody.Data.ChunksUsed)

	checkReq := httptest.NewRequest("GET", "/api/v1/submissions/check/exam-http-chunked", nil)
	checkReq.Header.Set("X-Test-User", user)

	checkResp, err := app.Test(checkReq, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, checkResp.StatusCode)

	var checkBody struct {
		Success bool              `json:"success"`
		Data    dto.CheckResponse `json:"data"`
	}
	decodeEnvelope(t, checkResp, &checkBody)
	require.True(t, checkBody.Data.Submitted)
	require.True(t, checkBody.Data.Complete)
}

func TestEmergencyEndpointsNeedNoToken(t *testing.T) {
	app, repo := setupSubmissionApp(t)

	for _, path := range []string{
		"/api/v1/submissions/emergency",
		"/api/v1/submissions/simplified",
		"/api/v1/submissions/ultra-simple",
	} {
		req := jsonRequest("POST", path, dto.EmergencyRequest{
			ExamID:      "exam-http-panic" + path[len(path)-3:],
			StudentID:   63,
			TextContent: "answers: 1a 2b",
		})

		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, path)
	}

	// garbage body must still be acknowledged
	garbage := httptest.NewRequest("POST", "/api/v1/submissions/emergency", bytes.NewReader([]byte("{not json")))
	garbage.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(garbage, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	// exam-level path takes the exam id from the URL
	examReq := jsonRequest("POST", "/api/v1/exams/exam-http-lastresort/submit", dto.EmergencyRequest{
		StudentID:   64,
		TextContent: "barely made it",
	})
	examResp, err := app.Test(examReq, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, examResp.StatusCode)

	require.Eventually(t, func() bool {
		record, err := repo.FindActive(context.Background(), "exam-http-lastresort", 64)
		return err == nil && record.IsComplete()
	}, 5*time.Second, 20*time.Millisecond)
}

func TestFileEndpointRequiresInstructorRole(t *testing.T) {
	app, _ := setupSubmissionApp(t)

	req := httptest.NewRequest("GET", "/api/v1/submissions/file/some-blob", nil)
	req.Header.Set("X-Test-User", "65")
	req.Header.Set("X-Test-Role", "student")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	asInstructor := httptest.NewRequest("GET", "/api/v1/submissions/file/some-blob", nil)
	asInstructor.Header.Set("X-Test-User", "65")
	asInstructor.Header.Set("X-Test-Role", "instructor")

	instructorResp, err := app.Test(asInstructor, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, instructorResp.StatusCode)
}
