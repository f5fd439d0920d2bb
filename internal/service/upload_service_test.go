package service_test

import (
	"context"
	"io"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/examify/submission-api/internal/dto"
	"github.com/examify/submission-api/internal/models"
	"github.com/examify/submission-api/internal/repository"
	"github.com/examify/submission-api/internal/service"
)

type stubUploader struct {
	uploads int
	fail    bool
}

func (u *stubUploader) Upload(_ context.Context, name string, _ io.Reader) (service.UploadResult, error) {
	if u.fail {
		return service.UploadResult{}, context.DeadlineExceeded
	}
	u.uploads++

	return service.UploadResult{
		URL:      "https://cdn.example.com/" + name,
		PublicID: "examify/" + name,
	}, nil
}

func setupUpload(t *testing.T) (service.CDNUploadService, repository.SubmissionRepository, *stubUploader) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:upload_service_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Submission{}, &models.ChunkReceipt{}))

	repo := repository.NewSubmissionRepository(db)
	uploader := &stubUploader{}
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := service.NewCDNUploadService(uploader, repo, stubDirectory{}, validate, 0, zerolog.New(io.Discard))

	return svc, repo, uploader
}

func TestUploadBufferCreatesCompleteSubmission(t *testing.T) {
	svc, repo, uploader := setupUpload(t)
	ctx := context.Background()

	resp, err := svc.UploadBuffer(ctx, 40, dto.BufferUploadRequest{
		PDFBuffer: dto.ByteBuffer("%PDF-1.4 direct upload"),
		FileName:  "direct.pdf",
		ExamID:    "exam-cdn",
		Metadata:  map[string]string{"studentName": "Grace"},
	})
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/direct.pdf", resp.URL)
	require.NotEmpty(t, resp.Checksum)
	require.Equal(t, 1, uploader.uploads)

	record, err := repo.FindActive(ctx, "exam-cdn", 40)
	require.NoError(t, err)
	require.True(t, record.IsComplete())
	require.Equal(t, models.StorageModeExternalCDN, record.StorageMode)
	require.Equal(t, "Grace", record.StudentName)
	require.Equal(t, resp.URL, record.ExternalURL)
}

func TestUploadBufferRejectsNonPDF(t *testing.T) {
	svc, _, uploader := setupUpload(t)

	_, err := svc.UploadBuffer(context.Background(), 41, dto.BufferUploadRequest{
		PDFBuffer: dto.ByteBuffer("just some plain text, not a pdf"),
		ExamID:    "exam-cdn-type",
	})
	require.ErrorIs(t, err, service.ErrUploadNotPDF)
	require.Zero(t, uploader.uploads)
}

func TestUploadBufferRejectsDuplicate(t *testing.T) {
	svc, _, _ := setupUpload(t)
	ctx := context.Background()

	req := dto.BufferUploadRequest{
		PDFBuffer: dto.ByteBuffer("%PDF-1.4 once"),
		ExamID:    "exam-cdn-dup",
	}
	_, err := svc.UploadBuffer(ctx, 42, req)
	require.NoError(t, err)

	_, err = svc.UploadBuffer(ctx, 42, req)
	require.ErrorIs(t, err, service.ErrDuplicateSubmission)
}

func TestUploadBufferCDNFailureLeavesNoRecord(t *testing.T) {
	svc, repo, uploader := setupUpload(t)
	uploader.fail = true
	ctx := context.Background()

	_, err := svc.UploadBuffer(ctx, 43, dto.BufferUploadRequest{
		PDFBuffer: dto.ByteBuffer("%PDF-1.4 doomed"),
		ExamID:    "exam-cdn-down",
	})
	require.Error(t, err)

	_, err = repo.FindActive(ctx, "exam-cdn-down", 43)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
