package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/examify/submission-api/internal/dto"
	"github.com/examify/submission-api/internal/examdir"
	"github.com/examify/submission-api/internal/models"
	"github.com/examify/submission-api/internal/observability"
	"github.com/examify/submission-api/internal/repository"
)

// ErrUploadNotPDF indicates the buffer did not sniff as a PDF.
var ErrUploadNotPDF = errors.New("uploaded buffer is not a PDF")

// UploadResult describes where the CDN placed an asset.
type UploadResult struct {
	URL      string
	PublicID string
}

// FileUploader abstracts the external CDN destination.
type FileUploader interface {
	Upload(ctx context.Context, name string, reader io.Reader) (UploadResult, error)
}

// CDNUploadService handles direct external-CDN buffer uploads, the fastest
// tier of the client cascade.
type CDNUploadService interface {
	UploadBuffer(ctx context.Context, studentID uint, req dto.BufferUploadRequest) (dto.UploadResponse, error)
}

type cdnUploadService struct {
	uploader    FileUploader
	submissions repository.SubmissionRepository
	exams       examdir.Directory
	validator   *validator.Validate
	maxSize     int64
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewCDNUploadService constructs the direct-CDN upload service.
func NewCDNUploadService(uploader FileUploader, submissions repository.SubmissionRepository, exams examdir.Directory, validate *validator.Validate, maxSizeBytes int64, logger zerolog.Logger) CDNUploadService {
	if maxSizeBytes <= 0 {
		maxSizeBytes = 50 * 1024 * 1024
	}

	return &cdnUploadService{
		uploader:    uploader,
		submissions: submissions,
		exams:       exams,
		validator:   validate,
		maxSize:     maxSizeBytes,
		logger:      logger.With().Str("component", "cdn_upload_service").Logger(),
		tracer:      otel.Tracer("github.com/examify/submission-api/internal/service/upload"),
		now:         time.Now,
	}
}

func (s *cdnUploadService) UploadBuffer(ctx context.Context, studentID uint, req dto.BufferUploadRequest) (dto.UploadResponse, error) {
	ctx, span := s.tracer.Start(ctx, "upload.cdn_buffer")
	defer span.End()

	span.SetAttributes(
		attribute.String("upload.exam_id", req.ExamID),
		attribute.Int64("upload.request_size", int64(len(req.PDFBuffer))),
	)

	if err := s.validator.Struct(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return dto.UploadResponse{}, err
	}

	if int64(len(req.PDFBuffer)) > s.maxSize {
		observability.CDNUploadRejected().WithLabelValues("size").Inc()
		span.RecordError(ErrPayloadTooLarge)
		span.SetStatus(codes.Error, "payload too large")
		return dto.UploadResponse{}, ErrPayloadTooLarge
	}
	if len(req.PDFBuffer) == 0 {
		observability.CDNUploadRejected().WithLabelValues("empty").Inc()
		return dto.UploadResponse{}, ErrEmptyPayload
	}

	if detected := mimetype.Detect(req.PDFBuffer); !detected.Is("application/pdf") {
		observability.CDNUploadRejected().WithLabelValues("type").Inc()
		span.RecordError(ErrUploadNotPDF)
		span.SetStatus(codes.Error, "type not allowed")
		return dto.UploadResponse{}, ErrUploadNotPDF
	}

	if _, err := s.exams.GetExam(ctx, req.ExamID); err != nil {
		span.RecordError(err)
		return dto.UploadResponse{}, err
	}

	existing, err := s.submissions.FindActive(ctx, req.ExamID, studentID)
	switch {
	case err == nil && existing.IsComplete():
		observability.CDNUploadRejected().WithLabelValues("duplicate").Inc()
		return dto.UploadResponse{}, ErrDuplicateSubmission
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return dto.UploadResponse{}, err
	}

	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		fileName = fmt.Sprintf("exam-%s-student-%d.pdf", req.ExamID, studentID)
	}

	checksum := sha256.Sum256(req.PDFBuffer)

	result, err := s.uploader.Upload(ctx, fileName, bytes.NewReader(req.PDFBuffer))
	if err != nil {
		observability.CDNUploadRejected().WithLabelValues("cdn").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "cdn upload failed")
		return dto.UploadResponse{}, fmt.Errorf("cdn upload: %w", err)
	}

	now := s.now()
	submission := existing
	submission.ExamID = req.ExamID
	submission.StudentID = studentID
	if name, ok := req.Metadata["studentName"]; ok {
		submission.StudentName = name
	}
	submission.StorageMode = models.StorageModeExternalCDN
	submission.ExternalURL = result.URL
	submission.ExternalRef = result.PublicID
	submission.FileName = fileName
	submission.ReassemblyComplete = true
	submission.SubmittedAt = &now

	if submission.ID == 0 {
		err = s.submissions.Create(ctx, &submission)
	} else {
		err = s.submissions.Update(ctx, &submission)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return dto.UploadResponse{}, err
	}

	observability.IntakeRequests().WithLabelValues("external-cdn", "complete").Inc()
	span.SetStatus(codes.Ok, "stored")
	s.logger.Info().Uint("submission_id", submission.ID).Str("public_id", result.PublicID).Msg("direct cdn submission complete")

	return dto.UploadResponse{
		URL:          result.URL,
		PublicID:     result.PublicID,
		SizeBytes:    int64(len(req.PDFBuffer)),
		Checksum:     hex.EncodeToString(checksum[:]),
		FileName:     fileName,
		SubmissionID: submission.ID,
	}, nil
}
