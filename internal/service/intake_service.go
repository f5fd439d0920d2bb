package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/examify/submission-api/internal/blobstore"
	"github.com/examify/submission-api/internal/dto"
	"github.com/examify/submission-api/internal/examdir"
	"github.com/examify/submission-api/internal/models"
	"github.com/examify/submission-api/internal/observability"
	"github.com/examify/submission-api/internal/repository"
)

// pdfDataPrefix is the exact prefix the single-shot path requires.
const pdfDataPrefix = "data:application/pdf;base64,"

// knownDataPrefixes are stripped from chunk payloads before decoding. Client
// versions have drifted on how they label chunk slices.
var knownDataPrefixes = []string{
	pdfDataPrefix,
	"data:application/octet-stream;base64,",
	"data:binary/octet-stream;base64,",
	"data:;base64,",
}

// EventPublisher notifies downstream systems about terminal submissions.
type EventPublisher interface {
	SubmissionCompleted(ctx context.Context, submission models.Submission)
}

// IntakeService is the HTTP-facing state machine that drives a submission to
// a terminal state through one of the intake modes.
type IntakeService interface {
	SubmitSingle(ctx context.Context, studentID uint, req dto.SubmitRequest) (dto.SubmissionResponse, error)
	ChunkInit(ctx context.Context, studentID uint, req dto.ChunkInitRequest) (dto.SubmissionResponse, error)
	ChunkUpload(ctx context.Context, studentID uint, req dto.ChunkUploadRequest) (dto.SubmissionResponse, error)
	Finalize(ctx context.Context, studentID uint, req dto.FinalizeRequest) (dto.FinalizeResponse, error)
	EmergencySubmit(ctx context.Context, tier string, req dto.EmergencyRequest)
	Check(ctx context.Context, examID string, studentID uint) (dto.CheckResponse, error)
	GetFile(ctx context.Context, blobID string) (models.StoredBlob, []byte, error)
}

type intakeService struct {
	submissions repository.SubmissionRepository
	blobs       blobstore.Store
	reassembler ReassemblyEngine
	exams       examdir.Directory
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	cache       *redis.Client
	events      EventPublisher
	maxPayload  int64
	threshold   float64
	checkTTL    time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// IntakeConfig tunes the intake state machine.
type IntakeConfig struct {
	MaxPayloadBytes     int64
	ReassemblyThreshold float64
	CheckCacheTTL       time.Duration
}

// NewIntakeService constructs the intake state machine.
func NewIntakeService(
	submissions repository.SubmissionRepository,
	blobs blobstore.Store,
	reassembler ReassemblyEngine,
	exams examdir.Directory,
	validate *validator.Validate,
	cache *redis.Client,
	events EventPublisher,
	cfg IntakeConfig,
	logger zerolog.Logger,
) IntakeService {
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = 50 * 1024 * 1024
	}
	if cfg.ReassemblyThreshold <= 0 || cfg.ReassemblyThreshold > 1 {
		cfg.ReassemblyThreshold = 0.8
	}
	if cfg.CheckCacheTTL <= 0 {
		cfg.CheckCacheTTL = time.Minute
	}

	return &intakeService{
		submissions: submissions,
		blobs:       blobs,
		reassembler: reassembler,
		exams:       exams,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		cache:       cache,
		events:      events,
		maxPayload:  cfg.MaxPayloadBytes,
		threshold:   cfg.ReassemblyThreshold,
		checkTTL:    cfg.CheckCacheTTL,
		logger:      logger.With().Str("component", "intake_service").Logger(),
		now:         time.Now,
	}
}

func (s *intakeService) SubmitSingle(ctx context.Context, studentID uint, req dto.SubmitRequest) (dto.SubmissionResponse, error) {
	start := time.Now()
	defer func() {
		observability.IntakeLatency().WithLabelValues("single-shot").Observe(time.Since(start).Seconds())
	}()

	if err := s.validator.Struct(req); err != nil {
		return dto.SubmissionResponse{}, err
	}

	if _, err := s.exams.GetExam(ctx, req.ExamID); err != nil {
		return dto.SubmissionResponse{}, err
	}

	existing, err := s.submissions.FindActive(ctx, req.ExamID, studentID)
	switch {
	case err == nil && existing.IsComplete():
		observability.IntakeRequests().WithLabelValues("single-shot", "duplicate").Inc()
		return dto.SubmissionResponse{}, ErrDuplicateSubmission
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return dto.SubmissionResponse{}, err
	}

	if req.TextOnly {
		return s.submitTextOnly(ctx, studentID, existing, req)
	}

	if strings.TrimSpace(req.StudentName) == "" {
		return dto.SubmissionResponse{}, ErrStudentNameRequired
	}

	content, err := s.decodePDFData(req.PDFData, true)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if detected := mimetype.Detect(content); !detected.Is("application/pdf") {
		s.logger.Warn().Str("exam_id", req.ExamID).Str("detected_mime", detected.String()).Msg("single-shot payload is not a PDF on sniff")
	}

	fileName := req.FileName
	if fileName == "" {
		fileName = fmt.Sprintf("exam-%s-student-%d.pdf", req.ExamID, studentID)
	}

	blobID, err := s.blobs.Put(ctx, content, blobstore.PutOptions{
		Bucket:      models.BucketExamSubmissions,
		FileName:    fileName,
		ContentType: "application/pdf",
		ExamID:      req.ExamID,
		StudentID:   studentID,
	})
	if err != nil {
		observability.IntakeRequests().WithLabelValues("single-shot", "store_error").Inc()
		return dto.SubmissionResponse{}, err
	}

	now := s.now()
	submission := existing
	submission.ExamID = req.ExamID
	submission.StudentID = studentID
	submission.StudentName = req.StudentName
	submission.StorageMode = models.StorageModeChunkedStore
	submission.PrimaryBlobID = &blobID
	submission.FileName = fileName
	submission.ReassemblyComplete = true
	submission.SubmittedAt = &now

	if err := s.persistSubmission(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	s.completeSubmission(ctx, submission)
	observability.IntakeRequests().WithLabelValues("single-shot", "complete").Inc()
	s.logger.Info().Uint("submission_id", submission.ID).Str("exam_id", req.ExamID).Msg("single-shot submission complete")

	return dto.NewSubmissionResponse(submission, nil), nil
}

func (s *intakeService) submitTextOnly(ctx context.Context, studentID uint, existing models.Submission, req dto.SubmitRequest) (dto.SubmissionResponse, error) {
	text := s.sanitizer.Sanitize(req.TextContent)

	blobID, err := s.blobs.Put(ctx, []byte(text), blobstore.PutOptions{
		Bucket:      models.BucketExamSubmissions,
		FileName:    fmt.Sprintf("exam-%s-student-%d.txt", req.ExamID, studentID),
		ContentType: "text/plain",
		ExamID:      req.ExamID,
		StudentID:   studentID,
	})
	if err != nil {
		// Text-only is already a degraded path; losing the record over a
		// blob write would violate the no-data-loss rule.
		s.logger.Error().Err(err).Str("exam_id", req.ExamID).Msg("text-only blob write failed, keeping record without blob")
	}

	now := s.now()
	submission := existing
	submission.ExamID = req.ExamID
	submission.StudentID = studentID
	submission.StudentName = req.StudentName
	submission.StorageMode = models.StorageModeTextFallback
	submission.TextContent = text
	submission.DegradedReason = "explicit text-only submission"
	submission.ReassemblyComplete = true
	submission.SubmittedAt = &now
	if blobID != "" {
		submission.PrimaryBlobID = &blobID
	}

	if err := s.persistSubmission(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	s.completeSubmission(ctx, submission)
	observability.IntakeRequests().WithLabelValues("text-only", "complete").Inc()

	return dto.NewSubmissionResponse(submission, nil), nil
}

func (s *intakeService) ChunkInit(ctx context.Context, studentID uint, req dto.ChunkInitRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SubmissionResponse{}, err
	}

	if _, err := s.exams.GetExam(ctx, req.ExamID); err != nil {
		return dto.SubmissionResponse{}, err
	}

	existing, err := s.submissions.FindActive(ctx, req.ExamID, studentID)
	if err == nil {
		if existing.IsComplete() {
			return dto.SubmissionResponse{}, ErrDuplicateSubmission
		}

		// An in-flight chunked submission is resumed rather than duplicated;
		// clients that crashed mid-upload re-init and continue.
		receipts, rerr := s.submissions.ChunkReceipts(ctx, existing.ID)
		if rerr != nil {
			return dto.SubmissionResponse{}, rerr
		}
		s.logger.Info().Uint("submission_id", existing.ID).Int("received", len(receipts)).Msg("resuming chunked submission")
		return dto.NewSubmissionResponse(existing, progressVector(existing.TotalChunks, receipts)), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.SubmissionResponse{}, err
	}

	submission := models.Submission{
		ExamID:      req.ExamID,
		StudentID:   studentID,
		StorageMode: models.StorageModeChunkedStore,
		FileName:    req.FileName,
		IsChunked:   true,
		TotalChunks: req.TotalChunks,
	}

	if err := s.submissions.Create(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	observability.IntakeRequests().WithLabelValues("chunk-init", "created").Inc()
	s.logger.Info().Uint("submission_id", submission.ID).Str("exam_id", req.ExamID).Int("total_chunks", req.TotalChunks).Msg("chunked submission initialized")

	return dto.NewSubmissionResponse(submission, make([]bool, req.TotalChunks)), nil
}

// ChunkUpload stores one chunk and flips its progress bit. It never triggers
// reassembly; that is deferred to finalize to keep per-chunk latency bounded.
func (s *intakeService) ChunkUpload(ctx context.Context, studentID uint, req dto.ChunkUploadRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.submissions.GetByID(ctx, req.SubmissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if submission.StudentID != studentID {
		return dto.SubmissionResponse{}, ErrNotOwner
	}
	if submission.IsComplete() {
		return dto.SubmissionResponse{}, ErrAlreadyFinalized
	}
	if req.ChunkIndex < 0 || req.ChunkIndex >= submission.TotalChunks {
		return dto.SubmissionResponse{}, ErrInvalidChunkIndex
	}

	content, err := s.decodePDFData(req.PDFData, false)
	if err != nil {
		observability.ChunkUploads().WithLabelValues("decode_error").Inc()
		return dto.SubmissionResponse{}, err
	}

	blobID, err := s.blobs.Put(ctx, content, blobstore.PutOptions{
		Bucket:       models.BucketExamSubmissions,
		FileName:     fmt.Sprintf("%s.chunk-%d", submission.FileName, req.ChunkIndex),
		ContentType:  "application/octet-stream",
		ExamID:       submission.ExamID,
		StudentID:    studentID,
		SubmissionID: &submission.ID,
		ChunkIndex:   strconv.Itoa(req.ChunkIndex),
		TotalChunks:  submission.TotalChunks,
	})
	if err != nil {
		observability.ChunkUploads().WithLabelValues("store_error").Inc()
		return dto.SubmissionResponse{}, err
	}

	if err := s.submissions.MarkChunkReceived(ctx, submission.ID, req.ChunkIndex, blobID, int64(len(content))); err != nil {
		return dto.SubmissionResponse{}, err
	}

	observability.ChunkUploads().WithLabelValues("received").Inc()

	updated, err := s.submissions.GetByID(ctx, submission.ID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	receipts, err := s.submissions.ChunkReceipts(ctx, submission.ID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	return dto.NewSubmissionResponse(updated, progressVector(updated.TotalChunks, receipts)), nil
}

// Finalize snapshots chunk progress and drives the submission to COMPLETE.
// It never blocks on missing chunks: an incomplete set is recorded as a
// degraded reason and reassembly proceeds with whatever arrived. The response
// always reports complete so clients never retry a finalize.
func (s *intakeService) Finalize(ctx context.Context, studentID uint, req dto.FinalizeRequest) (dto.FinalizeResponse, error) {
	start := time.Now()
	defer func() {
		observability.IntakeLatency().WithLabelValues("finalize").Observe(time.Since(start).Seconds())
	}()

	if err := s.validator.Struct(req); err != nil {
		return dto.FinalizeResponse{}, err
	}

	submission, err := s.submissions.GetByID(ctx, req.SubmissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.FinalizeResponse{}, ErrSubmissionNotFound
		}
		return dto.FinalizeResponse{}, err
	}

	if submission.StudentID != studentID {
		return dto.FinalizeResponse{}, ErrNotOwner
	}

	if submission.IsComplete() {
		return s.finalizeResponse(submission, 0, submission.ReceivedCount), nil
	}

	// Snapshot of progress at call time; chunks still in flight are simply
	// not part of this finalize.
	receipts, err := s.submissions.ChunkReceipts(ctx, submission.ID)
	if err != nil {
		return dto.FinalizeResponse{}, err
	}

	received := len(receipts)
	if received < submission.TotalChunks {
		submission.DegradedReason = fmt.Sprintf("only %d/%d chunks received at finalize", received, submission.TotalChunks)
		s.logger.Warn().Uint("submission_id", submission.ID).Str("shortfall", submission.DegradedReason).Msg("finalizing incomplete submission")
	}

	chunkIDs := s.resolveChunkBlobs(ctx, submission, receipts)
	if len(chunkIDs) == 0 {
		return dto.FinalizeResponse{}, ErrReassemblyImpossible
	}

	finalName := submission.FileName
	if finalName == "" {
		finalName = fmt.Sprintf("exam-%s-student-%d.pdf", submission.ExamID, submission.StudentID)
	}

	result, err := s.reassembler.Reassemble(ctx, chunkIDs, finalName, blobstore.PutOptions{
		Bucket:      models.BucketExamSubmissions,
		ContentType: "application/pdf",
		ExamID:      submission.ExamID,
		StudentID:   submission.StudentID,
		SubmissionID: &submission.ID,
	})

	now := s.now()
	submission.ReceivedCount = received
	submission.ReadyForReassembly = true
	submission.ReassemblyComplete = true
	submission.SubmittedAt = &now

	switch {
	case err == nil && float64(result.ChunksUsed) >= s.threshold*float64(submission.TotalChunks):
		submission.StorageMode = models.StorageModeChunkedStore
		submission.PrimaryBlobID = &result.BlobID
		if result.ChunksUsed < submission.TotalChunks && submission.DegradedReason == "" {
			submission.DegradedReason = fmt.Sprintf("reassembled from %d/%d chunks", result.ChunksUsed, submission.TotalChunks)
		}
	case err == nil:
		// Below the completeness threshold the artifact is kept, but the
		// submission is flagged as degraded so graders know it is partial.
		submission.StorageMode = models.StorageModeTextFallback
		submission.PrimaryBlobID = &result.BlobID
		if submission.DegradedReason == "" {
			submission.DegradedReason = fmt.Sprintf("partial chunks: %d/%d", result.ChunksUsed, submission.TotalChunks)
		}
		observability.DegradedFinalizes().WithLabelValues("partial_chunks").Inc()
	case errors.Is(err, ErrReassemblyImpossible):
		// Zero retrievable chunks: no fabricated success, submission stays
		// non-terminal for a later retry.
		return dto.FinalizeResponse{}, ErrReassemblyImpossible
	default:
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("reassembly store step failed, degrading to text record")
		submission.StorageMode = models.StorageModeTextFallback
		submission.DegradedReason = fmt.Sprintf("reassembly failed: %v", err)
		s.storeDegradedTextRecord(ctx, &submission)
		observability.DegradedFinalizes().WithLabelValues("reassembly_failed").Inc()
		result = ReassemblyResult{}
	}

	if err := s.submissions.Update(ctx, &submission); err != nil {
		return dto.FinalizeResponse{}, err
	}

	s.completeSubmission(ctx, submission)

	if submission.StorageMode == models.StorageModeChunkedStore && result.ChunksUsed == submission.TotalChunks {
		go s.sweepChunks(submission.ID, receipts)
	}

	observability.IntakeRequests().WithLabelValues("finalize", "complete").Inc()
	s.logger.Info().
		Uint("submission_id", submission.ID).
		Str("storage_mode", submission.StorageMode).
		Int("chunks_used", result.ChunksUsed).
		Msg("submission finalized")

	return s.finalizeResponse(submission, result.ByteSize, result.ChunksUsed), nil
}

func (s *intakeService) finalizeResponse(submission models.Submission, byteSize int64, chunksUsed int) dto.FinalizeResponse {
	blobID := ""
	if submission.PrimaryBlobID != nil {
		blobID = *submission.PrimaryBlobID
	}

	return dto.FinalizeResponse{
		Complete:       true,
		SubmissionID:   submission.ID,
		StorageMode:    submission.StorageMode,
		PrimaryBlobID:  blobID,
		ByteSize:       byteSize,
		ChunksUsed:     chunksUsed,
		TotalChunks:    submission.TotalChunks,
		TextOnly:       submission.StorageMode == models.StorageModeTextFallback,
		DegradedReason: submission.DegradedReason,
	}
}

// resolveChunkBlobs maps expected chunk indices to blob ids via an ordered
// list of lookup strategies: the receipt row, then the blob store's index
// metadata, then a filename pattern. Later strategies accommodate metadata
// drift across client versions; unresolvable indices are skipped.
func (s *intakeService) resolveChunkBlobs(ctx context.Context, submission models.Submission, receipts []models.ChunkReceipt) []string {
	receiptByIndex := make(map[int]string, len(receipts))
	for _, receipt := range receipts {
		receiptByIndex[receipt.ChunkIndex] = receipt.BlobID
	}

	lookups := []func(index int) (string, bool){
		func(index int) (string, bool) {
			id, ok := receiptByIndex[index]
			return id, ok
		},
		func(index int) (string, bool) {
			indexStr := strconv.Itoa(index)
			blobs, err := s.blobs.List(ctx, blobstore.Filter{SubmissionID: &submission.ID, ChunkIndex: &indexStr})
			if err != nil || len(blobs) == 0 {
				return "", false
			}
			return blobs[len(blobs)-1].ID, true
		},
		func(index int) (string, bool) {
			pattern := fmt.Sprintf("%%chunk-%d", index)
			blobs, err := s.blobs.List(ctx, blobstore.Filter{SubmissionID: &submission.ID, FileNamePattern: pattern})
			if err != nil || len(blobs) == 0 {
				return "", false
			}
			return blobs[len(blobs)-1].ID, true
		},
	}

	chunkIDs := make([]string, 0, submission.TotalChunks)
	for index := 0; index < submission.TotalChunks; index++ {
		resolved := false
		for _, lookup := range lookups {
			if id, ok := lookup(index); ok {
				chunkIDs = append(chunkIDs, id)
				resolved = true
				break
			}
		}
		if !resolved {
			s.logger.Warn().Uint("submission_id", submission.ID).Int("chunk_index", index).Msg("chunk blob unresolvable")
		}
	}

	return chunkIDs
}

// storeDegradedTextRecord writes the text fallback for a submission whose
// reassembly could not be stored. The text lands on the record row first so
// the submission carries an artifact even when the blob store is down too;
// the blob copy is best-effort on top.
func (s *intakeService) storeDegradedTextRecord(ctx context.Context, submission *models.Submission) {
	note := fmt.Sprintf("submission for exam %s by student %d; %s", submission.ExamID, submission.StudentID, submission.DegradedReason)
	submission.TextContent = note

	blobID, err := s.blobs.Put(ctx, []byte(note), blobstore.PutOptions{
		Bucket:      models.BucketExamSubmissions,
		FileName:    fmt.Sprintf("exam-%s-student-%d-degraded.txt", submission.ExamID, submission.StudentID),
		ContentType: "text/plain",
		ExamID:      submission.ExamID,
		StudentID:   submission.StudentID,
		Emergency:   true,
	})
	if err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("degraded text blob write failed, record row keeps the text")
		return
	}

	submission.PrimaryBlobID = &blobID
}

// sweepChunks deletes chunk blobs once a submission is fully reassembled.
// Best-effort: a blob left behind is just storage, not data loss.
func (s *intakeService) sweepChunks(submissionID uint, receipts []models.ChunkReceipt) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, receipt := range receipts {
		if err := s.blobs.Delete(ctx, receipt.BlobID); err != nil {
			s.logger.Warn().Err(err).Str("blob_id", receipt.BlobID).Uint("submission_id", submissionID).Msg("chunk sweep delete failed")
		}
	}
}

// EmergencySubmit is the always-ack degrade ladder. It logs the attempt
// synchronously, persists in a fire-and-forget goroutine, and never surfaces
// an error: once a client is down to these endpoints, a retryable failure
// would only feed a retry storm against a struggling server.
func (s *intakeService) EmergencySubmit(ctx context.Context, tier string, req dto.EmergencyRequest) {
	s.logger.Warn().
		Str("tier", tier).
		Str("exam_id", req.ExamID).
		Uint("student_id", req.StudentID).
		Str("student_name", req.StudentName).
		Bool("has_pdf", req.PDFData != "").
		Bool("has_screenshot", req.Screenshot != "").
		Int("text_len", len(req.TextContent)).
		Msg("emergency submission received")

	go func() {
		persistCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		persisted := "true"
		if err := s.persistEmergency(persistCtx, tier, req); err != nil {
			persisted = "false"
			s.logger.Error().Err(err).Str("tier", tier).Str("exam_id", req.ExamID).Msg("emergency persistence failed")
		}
		observability.EmergencyAcks().WithLabelValues(tier, persisted).Inc()
	}()
}

func (s *intakeService) persistEmergency(ctx context.Context, tier string, req dto.EmergencyRequest) error {
	if req.ExamID == "" {
		return fmt.Errorf("emergency payload carried no exam id")
	}

	existing, err := s.submissions.FindActive(ctx, req.ExamID, req.StudentID)
	if err == nil && existing.IsComplete() {
		// Work is already safe; nothing to do.
		return nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	var blobID string
	if req.PDFData != "" {
		if content, derr := s.decodePDFData(req.PDFData, false); derr == nil {
			blobID, _ = s.blobs.Put(ctx, content, blobstore.PutOptions{
				Bucket:      models.BucketExamSubmissions,
				FileName:    fmt.Sprintf("exam-%s-emergency.pdf", req.ExamID),
				ContentType: "application/pdf",
				ExamID:      req.ExamID,
				StudentID:   req.StudentID,
				Emergency:   true,
			})
		}
	}

	now := s.now()
	submission := existing
	submission.ExamID = req.ExamID
	submission.StudentID = req.StudentID
	submission.StudentName = req.StudentName
	submission.StorageMode = models.StorageModeTextFallback
	submission.TextContent = s.sanitizer.Sanitize(req.TextContent)
	submission.DegradedReason = fmt.Sprintf("emergency submission via %s endpoint", tier)
	submission.ReassemblyComplete = true
	submission.SubmittedAt = &now
	if blobID != "" {
		submission.StorageMode = models.StorageModeChunkedStore
		submission.PrimaryBlobID = &blobID
		submission.DegradedReason = fmt.Sprintf("emergency submission via %s endpoint (pdf recovered)", tier)
	}

	if err := s.persistSubmission(ctx, &submission); err != nil {
		return err
	}

	s.completeSubmission(ctx, submission)

	return nil
}

func (s *intakeService) Check(ctx context.Context, examID string, studentID uint) (dto.CheckResponse, error) {
	cacheKey := fmt.Sprintf("submitted:%s:%d", examID, studentID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.CheckResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read check cache")
		}
	}

	submission, err := s.submissions.FindActive(ctx, examID, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.CheckResponse{}, nil
		}
		return dto.CheckResponse{}, err
	}

	response := dto.CheckResponse{
		Submitted:    true,
		Complete:     submission.IsComplete(),
		SubmissionID: &submission.ID,
		StorageMode:  submission.StorageMode,
	}

	if s.cache != nil && response.Complete {
		if payload, merr := json.Marshal(response); merr == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.checkTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store check cache")
			}
		}
	}

	return response, nil
}

func (s *intakeService) GetFile(ctx context.Context, blobID string) (models.StoredBlob, []byte, error) {
	info, err := s.blobs.Stat(ctx, blobID)
	if err != nil {
		return models.StoredBlob{}, nil, err
	}

	content, err := s.blobs.Get(ctx, blobID)
	if err != nil {
		return models.StoredBlob{}, nil, err
	}

	return info, content, nil
}

// persistSubmission creates or updates depending on whether the record has
// an id yet. The find-then-create duplicate guard upstream is best-effort;
// the unique (exam, student) index closes the race at the data layer.
func (s *intakeService) persistSubmission(ctx context.Context, submission *models.Submission) error {
	if submission.ID == 0 {
		return s.submissions.Create(ctx, submission)
	}
	return s.submissions.Update(ctx, submission)
}

func (s *intakeService) completeSubmission(ctx context.Context, submission models.Submission) {
	if s.cache != nil {
		cacheKey := fmt.Sprintf("submitted:%s:%d", submission.ExamID, submission.StudentID)
		if err := s.cache.Del(ctx, cacheKey).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to invalidate check cache")
		}
	}

	if s.events != nil {
		s.events.SubmissionCompleted(ctx, submission)
	}
}

// decodePDFData validates and decodes a base64 data URI. The single-shot
// path requires the exact PDF MIME prefix; chunk payloads may carry any of
// the known prefixes or arrive as raw base64.
func (s *intakeService) decodePDFData(data string, requirePDFPrefix bool) ([]byte, error) {
	trimmed := strings.TrimSpace(data)
	if requirePDFPrefix {
		if !strings.HasPrefix(trimmed, pdfDataPrefix) {
			return nil, ErrMissingPDFPrefix
		}
		trimmed = strings.TrimPrefix(trimmed, pdfDataPrefix)
	} else {
		for _, prefix := range knownDataPrefixes {
			if strings.HasPrefix(trimmed, prefix) {
				trimmed = strings.TrimPrefix(trimmed, prefix)
				break
			}
		}
	}

	if int64(len(trimmed)) > s.maxPayload*4/3+4 {
		return nil, ErrPayloadTooLarge
	}

	content, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	if len(content) == 0 {
		return nil, ErrEmptyPayload
	}
	if int64(len(content)) > s.maxPayload {
		return nil, ErrPayloadTooLarge
	}

	return content, nil
}

func progressVector(total int, receipts []models.ChunkReceipt) []bool {
	if total <= 0 {
		return nil
	}

	vector := make([]bool, total)
	for _, receipt := range receipts {
		if receipt.ChunkIndex >= 0 && receipt.ChunkIndex < total {
			vector[receipt.ChunkIndex] = true
		}
	}

	return vector
}
