package blobstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/examify/submission-api/internal/models"
)

var (
	// ErrStoreUnavailable indicates the backing connection is not ready.
	ErrStoreUnavailable = errors.New("binary store unavailable")
	// ErrWriteTimeout indicates a write exceeded its deadline and was aborted.
	ErrWriteTimeout = errors.New("binary store write timed out")
	// ErrNotFound indicates the blob id does not resolve to a stored object.
	ErrNotFound = errors.New("blob not found")
)

// PutOptions carries the metadata bag attached to a stored blob.
type PutOptions struct {
	Bucket             string
	FileName           string
	ContentType        string
	ExamID             string
	StudentID          uint
	SubmissionID       *uint
	ChunkIndex         string
	TotalChunks        int
	IsReassembled      bool
	IsPartialRecovery  bool
	OriginalChunkCount int
	Extra              map[string]string
	// Emergency writes run under the shorter timeout so degraded paths
	// never hold a dying connection for long.
	Emergency bool
}

// Filter narrows blob listings by indexed metadata.
type Filter struct {
	Bucket          string
	ExamID          string
	StudentID       *uint
	SubmissionID    *uint
	ChunkIndex      *string
	FileNamePattern string
	ReassembledOnly bool
}

// Store is the chunked binary store the intake pipeline writes into.
type Store interface {
	Connect(ctx context.Context) error
	Ready() bool
	Put(ctx context.Context, content []byte, opts PutOptions) (string, error)
	Get(ctx context.Context, id string) ([]byte, error)
	Stat(ctx context.Context, id string) (models.StoredBlob, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter Filter) ([]models.StoredBlob, error)
}

type gormStore struct {
	db               *gorm.DB
	writeTimeout     time.Duration
	emergencyTimeout time.Duration
	logger           zerolog.Logger

	mu    sync.Mutex
	ready bool
}

// New constructs a blob store backed by the relational database.
func New(db *gorm.DB, writeTimeout, emergencyTimeout time.Duration, logger zerolog.Logger) Store {
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	if emergencyTimeout <= 0 {
		emergencyTimeout = 15 * time.Second
	}

	return &gormStore{
		db:               db,
		writeTimeout:     writeTimeout,
		emergencyTimeout: emergencyTimeout,
		logger:           logger.With().Str("component", "blobstore").Logger(),
	}
}

// Connect verifies the backing connection and migrates the blob table.
// Callers may invoke it again after a failure; the store also re-attempts
// on first use so process start does not require a live database.
func (s *gormStore) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("binary store connect: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("binary store ping: %w", err)
	}

	if err := s.db.WithContext(ctx).AutoMigrate(&models.StoredBlob{}); err != nil {
		return fmt.Errorf("binary store migrate: %w", err)
	}

	s.ready = true
	s.logger.Info().Msg("binary store ready")

	return nil
}

// Ready reports whether the store has a verified connection.
func (s *gormStore) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// ensureReady re-attempts connection once when the store was not ready at
// first use, then surfaces ErrStoreUnavailable.
func (s *gormStore) ensureReady(ctx context.Context) error {
	if s.Ready() {
		return nil
	}

	if err := s.Connect(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("binary store still not ready")
		return ErrStoreUnavailable
	}

	return nil
}

func (s *gormStore) Put(ctx context.Context, content []byte, opts PutOptions) (string, error) {
	if err := s.ensureReady(ctx); err != nil {
		return "", err
	}

	timeout := s.writeTimeout
	if opts.Emergency {
		timeout = s.emergencyTimeout
	}

	writeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bucket := opts.Bucket
	if bucket == "" {
		bucket = models.BucketExamSubmissions
	}

	blob := models.StoredBlob{
		ID:                 uuid.NewString(),
		Bucket:             bucket,
		FileName:           opts.FileName,
		ContentType:        opts.ContentType,
		SizeBytes:          int64(len(content)),
		Content:            content,
		ExamID:             opts.ExamID,
		StudentID:          opts.StudentID,
		SubmissionID:       opts.SubmissionID,
		ChunkIndex:         opts.ChunkIndex,
		TotalChunks:        opts.TotalChunks,
		IsReassembled:      opts.IsReassembled,
		IsPartialRecovery:  opts.IsPartialRecovery,
		OriginalChunkCount: opts.OriginalChunkCount,
	}
	blob.SetMetadata(opts.Extra)

	if err := s.db.WithContext(writeCtx).Create(&blob).Error; err != nil {
		if errors.Is(writeCtx.Err(), context.DeadlineExceeded) {
			s.logger.Error().Str("file_name", opts.FileName).Dur("timeout", timeout).Msg("blob write aborted on timeout")
			return "", ErrWriteTimeout
		}
		return "", fmt.Errorf("blob write: %w", err)
	}

	s.logger.Debug().Str("blob_id", blob.ID).Str("bucket", bucket).Int64("size_bytes", blob.SizeBytes).Msg("blob stored")

	return blob.ID, nil
}

func (s *gormStore) Get(ctx context.Context, id string) ([]byte, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	var blob models.StoredBlob
	if err := s.db.WithContext(ctx).First(&blob, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blob read: %w", err)
	}

	return blob.Content, nil
}

func (s *gormStore) Stat(ctx context.Context, id string) (models.StoredBlob, error) {
	if err := s.ensureReady(ctx); err != nil {
		return models.StoredBlob{}, err
	}

	var blob models.StoredBlob
	if err := s.db.WithContext(ctx).Omit("content").First(&blob, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.StoredBlob{}, ErrNotFound
		}
		return models.StoredBlob{}, fmt.Errorf("blob stat: %w", err)
	}

	return blob, nil
}

// Delete is best-effort: callers treat failure as non-fatal and log it,
// since an orphaned blob is preferable to failing a replace flow.
func (s *gormStore) Delete(ctx context.Context, id string) error {
	if err := s.ensureReady(ctx); err != nil {
		return err
	}

	result := s.db.WithContext(ctx).Delete(&models.StoredBlob{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("blob delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *gormStore) List(ctx context.Context, filter Filter) ([]models.StoredBlob, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&models.StoredBlob{}).Omit("content")

	if filter.Bucket != "" {
		query = query.Where("bucket = ?", filter.Bucket)
	}
	if filter.ExamID != "" {
		query = query.Where("exam_id = ?", filter.ExamID)
	}
	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}
	if filter.SubmissionID != nil {
		query = query.Where("submission_id = ?", *filter.SubmissionID)
	}
	if filter.ChunkIndex != nil {
		query = query.Where("chunk_index = ?", *filter.ChunkIndex)
	}
	if filter.FileNamePattern != "" {
		query = query.Where("file_name LIKE ?", filter.FileNamePattern)
	}
	if filter.ReassembledOnly {
		query = query.Where("is_reassembled = ?", true)
	}

	var blobs []models.StoredBlob
	if err := query.Order("created_at ASC").Find(&blobs).Error; err != nil {
		return nil, fmt.Errorf("blob list: %w", err)
	}

	return blobs, nil
}
