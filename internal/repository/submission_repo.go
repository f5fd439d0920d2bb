package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/examify/submission-api/internal/models"
)

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	Update(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	FindActive(ctx context.Context, examID string, studentID uint) (models.Submission, error)
	FindByExam(ctx context.Context, examID string) ([]models.Submission, error)
	MarkChunkReceived(ctx context.Context, submissionID uint, chunkIndex int, blobID string, sizeBytes int64) error
	ChunkReceipts(ctx context.Context, submissionID uint) ([]models.ChunkReceipt, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Save(submission).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) FindActive(ctx context.Context, examID string, studentID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		Where("exam_id = ?", examID).
		Where("student_id = ?", studentID).
		Order("created_at DESC").
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) FindByExam(ctx context.Context, examID string) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.db.WithContext(ctx).
		Where("exam_id = ?", examID).
		Order("created_at DESC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

// MarkChunkReceived records one chunk arrival as a targeted pair of
// statements rather than a read-modify-write of the submission row, so two
// chunks racing for the same submission cannot lose an update. The receipt
// insert is idempotent via the unique (submission, index) pair, and the
// received count is recomputed from receipt rows inside the update itself.
func (r *submissionRepository) MarkChunkReceived(ctx context.Context, submissionID uint, chunkIndex int, blobID string, sizeBytes int64) error {
	receipt := models.ChunkReceipt{
		SubmissionID: submissionID,
		ChunkIndex:   chunkIndex,
		BlobID:       blobID,
		SizeBytes:    sizeBytes,
	}

	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&receipt).Error; err != nil {
		return err
	}

	return r.db.WithContext(ctx).Exec(`
		UPDATE submissions
		SET received_count = (SELECT COUNT(*) FROM chunk_receipts WHERE submission_id = submissions.id),
		    ready_for_reassembly = CASE
		      WHEN (SELECT COUNT(*) FROM chunk_receipts WHERE submission_id = submissions.id) >= total_chunks THEN ?
		      ELSE ready_for_reassembly
		    END,
		    updated_at = ?
		WHERE id = ?`, true, time.Now(), submissionID).Error
}

func (r *submissionRepository) ChunkReceipts(ctx context.Context, submissionID uint) ([]models.ChunkReceipt, error) {
	var receipts []models.ChunkReceipt
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("chunk_index ASC").
		Find(&receipts).Error; err != nil {
		return nil, err
	}

	return receipts, nil
}
