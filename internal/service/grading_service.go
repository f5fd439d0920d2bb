package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/examify/submission-api/internal/dto"
	"github.com/examify/submission-api/internal/repository"
)

// ErrNotGradable indicates the submission has not reached a terminal state.
var ErrNotGradable = errors.New("submission is not complete yet")

// GradingService lets instructors review and grade completed submissions.
// Grading only touches grade and feedback; storage state is frozen once a
// submission completes.
type GradingService interface {
	ListByExam(ctx context.Context, examID string) ([]dto.SubmissionResponse, error)
	Grade(ctx context.Context, submissionID uint, req dto.GradeRequest) (dto.SubmissionResponse, error)
}

type gradingService struct {
	submissions repository.SubmissionRepository
	validator   *validator.Validate
	logger      zerolog.Logger
	now         func() time.Time
}

// NewGradingService constructs the grading service.
func NewGradingService(submissions repository.SubmissionRepository, validate *validator.Validate, logger zerolog.Logger) GradingService {
	return &gradingService{
		submissions: submissions,
		validator:   validate,
		logger:      logger.With().Str("component", "grading_service").Logger(),
		now:         time.Now,
	}
}

func (s *gradingService) ListByExam(ctx context.Context, examID string) ([]dto.SubmissionResponse, error) {
	submissions, err := s.submissions.FindByExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	return dto.NewSubmissionResponseSlice(submissions), nil
}

func (s *gradingService) Grade(ctx context.Context, submissionID uint, req dto.GradeRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if !submission.IsComplete() {
		return dto.SubmissionResponse{}, ErrNotGradable
	}

	now := s.now()
	submission.Grade = req.Grade
	submission.GradedAt = &now
	if req.Feedback != nil {
		submission.Feedback = *req.Feedback
	}

	if err := s.submissions.Update(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	s.logger.Info().Uint("submission_id", submission.ID).Float64("grade", *req.Grade).Msg("submission graded")

	return dto.NewSubmissionResponse(submission, nil), nil
}
