package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/examify/submission-api/internal/models"
)

// SubjectSubmissionCompleted is the subject terminal submissions are published on.
const SubjectSubmissionCompleted = "examify.submission.completed"

// Publisher broadcasts submission lifecycle events over NATS for grading and
// export consumers. All publishes are fire-and-forget: a lost event never
// blocks or fails an intake request.
type Publisher struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

// NewPublisher wraps an established NATS connection. A nil connection yields
// a publisher that drops everything, so wiring stays optional.
func NewPublisher(conn *nats.Conn, logger zerolog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger.With().Str("component", "events").Logger(),
	}
}

type submissionCompletedEvent struct {
	SubmissionID   uint      `json:"submission_id"`
	ExamID         string    `json:"exam_id"`
	StudentID      uint      `json:"student_id"`
	StorageMode    string    `json:"storage_mode"`
	DegradedReason string    `json:"degraded_reason,omitempty"`
	CompletedAt    time.Time `json:"completed_at"`
}

// SubmissionCompleted publishes a terminal-state event.
func (p *Publisher) SubmissionCompleted(_ context.Context, submission models.Submission) {
	if p == nil || p.conn == nil {
		return
	}

	event := submissionCompletedEvent{
		SubmissionID:   submission.ID,
		ExamID:         submission.ExamID,
		StudentID:      submission.StudentID,
		StorageMode:    submission.StorageMode,
		DegradedReason: submission.DegradedReason,
		CompletedAt:    time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to marshal submission event")
		return
	}

	if err := p.conn.Publish(SubjectSubmissionCompleted, payload); err != nil {
		p.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to publish submission event")
	}
}
