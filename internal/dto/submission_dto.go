package dto

import (
	"time"

	"github.com/examify/submission-api/internal/models"
)

// SubmitRequest is the single-shot submission payload. Either PDFData or the
// TextOnly flag must be present; the handler enforces the data-URI prefix.
type SubmitRequest struct {
	ExamID      string `json:"examId" validate:"required"`
	StudentName string `json:"studentName"`
	PDFData     string `json:"pdfData"`
	FileName    string `json:"fileName"`
	TextOnly    bool   `json:"textOnly"`
	TextContent string `json:"textContent"`
}

// ChunkInitRequest begins a chunked submission.
type ChunkInitRequest struct {
	ExamID      string `json:"examId" validate:"required"`
	TotalChunks int    `json:"totalChunks" validate:"required,gt=0"`
	FileName    string `json:"fileName"`
}

// ChunkUploadRequest carries one chunk of a chunked submission.
type ChunkUploadRequest struct {
	SubmissionID uint   `json:"submissionId" validate:"required"`
	ChunkIndex   int    `json:"chunkIndex" validate:"gte=0"`
	TotalChunks  int    `json:"totalChunks" validate:"required,gt=0"`
	PDFData      string `json:"pdfData" validate:"required"`
}

// FinalizeRequest triggers reassembly of a chunked submission.
type FinalizeRequest struct {
	SubmissionID uint   `json:"submissionId" validate:"required"`
	ExamID       string `json:"examId"`
}

// EmergencyRequest is the degrade-ladder payload. Every field is optional:
// these endpoints accept whatever a failing client can still send.
type EmergencyRequest struct {
	ExamID      string `json:"examId"`
	StudentID   uint   `json:"studentId"`
	StudentName string `json:"studentName"`
	TextContent string `json:"textContent"`
	PDFData     string `json:"pdfData"`
	Screenshot  string `json:"screenshot"`
}

// GradeRequest updates grade and feedback on a completed submission.
type GradeRequest struct {
	Grade    *float64 `json:"grade" validate:"required,gte=0,lte=100"`
	Feedback *string  `json:"feedback" validate:"omitempty,min=3"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID                 uint       `json:"id"`
	ExamID             string     `json:"exam_id"`
	StudentID          uint       `json:"student_id"`
	StudentName        string     `json:"student_name"`
	StorageMode        string     `json:"storage_mode"`
	PrimaryBlobID      *string    `json:"primary_blob_id"`
	ExternalURL        string     `json:"external_url,omitempty"`
	FileName           string     `json:"file_name,omitempty"`
	IsChunked          bool       `json:"is_chunked"`
	TotalChunks        int        `json:"total_chunks"`
	ReceivedCount      int        `json:"received_count"`
	ChunkProgress      []bool     `json:"chunk_progress,omitempty"`
	ReadyForReassembly bool       `json:"ready_for_reassembly"`
	Complete           bool       `json:"complete"`
	DegradedReason     string     `json:"degraded_reason,omitempty"`
	Grade              *float64   `json:"grade"`
	Feedback           string     `json:"feedback,omitempty"`
	SubmittedAt        *time.Time `json:"submitted_at"`
	GradedAt           *time.Time `json:"graded_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// FinalizeResponse reports the outcome of a finalize call. Complete is true
// on every branch, including degraded ones; clients must never retry.
type FinalizeResponse struct {
	Complete       bool   `json:"complete"`
	SubmissionID   uint   `json:"submission_id"`
	StorageMode    string `json:"storage_mode"`
	PrimaryBlobID  string `json:"primary_blob_id,omitempty"`
	ByteSize       int64  `json:"byte_size"`
	ChunksUsed     int    `json:"chunks_used"`
	TotalChunks    int    `json:"total_chunks"`
	TextOnly       bool   `json:"textOnly"`
	DegradedReason string `json:"degraded_reason,omitempty"`
}

// CheckResponse answers the has-submitted lookup.
type CheckResponse struct {
	Submitted    bool   `json:"submitted"`
	Complete     bool   `json:"complete"`
	SubmissionID *uint  `json:"submission_id,omitempty"`
	StorageMode  string `json:"storage_mode,omitempty"`
}

// NewSubmissionResponse converts a Submission model into a DTO. The progress
// vector is derived from chunk receipts and may be nil for non-chunked modes.
func NewSubmissionResponse(model models.Submission, progress []bool) SubmissionResponse {
	return SubmissionResponse{
		ID:                 model.ID,
		ExamID:             model.ExamID,
		StudentID:          model.StudentID,
		StudentName:        model.StudentName,
		StorageMode:        model.StorageMode,
		PrimaryBlobID:      model.PrimaryBlobID,
		ExternalURL:        model.ExternalURL,
		FileName:           model.FileName,
		IsChunked:          model.IsChunked,
		TotalChunks:        model.TotalChunks,
		ReceivedCount:      model.ReceivedCount,
		ChunkProgress:      progress,
		ReadyForReassembly: model.ReadyForReassembly,
		Complete:           model.IsComplete(),
		DegradedReason:     model.DegradedReason,
		Grade:              model.Grade,
		Feedback:           model.Feedback,
		SubmittedAt:        model.SubmittedAt,
		GradedAt:           model.GradedAt,
		CreatedAt:          model.CreatedAt,
		UpdatedAt:          model.UpdatedAt,
	}
}

// NewSubmissionResponseSlice converts a list of models without progress vectors.
func NewSubmissionResponseSlice(submissions []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionResponse(submission, nil))
	}

	return responses
}
