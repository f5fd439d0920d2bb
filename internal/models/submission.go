package models

import "time"

// Submission tracks one logical exam submission per (exam, student) pair
// across every intake mode, from first contact to its terminal state.
type Submission struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	ExamID             string         `gorm:"size:64;not null;uniqueIndex:idx_exam_student" json:"exam_id"`
	StudentID          uint           `gorm:"not null;uniqueIndex:idx_exam_student" json:"student_id"`
	StudentName        string         `gorm:"size:255" json:"student_name"`
	StorageMode        string         `gorm:"size:32;not null" json:"storage_mode"`
	PrimaryBlobID      *string        `gorm:"size:36" json:"primary_blob_id"`
	ExternalURL        string         `gorm:"size:512" json:"external_url"`
	ExternalRef        string         `gorm:"size:255" json:"external_ref"`
	FileName           string         `gorm:"size:255" json:"file_name"`
	IsChunked          bool           `json:"is_chunked"`
	TotalChunks        int            `json:"total_chunks"`
	ReceivedCount      int            `json:"received_count"`
	ReadyForReassembly bool           `json:"ready_for_reassembly"`
	ReassemblyComplete bool           `json:"reassembly_complete"`
	DegradedReason     string         `gorm:"type:text" json:"degraded_reason"`
	TextContent        string         `gorm:"type:text" json:"text_content"`
	Grade              *float64       `json:"grade"`
	Feedback           string         `gorm:"type:text" json:"feedback"`
	SubmittedAt        *time.Time     `json:"submitted_at"`
	GradedAt           *time.Time     `json:"graded_at"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	Chunks             []ChunkReceipt `gorm:"foreignKey:SubmissionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

const (
	// StorageModeChunkedStore indicates the submission lives in the blob store.
	StorageModeChunkedStore = "chunked-store"
	// StorageModeExternalCDN indicates the submission was uploaded straight to the CDN.
	StorageModeExternalCDN = "external-cdn"
	// StorageModeTextFallback indicates a degraded text-only record.
	StorageModeTextFallback = "text-fallback"
)

// IsComplete reports whether the submission has reached its terminal state.
// Grading may still touch grade and feedback afterwards.
func (s Submission) IsComplete() bool {
	return s.ReassemblyComplete
}

// IsGraded reports whether a final grade has been recorded.
func (s Submission) IsGraded() bool {
	return s.Grade != nil && s.GradedAt != nil
}

// ChunkReceipt records the arrival of one chunk of a chunked submission.
// The unique (submission, index) pair makes duplicate chunk uploads a no-op
// and lets the received count be recomputed from rows rather than trusted
// from callers.
type ChunkReceipt struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID uint      `gorm:"not null;uniqueIndex:idx_submission_chunk" json:"submission_id"`
	ChunkIndex   int       `gorm:"not null;uniqueIndex:idx_submission_chunk" json:"chunk_index"`
	BlobID       string    `gorm:"size:36;not null" json:"blob_id"`
	SizeBytes    int64     `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
}
