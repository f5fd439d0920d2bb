package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Bucket names partition blobs by purpose.
const (
	BucketExamSubmissions = "exam-submissions"
	BucketStudyMaterials  = "study-materials"
)

// StoredBlob is one opaque object in the chunked binary store. Frequently
// queried metadata lives in indexed columns; everything else clients attach
// rides in the JSON bag.
type StoredBlob struct {
	ID                 string         `gorm:"primaryKey;size:36" json:"id"`
	Bucket             string         `gorm:"size:64;not null;index" json:"bucket"`
	FileName           string         `gorm:"size:255" json:"file_name"`
	ContentType        string         `gorm:"size:128" json:"content_type"`
	SizeBytes          int64          `json:"size_bytes"`
	Content            []byte         `json:"-"`
	ExamID             string         `gorm:"size:64;index" json:"exam_id"`
	StudentID          uint           `gorm:"index" json:"student_id"`
	SubmissionID       *uint          `gorm:"index" json:"submission_id"`
	ChunkIndex         string         `gorm:"size:16" json:"chunk_index"`
	TotalChunks        int            `json:"total_chunks"`
	IsReassembled      bool           `json:"is_reassembled"`
	IsPartialRecovery  bool           `json:"is_partial_recovery"`
	OriginalChunkCount int            `json:"original_chunk_count"`
	Metadata           datatypes.JSON `gorm:"type:json" json:"-"`
	CreatedAt          time.Time      `json:"created_at"`
}

// SetMetadata serializes the extra metadata bag into the JSON storage column.
func (b *StoredBlob) SetMetadata(bag map[string]string) {
	data, err := json.Marshal(bag)
	if err != nil {
		b.Metadata = datatypes.JSON([]byte("{}"))
		return
	}
	b.Metadata = datatypes.JSON(data)
}

// MetadataBag deserializes the stored metadata into a Go map.
func (b StoredBlob) MetadataBag() map[string]string {
	if len(b.Metadata) == 0 {
		return nil
	}

	var bag map[string]string
	if err := json.Unmarshal(b.Metadata, &bag); err != nil {
		return nil
	}

	return bag
}
