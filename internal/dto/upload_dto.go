package dto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ByteBuffer unmarshals either a base64 string or a JSON array of byte
// values. Older whiteboard clients serialize Node-style buffers as number
// arrays; newer ones send base64.
type ByteBuffer []byte

// UnmarshalJSON implements json.Unmarshaler.
func (b *ByteBuffer) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		*b = nil
		return nil
	}

	if data[0] == '"' {
		var encoded string
		if err := json.Unmarshal(data, &encoded); err != nil {
			return err
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("invalid base64 buffer: %w", err)
		}
		*b = decoded
		return nil
	}

	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("invalid byte array buffer: %w", err)
	}

	decoded := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return fmt.Errorf("byte value out of range at index %d", i)
		}
		decoded[i] = byte(v)
	}
	*b = decoded

	return nil
}

// BufferUploadRequest is the direct external-CDN upload payload.
type BufferUploadRequest struct {
	PDFBuffer ByteBuffer        `json:"pdfBuffer" validate:"required"`
	FileName  string            `json:"fileName"`
	ExamID    string            `json:"examId" validate:"required"`
	Metadata  map[string]string `json:"metadata"`
}

// UploadResponse reports where an uploaded artifact ended up.
type UploadResponse struct {
	URL          string `json:"url"`
	PublicID     string `json:"public_id,omitempty"`
	SizeBytes    int64  `json:"size_bytes"`
	Checksum     string `json:"checksum"`
	FileName     string `json:"file_name"`
	SubmissionID uint   `json:"submission_id,omitempty"`
}

// MaterialUploadResponse reports a stored study-material blob.
type MaterialUploadResponse struct {
	BlobID    string `json:"blob_id"`
	FileName  string `json:"file_name"`
	SizeBytes int64  `json:"size_bytes"`
	MimeType  string `json:"mime_type"`
}
