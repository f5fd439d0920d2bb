package dto_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/examify/submission-api/internal/dto"
)

func TestByteBufferAcceptsBase64String(t *testing.T) {
	var req dto.BufferUploadRequest
	err := json.Unmarshal([]byte(`{"pdfBuffer":"JVBERi0xLjQ=","examId":"exam-1"}`), &req)
	require.NoError(t, err)
	require.Equal(t, []byte("%PDF-1.4"), []byte(req.PDFBuffer))
}

func TestByteBufferAcceptsNumberArray(t *testing.T) {
	// Node-style serialized buffer
	var req dto.BufferUploadRequest
	err := json.Unmarshal([]byte(`{"pdfBuffer":[37,80,68,70],"examId":"exam-1"}`), &req)
	require.NoError(t, err)
	require.Equal(t, []byte("%PDF"), []byte(req.PDFBuffer))
}

func TestByteBufferRejectsOutOfRangeValues(t *testing.T) {
	var buffer dto.ByteBuffer
	require.Error(t, json.Unmarshal([]byte(`[12,999]`), &buffer))
	require.Error(t, json.Unmarshal([]byte(`"not-base64!!"`), &buffer))
}
