package service_test

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/examify/submission-api/internal/blobstore"
	"github.com/examify/submission-api/internal/models"
	"github.com/examify/submission-api/internal/service"
)

func materialFileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))

	return req.MultipartForm.File["file"][0]
}

func TestMaterialsUploadAndGet(t *testing.T) {
	store := newFakeStore()
	svc := service.NewMaterialsService(store, 0, zerolog.New(io.Discard))
	ctx := context.Background()

	content := []byte("%PDF-1.4 lecture notes")
	resp, err := svc.Upload(ctx, materialFileHeader(t, "Week 1 Notes!.pdf", content), 70)
	require.NoError(t, err)
	require.Equal(t, "week-1-notes.pdf", resp.FileName)
	require.Equal(t, int64(len(content)), resp.SizeBytes)
	require.Equal(t, models.BucketStudyMaterials, store.lastPut.Bucket)

	info, got, err := svc.Get(ctx, resp.BlobID)
	require.NoError(t, err)
	require.Equal(t, content, got)
	require.Equal(t, resp.BlobID, info.ID)
}

func TestMaterialsUploadRejectsDisallowedType(t *testing.T) {
	store := newFakeStore()
	svc := service.NewMaterialsService(store, 0, zerolog.New(io.Discard))

	// ELF header sniffs as an executable
	_, err := svc.Upload(context.Background(), materialFileHeader(t, "tool.bin", []byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0}), 70)
	require.ErrorIs(t, err, service.ErrMaterialTypeNotAllowed)
}

func TestMaterialsUploadEnforcesSizeCap(t *testing.T) {
	store := newFakeStore()
	svc := service.NewMaterialsService(store, 8, zerolog.New(io.Discard))

	_, err := svc.Upload(context.Background(), materialFileHeader(t, "big.pdf", []byte("%PDF-1.4 way past the cap")), 70)
	require.ErrorIs(t, err, service.ErrMaterialTooLarge)
}

func TestMaterialsGetHidesOtherBuckets(t *testing.T) {
	store := newFakeStore()
	svc := service.NewMaterialsService(store, 0, zerolog.New(io.Discard))
	ctx := context.Background()

	id, err := store.Put(ctx, []byte("submission bytes"), blobstore.PutOptions{Bucket: models.BucketExamSubmissions})
	require.NoError(t, err)

	_, _, err = svc.Get(ctx, id)
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}
