package blobstore_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/examify/submission-api/internal/blobstore"
	"github.com/examify/submission-api/internal/models"
)

func setupStore(t *testing.T, name string) blobstore.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	store := blobstore.New(db, 30*time.Second, 15*time.Second, zerolog.New(io.Discard))
	require.NoError(t, store.Connect(context.Background()))
	require.True(t, store.Ready())

	return store
}

func TestStorePutGetRoundTrip(t *testing.T) {
	store := setupStore(t, "blobstore_roundtrip")
	ctx := context.Background()

	content := []byte("%PDF-1.4 exam answer bytes")
	id, err := store.Put(ctx, content, blobstore.PutOptions{
		FileName:    "exam-final.pdf",
		ContentType: "application/pdf",
		ExamID:      "exam-rt",
		StudentID:   7,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, content, got)

	info, err := store.Stat(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "exam-final.pdf", info.FileName)
	require.Equal(t, "application/pdf", info.ContentType)
	require.Equal(t, int64(len(content)), info.SizeBytes)
	require.Equal(t, models.BucketExamSubmissions, info.Bucket)
	require.Empty(t, info.Content, "stat must not load the payload")
}

func TestStoreGetUnknownID(t *testing.T) {
	store := setupStore(t, "blobstore_unknown")

	_, err := store.Get(context.Background(), "no-such-blob")
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	_, err = store.Stat(context.Background(), "no-such-blob")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestStoreDelete(t *testing.T) {
	store := setupStore(t, "blobstore_delete")
	ctx := context.Background()

	id, err := store.Put(ctx, []byte("chunk"), blobstore.PutOptions{FileName: "a.chunk-0"})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, id))

	_, err = store.Get(ctx, id)
	require.ErrorIs(t, err, blobstore.ErrNotFound)
	require.ErrorIs(t, store.Delete(ctx, id), blobstore.ErrNotFound)
}

func TestStoreListFilters(t *testing.T) {
	store := setupStore(t, "blobstore_list")
	ctx := context.Background()

	submissionID := uint(42)
	for i, index := range []string{"0", "1", "2"} {
		_, err := store.Put(ctx, []byte{byte(i)}, blobstore.PutOptions{
			FileName:     "answers.pdf.chunk-" + index,
			ExamID:       "exam-list",
			StudentID:    3,
			SubmissionID: &submissionID,
			ChunkIndex:   index,
			TotalChunks:  3,
		})
		require.NoError(t, err)
	}
	// blob from another submission must not leak into filtered listings
	otherSubmission := uint(99)
	_, err := store.Put(ctx, []byte("x"), blobstore.PutOptions{
		FileName:     "other.pdf.chunk-0",
		ExamID:       "exam-list",
		SubmissionID: &otherSubmission,
		ChunkIndex:   "0",
	})
	require.NoError(t, err)

	all, err := store.List(ctx, blobstore.Filter{SubmissionID: &submissionID})
	require.NoError(t, err)
	require.Len(t, all, 3)

	index := "1"
	one, err := store.List(ctx, blobstore.Filter{SubmissionID: &submissionID, ChunkIndex: &index})
	require.NoError(t, err)
	require.Len(t, one, 1)
	require.Equal(t, "answers.pdf.chunk-1", one[0].FileName)

	byName, err := store.List(ctx, blobstore.Filter{SubmissionID: &submissionID, FileNamePattern: "%chunk-2"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	require.Equal(t, "answers.pdf.chunk-2", byName[0].FileName)
}

func TestStoreLazyConnectOnFirstUse(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:blobstore_lazy?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	store := blobstore.New(db, 0, 0, zerolog.New(io.Discard))
	require.False(t, store.Ready())

	// first Put must bring the store up without an explicit Connect
	id, err := store.Put(context.Background(), []byte("late"), blobstore.PutOptions{FileName: "late.txt"})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.True(t, store.Ready())
}
