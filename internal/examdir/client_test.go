package examdir_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/examify/submission-api/internal/examdir"
)

func TestGetExamDecodesEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/exams/exam-101", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"exam-101","title":"Algorithms","duration_minutes":90,"active":true}}`))
	}))
	defer server.Close()

	directory := examdir.New(server.URL, zerolog.New(io.Discard))

	exam, err := directory.GetExam(context.Background(), "exam-101")
	require.NoError(t, err)
	require.Equal(t, "exam-101", exam.ID)
	require.Equal(t, "Algorithms", exam.Title)
	require.Equal(t, 90, exam.DurationMinutes)
	require.True(t, exam.Active)
}

func TestGetExamNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	directory := examdir.New(server.URL, zerolog.New(io.Discard))

	_, err := directory.GetExam(context.Background(), "nope")
	require.ErrorIs(t, err, examdir.ErrExamNotFound)
}

func TestGetExamUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	directory := examdir.New(server.URL, zerolog.New(io.Discard))

	_, err := directory.GetExam(context.Background(), "exam-101")
	require.Error(t, err)
	require.NotErrorIs(t, err, examdir.ErrExamNotFound)
}
