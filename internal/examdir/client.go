package examdir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrExamNotFound indicates the directory has no exam with the given id.
var ErrExamNotFound = errors.New("exam not found")

// Exam is the metadata the directory returns for an exam id.
type Exam struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	DurationMinutes int    `json:"duration_minutes"`
	Active          bool   `json:"active"`
}

// Directory resolves exam ids against the external exam service.
type Directory interface {
	GetExam(ctx context.Context, examID string) (Exam, error)
}

type httpDirectory struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// New builds a Directory client for the exam service at baseURL.
func New(baseURL string, logger zerolog.Logger) Directory {
	return &httpDirectory{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With().Str("component", "exam_directory").Logger(),
	}
}

func (d *httpDirectory) GetExam(ctx context.Context, examID string) (Exam, error) {
	endpoint := fmt.Sprintf("%s/exams/%s", d.baseURL, url.PathEscape(examID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Exam{}, fmt.Errorf("exam directory request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return Exam{}, fmt.Errorf("exam directory call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Exam{}, ErrExamNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return Exam{}, fmt.Errorf("exam directory returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Success bool `json:"success"`
		Data    Exam `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return Exam{}, fmt.Errorf("exam directory decode: %w", err)
	}
	if !envelope.Success {
		return Exam{}, ErrExamNotFound
	}

	return envelope.Data, nil
}
