package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultChunkSize       = 2 << 20  // raw bytes per chunk
	defaultSingleShotLimit = 10 << 20 // above this we go straight to chunking
	defaultRetryAttempts   = 3
	defaultRetryBackoff    = 500 * time.Millisecond
	pdfDataPrefix          = "data:application/pdf;base64,"
)

// Tier labels reported in Result, ordered from best to worst outcome.
const (
	TierCDN        = "cdn-buffer"
	TierSingleShot = "single-shot"
	TierChunked    = "chunked"
	TierEmergency  = "emergency-ladder"
	TierSpool      = "local-spool"
)

// Config configures an upload Client.
type Config struct {
	BaseURL     string
	Token       string
	StudentID   uint
	StudentName string

	// SpoolDir is where submissions land when every network tier fails.
	// Empty disables spooling.
	SpoolDir string

	ChunkSize       int
	SingleShotLimit int
	RetryAttempts   int
	RetryBackoff    time.Duration

	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Result reports which tier finally accepted the submission.
type Result struct {
	Tier                string
	SubmissionID        uint
	URL                 string
	Complete            bool
	NeedsManualRecovery bool
	SpoolPath           string
}

// Client drives the upload cascade for exam submissions. Each tier is tried
// in order and the cascade only fails when even local spooling is impossible.
type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

// New builds a Client, filling in defaults for unset tuning knobs.
func New(cfg Config) *Client {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.SingleShotLimit <= 0 {
		cfg.SingleShotLimit = defaultSingleShotLimit
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: cfg.Logger.With().Str("component", "upload_client").Logger(),
	}
}

// Submission is what the cascade tries to deliver.
type Submission struct {
	ExamID     string
	FileName   string
	PDF        []byte
	Screenshot []byte // optional fallback capture, stripped on degraded tiers
}

// Submit renders nothing itself: callers hand over final PDF bytes (see
// Whiteboard.RenderPDF). It walks the cascade and returns the first tier
// that accepted the submission.
func (c *Client) Submit(ctx context.Context, sub Submission) (Result, error) {
	if len(sub.PDF) == 0 {
		return Result{}, fmt.Errorf("submission has no pdf payload")
	}

	if result, err := c.tryCDNBuffer(ctx, sub); err == nil {
		return result, nil
	} else {
		c.logger.Warn().Err(err).Str("exam_id", sub.ExamID).Msg("cdn buffer upload failed, falling back")
	}

	if len(sub.PDF) <= c.cfg.SingleShotLimit {
		if result, err := c.trySingleShot(ctx, sub); err == nil {
			return result, nil
		} else {
			c.logger.Warn().Err(err).Str("exam_id", sub.ExamID).Msg("single-shot upload failed, falling back")
		}
	}

	if result, err := c.tryChunked(ctx, sub); err == nil {
		return result, nil
	} else {
		c.logger.Warn().Err(err).Str("exam_id", sub.ExamID).Msg("chunked upload failed, falling back")
	}

	if result, err := c.tryEmergencyLadder(ctx, sub); err == nil {
		return result, nil
	} else {
		c.logger.Error().Err(err).Str("exam_id", sub.ExamID).Msg("every emergency endpoint failed")
	}

	return c.spool(sub)
}

// SubmitRendered renders the capture and submits the resulting PDF through
// the cascade.
func (c *Client) SubmitRendered(ctx context.Context, renderer PageRenderer, examID, fileName string) (Result, error) {
	pdf, err := renderer.RenderPDF()
	if err != nil {
		return Result{}, fmt.Errorf("render capture: %w", err)
	}

	return c.Submit(ctx, Submission{ExamID: examID, FileName: fileName, PDF: pdf})
}

// tryCDNBuffer posts the raw PDF to the external-CDN endpoint. The timeout
// grows with payload size so large uploads on slow links are not cut off.
func (c *Client) tryCDNBuffer(ctx context.Context, sub Submission) (Result, error) {
	payload := map[string]any{
		"pdfBuffer": base64.StdEncoding.EncodeToString(sub.PDF),
		"fileName":  sub.FileName,
		"examId":    sub.ExamID,
		"metadata": map[string]string{
			"studentName": c.cfg.StudentName,
		},
	}

	timeout := 30*time.Second + time.Duration(len(sub.PDF)/(100<<10))*time.Second
	var data struct {
		URL          string `json:"url"`
		SubmissionID uint   `json:"submission_id"`
	}
	err := c.retry(ctx, func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/v1/upload-pdf/buffer", payload, timeout, true, &data)
	})
	if err != nil {
		return Result{}, err
	}

	return Result{Tier: TierCDN, SubmissionID: data.SubmissionID, URL: data.URL, Complete: true}, nil
}

func (c *Client) trySingleShot(ctx context.Context, sub Submission) (Result, error) {
	payload := map[string]any{
		"examId":      sub.ExamID,
		"studentName": c.cfg.StudentName,
		"pdfData":     pdfDataPrefix + base64.StdEncoding.EncodeToString(sub.PDF),
		"fileName":    sub.FileName,
	}

	var data struct {
		ID uint `json:"id"`
	}
	err := c.retry(ctx, func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/v1/submissions", payload, 60*time.Second, true, &data)
	})
	if err != nil {
		return Result{}, err
	}

	return Result{Tier: TierSingleShot, SubmissionID: data.ID, Complete: true}, nil
}

// tryChunked splits the PDF into fixed-size chunks and drives the
// init / upload / finalize protocol. Individual chunks get their own retry
// budget; a chunk that never lands still lets finalize run, since the server
// degrades partial submissions instead of rejecting them.
func (c *Client) tryChunked(ctx context.Context, sub Submission) (Result, error) {
	chunks := splitChunks(sub.PDF, c.cfg.ChunkSize)

	var initData struct {
		ID uint `json:"id"`
	}
	initPayload := map[string]any{
		"examId":      sub.ExamID,
		"totalChunks": len(chunks),
		"fileName":    sub.FileName,
	}
	err := c.retry(ctx, func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/v1/submissions/chunk-init", initPayload, 15*time.Second, true, &initData)
	})
	if err != nil {
		return Result{}, fmt.Errorf("chunk init: %w", err)
	}

	delivered := 0
	for index, chunk := range chunks {
		payload := map[string]any{
			"submissionId": initData.ID,
			"chunkIndex":   index,
			"totalChunks":  len(chunks),
			"pdfData":      base64.StdEncoding.EncodeToString(chunk),
		}
		err := c.retry(ctx, func(ctx context.Context) error {
			return c.postJSON(ctx, "/api/v1/submissions/chunk", payload, 30*time.Second, true, nil)
		})
		if err != nil {
			c.logger.Warn().Err(err).Int("chunk_index", index).Msg("chunk upload failed, continuing")
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return Result{}, fmt.Errorf("no chunks delivered out of %d", len(chunks))
	}

	var finalizeData struct {
		Complete     bool `json:"complete"`
		SubmissionID uint `json:"submission_id"`
	}
	finalizePayload := map[string]any{
		"submissionId": initData.ID,
		"examId":       sub.ExamID,
	}
	err = c.retry(ctx, func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/v1/submissions/chunk-finalize", finalizePayload, 60*time.Second, true, &finalizeData)
	})
	if err != nil {
		return Result{}, fmt.Errorf("finalize: %w", err)
	}

	return Result{Tier: TierChunked, SubmissionID: finalizeData.SubmissionID, Complete: finalizeData.Complete}, nil
}

// tryEmergencyLadder walks the unauthenticated degrade endpoints in order,
// giving each one a longer timeout than the last. The most degraded tiers
// drop the screenshot and then the PDF itself so that at least the text
// record gets through.
func (c *Client) tryEmergencyLadder(ctx context.Context, sub Submission) (Result, error) {
	base := map[string]any{
		"examId":      sub.ExamID,
		"studentId":   c.cfg.StudentID,
		"studentName": c.cfg.StudentName,
		"textContent": fmt.Sprintf("emergency submission for exam %s by %s", sub.ExamID, c.cfg.StudentName),
	}

	fullPayload := clonePayload(base)
	fullPayload["pdfData"] = pdfDataPrefix + base64.StdEncoding.EncodeToString(sub.PDF)
	if len(sub.Screenshot) > 0 {
		fullPayload["screenshot"] = base64.StdEncoding.EncodeToString(sub.Screenshot)
	}

	noScreenshot := clonePayload(base)
	noScreenshot["pdfData"] = pdfDataPrefix + base64.StdEncoding.EncodeToString(sub.PDF)

	rungs := []struct {
		path    string
		payload map[string]any
		timeout time.Duration
	}{
		{"/api/v1/submissions/emergency", fullPayload, 5 * time.Second},
		{"/api/v1/submissions/simplified", noScreenshot, 10 * time.Second},
		{"/api/v1/submissions/ultra-simple", clonePayload(base), 15 * time.Second},
		{"/api/v1/exams/" + sub.ExamID + "/submit", clonePayload(base), 20 * time.Second},
	}

	var lastErr error
	for _, rung := range rungs {
		err := c.postJSON(ctx, rung.path, rung.payload, rung.timeout, false, nil)
		if err == nil {
			return Result{Tier: TierEmergency, Complete: false}, nil
		}
		lastErr = err
		c.logger.Warn().Err(err).Str("path", rung.path).Msg("emergency rung failed")
	}

	return Result{}, lastErr
}

// retry runs fn up to the configured attempt count with doubling backoff.
func (c *Client) retry(ctx context.Context, fn func(context.Context) error) error {
	backoff := c.cfg.RetryBackoff
	var err error
	for attempt := 0; attempt < c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if err = fn(ctx); err == nil {
			return nil
		}
	}

	return err
}

// postJSON sends a JSON body and decodes the response envelope into out.
func (c *Client) postJSON(ctx context.Context, path string, payload any, timeout time.Duration, authed bool, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if authed && c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, truncate(string(raw), 200))
	}
	if out == nil {
		return nil
	}

	var envelope struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("%s: decode envelope: %w", path, err)
	}
	if !envelope.Success {
		return fmt.Errorf("%s: %s", path, envelope.Message)
	}
	if len(envelope.Data) == 0 {
		return nil
	}

	return json.Unmarshal(envelope.Data, out)
}

func splitChunks(data []byte, size int) [][]byte {
	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for start := 0; start < len(data); start += size {
		end := start + size
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[start:end])
	}

	return chunks
}

func clonePayload(base map[string]any) map[string]any {
	clone := make(map[string]any, len(base)+2)
	for key, value := range base {
		clone[key] = value
	}

	return clone
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	return s[:limit]
}
