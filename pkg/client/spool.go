package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// spooledSubmission is the on-disk format for submissions that could not be
// delivered over any network tier.
type spooledSubmission struct {
	ExamID      string    `json:"examId"`
	StudentID   uint      `json:"studentId"`
	StudentName string    `json:"studentName"`
	FileName    string    `json:"fileName"`
	PDFBase64   string    `json:"pdfBase64"`
	SpooledAt   time.Time `json:"spooledAt"`
}

// spool writes the submission to the local spool directory. This is the last
// rung: it only errors when the disk itself is unusable.
func (c *Client) spool(sub Submission) (Result, error) {
	if c.cfg.SpoolDir == "" {
		return Result{}, fmt.Errorf("all upload tiers failed and no spool directory is configured")
	}
	if err := os.MkdirAll(c.cfg.SpoolDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create spool dir: %w", err)
	}

	record := spooledSubmission{
		ExamID:      sub.ExamID,
		StudentID:   c.cfg.StudentID,
		StudentName: c.cfg.StudentName,
		FileName:    sub.FileName,
		PDFBase64:   base64.StdEncoding.EncodeToString(sub.PDF),
		SpooledAt:   time.Now(),
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return Result{}, err
	}

	name := fmt.Sprintf("submission-%s-%d.json", sanitizeSpoolName(sub.ExamID), time.Now().UnixNano())
	path := filepath.Join(c.cfg.SpoolDir, name)
	if err := os.WriteFile(path, encoded, 0o600); err != nil {
		return Result{}, fmt.Errorf("write spool file: %w", err)
	}

	c.logger.Error().Str("path", path).Str("exam_id", sub.ExamID).
		Msg("submission spooled to disk, manual recovery required")

	return Result{Tier: TierSpool, NeedsManualRecovery: true, SpoolPath: path}, nil
}

// ReplaySpooled retries every spooled submission through the network cascade
// and removes the files that get delivered. It returns the number delivered
// and the first error encountered while reading the spool.
func (c *Client) ReplaySpooled(ctx context.Context) (int, error) {
	if c.cfg.SpoolDir == "" {
		return 0, nil
	}

	entries, err := os.ReadDir(c.cfg.SpoolDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	delivered := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(c.cfg.SpoolDir, entry.Name())

		raw, err := os.ReadFile(path)
		if err != nil {
			c.logger.Warn().Err(err).Str("path", path).Msg("unreadable spool file")
			continue
		}
		var record spooledSubmission
		if err := json.Unmarshal(raw, &record); err != nil {
			c.logger.Warn().Err(err).Str("path", path).Msg("corrupt spool file")
			continue
		}
		pdf, err := base64.StdEncoding.DecodeString(record.PDFBase64)
		if err != nil {
			c.logger.Warn().Err(err).Str("path", path).Msg("corrupt spooled pdf")
			continue
		}

		result, err := c.Submit(ctx, Submission{
			ExamID:   record.ExamID,
			FileName: record.FileName,
			PDF:      pdf,
		})
		if err != nil || result.Tier == TierSpool {
			continue
		}

		if err := os.Remove(path); err != nil {
			c.logger.Warn().Err(err).Str("path", path).Msg("delivered but could not remove spool file")
		}
		delivered++
	}

	return delivered, nil
}

func sanitizeSpoolName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
