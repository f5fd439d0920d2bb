package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/examify/submission-api/internal/blobstore"
	"github.com/examify/submission-api/internal/dto"
	"github.com/examify/submission-api/internal/models"
)

var (
	// ErrMaterialTooLarge indicates the material exceeded the size limit.
	ErrMaterialTooLarge = errors.New("material exceeds maximum allowed size")
	// ErrMaterialTypeNotAllowed indicates the MIME type is not permitted.
	ErrMaterialTypeNotAllowed = errors.New("material file type not allowed")
)

// MaterialsService stores and streams study-material blobs. The publishing
// workflow around them lives elsewhere; this service only owns the bytes.
type MaterialsService interface {
	Upload(ctx context.Context, file *multipart.FileHeader, uploaderID uint) (dto.MaterialUploadResponse, error)
	Get(ctx context.Context, blobID string) (models.StoredBlob, []byte, error)
}

type materialsService struct {
	blobs   blobstore.Store
	maxSize int64
	logger  zerolog.Logger
}

// NewMaterialsService constructs the study-materials service.
func NewMaterialsService(blobs blobstore.Store, maxSizeBytes int64, logger zerolog.Logger) MaterialsService {
	if maxSizeBytes <= 0 {
		maxSizeBytes = 50 * 1024 * 1024
	}

	return &materialsService{
		blobs:   blobs,
		maxSize: maxSizeBytes,
		logger:  logger.With().Str("component", "materials_service").Logger(),
	}
}

func (s *materialsService) Upload(ctx context.Context, file *multipart.FileHeader, uploaderID uint) (dto.MaterialUploadResponse, error) {
	if file == nil {
		return dto.MaterialUploadResponse{}, errors.New("file is required")
	}
	if file.Size > s.maxSize {
		return dto.MaterialUploadResponse{}, ErrMaterialTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		return dto.MaterialUploadResponse{}, fmt.Errorf("open material: %w", err)
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		return dto.MaterialUploadResponse{}, fmt.Errorf("read material: %w", err)
	}
	if int64(buf.Len()) > s.maxSize {
		return dto.MaterialUploadResponse{}, ErrMaterialTooLarge
	}

	mime := mimetype.Detect(buf.Bytes())
	if !isAllowedMaterialType(mime) {
		return dto.MaterialUploadResponse{}, ErrMaterialTypeNotAllowed
	}

	name := sanitizeFileName(file.Filename)
	blobID, err := s.blobs.Put(ctx, buf.Bytes(), blobstore.PutOptions{
		Bucket:      models.BucketStudyMaterials,
		FileName:    name,
		ContentType: mime.String(),
		StudentID:   uploaderID,
	})
	if err != nil {
		return dto.MaterialUploadResponse{}, err
	}

	s.logger.Info().Str("blob_id", blobID).Str("file_name", name).Msg("study material stored")

	return dto.MaterialUploadResponse{
		BlobID:    blobID,
		FileName:  name,
		SizeBytes: int64(buf.Len()),
		MimeType:  mime.String(),
	}, nil
}

func (s *materialsService) Get(ctx context.Context, blobID string) (models.StoredBlob, []byte, error) {
	info, err := s.blobs.Stat(ctx, blobID)
	if err != nil {
		return models.StoredBlob{}, nil, err
	}
	if info.Bucket != models.BucketStudyMaterials {
		return models.StoredBlob{}, nil, blobstore.ErrNotFound
	}

	content, err := s.blobs.Get(ctx, blobID)
	if err != nil {
		return models.StoredBlob{}, nil, err
	}

	return info, content, nil
}

func isAllowedMaterialType(mime *mimetype.MIME) bool {
	allowed := []string{"application/pdf", "application/zip", "application/x-zip-compressed", "text/plain"}
	for _, a := range allowed {
		if mime.Is(a) {
			return true
		}
	}

	return strings.HasPrefix(mime.String(), "image/")
}

func sanitizeFileName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("material-%d", time.Now().Unix())
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".bin"
	}

	return base + ext
}
