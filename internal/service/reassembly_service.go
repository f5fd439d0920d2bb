package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/examify/submission-api/internal/blobstore"
	"github.com/examify/submission-api/internal/observability"
)

// ErrReassemblyImpossible indicates not a single chunk could be retrieved.
var ErrReassemblyImpossible = errors.New("no chunks retrievable for reassembly")

// ReassemblyResult describes the outcome of a reassembly run. ChunksUsed may
// be lower than the number of requested chunks; callers compare it against
// the expected count to detect partial reassembly.
type ReassemblyResult struct {
	BlobID     string
	ByteSize   int64
	ChunksUsed int
}

// ReassemblyEngine concatenates stored chunks back into one logical blob.
type ReassemblyEngine interface {
	Reassemble(ctx context.Context, chunkIDs []string, finalName string, opts blobstore.PutOptions) (ReassemblyResult, error)
}

type reassemblyEngine struct {
	store  blobstore.Store
	logger zerolog.Logger
}

// NewReassemblyEngine constructs the engine on top of the blob store.
func NewReassemblyEngine(store blobstore.Store, logger zerolog.Logger) ReassemblyEngine {
	return &reassemblyEngine{
		store:  store,
		logger: logger.With().Str("component", "reassembly_engine").Logger(),
	}
}

// Reassemble fetches each chunk in the caller-supplied order and stores the
// concatenation as a single blob. A failed individual fetch is logged and
// skipped rather than aborting the run: for a timed exam a partial artifact
// beats no record at all. Only a run that retrieves zero chunks fails.
func (e *reassemblyEngine) Reassemble(ctx context.Context, chunkIDs []string, finalName string, opts blobstore.PutOptions) (ReassemblyResult, error) {
	start := time.Now()
	defer func() {
		observability.ReassemblyDuration().Observe(time.Since(start).Seconds())
	}()

	var assembled bytes.Buffer
	used := 0

	for i, id := range chunkIDs {
		content, err := e.store.Get(ctx, id)
		if err != nil {
			e.logger.Warn().Err(err).Str("blob_id", id).Int("position", i).Msg("chunk fetch failed, skipping")
			continue
		}

		assembled.Write(content)
		used++
	}

	if used == 0 {
		return ReassemblyResult{}, ErrReassemblyImpossible
	}

	opts.IsReassembled = true
	opts.OriginalChunkCount = len(chunkIDs)
	opts.IsPartialRecovery = used < len(chunkIDs)
	opts.FileName = finalName

	blobID, err := e.store.Put(ctx, assembled.Bytes(), opts)
	if err != nil {
		return ReassemblyResult{}, fmt.Errorf("store reassembled blob: %w", err)
	}

	e.logger.Info().
		Str("blob_id", blobID).
		Int("chunks_used", used).
		Int("chunks_requested", len(chunkIDs)).
		Int64("byte_size", int64(assembled.Len())).
		Msg("reassembly complete")

	return ReassemblyResult{
		BlobID:     blobID,
		ByteSize:   int64(assembled.Len()),
		ChunksUsed: used,
	}, nil
}
