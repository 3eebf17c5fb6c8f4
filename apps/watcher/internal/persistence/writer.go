// Package persistence writes normalized transfer records in store-sized chunks
// and reports whether every chunk landed before a checkpoint may be committed.
package persistence

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"transferwatch/apps/watcher/internal/model"
)

// Store is a transfer record sink. PutTransfers must be idempotent on
// (ChainID, EventID) and accept at most MaxBatchSize records per call.
type Store interface {
	PutTransfers(ctx context.Context, records []model.TransferRecord) error
	MaxBatchSize() int
}

// Outcome summarizes one StoreAll call.
type Outcome struct {
	Records      int
	Chunks       int
	FailedChunks int
}

type Writer struct {
	store     Store
	batchSize int
	workers   int
	logger    *zap.Logger
}

// NewWriter caps batchSize at the store's own limit. workers bounds the number
// of chunk writes in flight.
func NewWriter(store Store, batchSize, workers int, logger *zap.Logger) *Writer {
	if limit := store.MaxBatchSize(); limit > 0 && (batchSize <= 0 || batchSize > limit) {
		batchSize = limit
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	return &Writer{store: store, batchSize: batchSize, workers: workers, logger: logger}
}

// StoreAll writes records for one block range. Every chunk is attempted and
// awaited; a failing chunk does not cancel its siblings. Any failure yields a
// *model.PersistenceError.
func (w *Writer) StoreAll(ctx context.Context, blockRange model.BlockRange, records []model.TransferRecord) (Outcome, error) {
	chunks := Chunk(records, w.batchSize)
	outcome := Outcome{Records: len(records), Chunks: len(chunks)}
	if len(chunks) == 0 {
		return outcome, nil
	}

	errs := make([]error, len(chunks))
	var g errgroup.Group
	g.SetLimit(w.workers)
	for i, chunk := range chunks {
		g.Go(func() error {
			if err := w.store.PutTransfers(ctx, chunk); err != nil {
				errs[i] = fmt.Errorf("chunk %d (%s..%s): %w", i, chunk[0].EventID, chunk[len(chunk)-1].EventID, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			outcome.FailedChunks++
		}
	}
	if outcome.FailedChunks == 0 {
		w.logger.Debug("Stored transfer records",
			zap.String("range", blockRange.String()),
			zap.Int("records", outcome.Records),
			zap.Int("chunks", outcome.Chunks))
		return outcome, nil
	}

	joined := errors.Join(errs...)
	w.logger.Error("Failed to store transfer records",
		zap.String("range", blockRange.String()),
		zap.Int("failed_chunks", outcome.FailedChunks),
		zap.Int("chunks", outcome.Chunks),
		zap.Error(joined))
	return outcome, &model.PersistenceError{
		Range:        blockRange,
		FailedChunks: outcome.FailedChunks,
		TotalChunks:  outcome.Chunks,
		Err:          joined,
	}
}

// Chunk splits records into consecutive slices of at most size elements.
func Chunk(records []model.TransferRecord, size int) [][]model.TransferRecord {
	if size <= 0 {
		size = 1
	}
	var chunks [][]model.TransferRecord
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		chunks = append(chunks, records[start:end])
	}
	return chunks
}
