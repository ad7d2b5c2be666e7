package reembed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/digest/core"
	"github.com/poiesic/digest/storage"
)

// Scheduler starts embedding runs. *pipeline.Pipeline implements it.
type Scheduler interface {
	// ForceEmbedding restarts the embedding stage of a record, even if it completed.
	ForceEmbedding(ctx context.Context, id core.ID) (core.StatusSnapshot, error)

	// Wait blocks until every started run has finished.
	Wait()
}

// BatchResult counts the outcome of one batch.
type BatchResult struct {
	Completed int
	Failed    int
	Skipped   int
}

// Add accumulates other into r.
func (r *BatchResult) Add(other BatchResult) {
	r.Completed += other.Completed
	r.Failed += other.Failed
	r.Skipped += other.Skipped
}

// BatchProcessor re-embeds one batch of records at a time.
type BatchProcessor struct {
	repo      storage.RecordRepository
	scheduler Scheduler
	logger    *slog.Logger
}

// NewBatchProcessor creates a new batch processor.
func NewBatchProcessor(repo storage.RecordRepository, scheduler Scheduler, logger *slog.Logger) *BatchProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchProcessor{
		repo:      repo,
		scheduler: scheduler,
		logger:    logger.With("component", "reembed"),
	}
}

// Process forces the embedding stage of every record in the batch, waits for
// the runs to finish and reads back their outcome. Records whose embedding is
// already running are skipped.
func (bp *BatchProcessor) Process(ctx context.Context, records []*core.Record) (BatchResult, error) {
	var result BatchResult
	if len(records) == 0 {
		return result, nil
	}

	started := make([]core.ID, 0, len(records))
	for _, record := range records {
		_, err := bp.scheduler.ForceEmbedding(ctx, record.Id)
		switch {
		case err == nil:
			started = append(started, record.Id)
		case errors.Is(err, core.ErrConflict), errors.Is(err, core.ErrPrecondition), errors.Is(err, core.ErrNoContent):
			bp.logger.Debug("skipping record", "record", record.Id, "err", err)
			result.Skipped++
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			bp.scheduler.Wait()
			return result, err
		default:
			bp.logger.Warn("error triggering embedding", "record", record.Id, "err", err)
			result.Failed++
		}
	}

	bp.scheduler.Wait()

	updated, err := bp.repo.GetRecords(ctx, started...)
	if err != nil {
		return result, fmt.Errorf("failed to read back records: %w", err)
	}
	for _, record := range updated {
		if record.Embedding.Status == core.StatusCompleted {
			result.Completed++
			continue
		}
		bp.logger.Warn("re-embedding failed", "record", record.Id,
			"status", record.Embedding.Status.String(), "error", record.Embedding.Error)
		result.Failed++
	}
	return result, nil
}
