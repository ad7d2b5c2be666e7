package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/digest/ai"
	"github.com/poiesic/digest/chunker"
	"github.com/poiesic/digest/core"
	"github.com/poiesic/digest/retry"
)

// embeddingProcessor runs the embedding stage of one task.
type embeddingProcessor struct {
	p        *Pipeline
	embedder ai.Embedder
	logger   *slog.Logger
}

func newEmbeddingProcessor(p *Pipeline, embedder ai.Embedder) (*embeddingProcessor, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	return &embeddingProcessor{
		p:        p,
		embedder: embedder,
		logger:   p.logger.With("processor", "embeddings"),
	}, nil
}

// process claims the task, embeds every chunk of the record and swaps the new
// generation in. A failure leaves the current generation untouched.
func (ep *embeddingProcessor) process(ctx context.Context, task core.Task) {
	record, err := ep.p.claim(ctx, task)
	if err != nil {
		if errors.Is(err, errStaleTask) {
			ep.logger.Debug("skipping stale task", "record", task.RecordID, "task", task.ID)
			return
		}
		ep.logger.Error("error claiming task", "record", task.RecordID, "task", task.ID, "err", err)
		return
	}

	spans, err := chunker.Split(record.Text, ep.p.chunkConfig)
	if err != nil {
		ep.p.fail(ctx, task, 0, err)
		return
	}
	if len(spans) == 0 {
		ep.p.fail(ctx, task, 0, core.ErrNoContent)
		return
	}
	ep.logger.Info("embedding record", "record", record.Id, "task", task.ID, "chunks", len(spans))

	vectors, attempts, err := ep.embed(ctx, spans)
	if err != nil {
		ep.p.fail(ctx, task, attempts, err)
		return
	}

	if err := ep.commit(ctx, task, record, spans, vectors, attempts); err != nil {
		if errors.Is(err, errStaleTask) {
			ep.logger.Warn("discarding chunks of a task that lost ownership", "record", record.Id, "task", task.ID)
			return
		}
		ep.p.fail(ctx, task, attempts, err)
		return
	}
	ep.logger.Info("embedding completed", "record", record.Id, "task", task.ID,
		"chunks", len(spans), "attempts", attempts)
}

// embed embeds the spans batch by batch. Each batch gets its own retry budget;
// the returned attempt count is the total over all batches.
func (ep *embeddingProcessor) embed(ctx context.Context, spans []chunker.Span) ([][]float32, int, error) {
	vectors := make([][]float32, 0, len(spans))
	total := 0
	for start := 0; start < len(spans); start += ep.p.batchSize {
		end := min(start+ep.p.batchSize, len(spans))
		texts := make([]string, end-start)
		for i, span := range spans[start:end] {
			texts[i] = span.Text
		}

		var batch [][]float32
		attempts, err := retry.Do(ctx, ep.p.retryPolicy, func(ctx context.Context) error {
			var err error
			batch, err = ep.embedder.EmbedTexts(ctx, texts)
			if err != nil {
				return err
			}
			if len(batch) != len(texts) {
				return fmt.Errorf("%w: embedding result mismatch. expected %d, received %d",
					core.ErrMalformedResponse, len(texts), len(batch))
			}
			return nil
		})
		total += attempts
		if err != nil {
			return nil, total, fmt.Errorf("chunks %d-%d: %w", start, end-1, err)
		}
		vectors = append(vectors, batch...)
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return nil, total, fmt.Errorf("%w: chunk %d has dimension %d, want %d",
				core.ErrMalformedResponse, i, len(v), dim)
		}
		vectors[i] = core.NormalizeVector(v)
	}
	return vectors, total, nil
}

// commit stages the chunks under a fresh generation and promotes it together
// with the COMPLETED status. The superseded generation is deleted afterwards.
func (ep *embeddingProcessor) commit(ctx context.Context, task core.Task, record *core.Record,
	spans []chunker.Span, vectors [][]float32, attempts int) error {
	generation, err := ep.p.chunks.NextGeneration(ctx)
	if err != nil {
		return err
	}

	chunks := make([]*core.Chunk, len(spans))
	for i, span := range spans {
		chunks[i] = &core.Chunk{
			Id:         core.ChunkID(record.Id, generation, span.Sequence),
			RecordId:   record.Id,
			Generation: generation,
			Sequence:   span.Sequence,
			Start:      span.Start,
			End:        span.End,
			Text:       span.Text,
			Vector:     vectors[i],
		}
	}

	if err := ep.p.chunks.StageChunks(ctx, chunks); err != nil {
		ep.discard(ctx, record.Id, generation)
		return err
	}

	_, previous, err := ep.p.chunks.PromoteGeneration(ctx, record.Id, generation, len(chunks),
		finish(task, core.StatusCompleted, attempts, nil))
	if err != nil {
		ep.discard(ctx, record.Id, generation)
		return err
	}

	if previous != 0 && previous != generation {
		ep.discard(ctx, record.Id, previous)
	}
	return nil
}

// discard deletes a generation nobody points at. Failures only leave garbage
// behind, which Recover prunes.
func (ep *embeddingProcessor) discard(ctx context.Context, recordID core.ID, generation uint64) {
	if err := ep.p.chunks.DiscardGeneration(ctx, recordID, generation); err != nil {
		ep.logger.Warn("error discarding chunk generation", "record", recordID,
			"generation", generation, "err", err)
	}
}
