package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/poiesic/digest/ai"
	"github.com/poiesic/digest/chunker"
	"github.com/poiesic/digest/core"
	"github.com/poiesic/digest/retry"
	"github.com/poiesic/digest/storage"
)

const (
	defaultQueueSize      = 256
	defaultEmbedBatchSize = 32
)

// Pipeline orchestrates the analysis and embedding of transcript records.
// It owns one worker pool per stage.
type Pipeline struct {
	records        storage.RecordRepository
	analyses       storage.AnalysisRepository
	chunks         storage.ChunkRepository
	analysisQueue  *taskQueue
	embeddingQueue *taskQueue
	analysisProc   *analysisProcessor
	embeddingProc  *embeddingProcessor

	poolSize    int
	queueSize   int
	batchSize   int
	chunkConfig chunker.Config
	retryPolicy retry.Policy

	inflight *inflightCounter
	release  sync.Once
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the number of workers per stage.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		p.poolSize = size
		return nil
	}
}

// WithQueueSize sets how many triggered tasks each stage buffers.
// Default is 256.
func WithQueueSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return fmt.Errorf("queue size must be positive, got %d", size)
		}
		p.queueSize = size
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithChunkConfig sets the chunk size and overlap used by the embedding stage.
func WithChunkConfig(cfg chunker.Config) Option {
	return func(p *Pipeline) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		p.chunkConfig = cfg
		return nil
	}
}

// WithRetryPolicy sets the retry budget of every provider call.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(p *Pipeline) error {
		if err := policy.Validate(); err != nil {
			return err
		}
		p.retryPolicy = policy
		return nil
	}
}

// WithEmbeddingBatchSize sets how many chunks go into one embedding call.
// Default is 32.
func WithEmbeddingBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return fmt.Errorf("embedding batch size must be positive, got %d", size)
		}
		p.batchSize = size
		return nil
	}
}

// NewPipeline creates a pipeline and starts its worker pools.
// Call Recover afterwards to resume tasks left over by a previous process.
func NewPipeline(
	records storage.RecordRepository,
	analyses storage.AnalysisRepository,
	chunks storage.ChunkRepository,
	provider ai.AIProvider,
	opts ...Option,
) (*Pipeline, error) {
	if records == nil {
		return nil, ErrRecordRepositoryRequired
	}
	if analyses == nil {
		return nil, ErrAnalysisRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	p := &Pipeline{
		records:     records,
		analyses:    analyses,
		chunks:      chunks,
		poolSize:    poolSize,
		queueSize:   defaultQueueSize,
		batchSize:   defaultEmbedBatchSize,
		chunkConfig: chunker.DefaultConfig(),
		retryPolicy: retry.DefaultPolicy(),
		inflight:    newInflightCounter(),
		logger:      slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "pipeline")

	// Create processors after options are applied (so they get final config)
	analysisProc, err := newAnalysisProcessor(p, provider.TextGenerator())
	if err != nil {
		return nil, err
	}
	embeddingProc, err := newEmbeddingProcessor(p, provider.Embedder())
	if err != nil {
		return nil, err
	}
	p.analysisProc = analysisProc
	p.embeddingProc = embeddingProc

	p.analysisQueue, err = newTaskQueue(core.StageAnalysis, p.poolSize, p.queueSize,
		p.inflight, analysisProc.process, p.rejectTask, p.logger)
	if err != nil {
		return nil, err
	}
	p.embeddingQueue, err = newTaskQueue(core.StageEmbedding, p.poolSize, p.queueSize,
		p.inflight, embeddingProc.process, p.rejectTask, p.logger)
	if err != nil {
		p.analysisQueue.close()
		return nil, err
	}

	return p, nil
}

// Status returns the status snapshot of a record.
func (p *Pipeline) Status(ctx context.Context, id core.ID) (core.StatusSnapshot, error) {
	record, err := p.records.GetRecord(ctx, id)
	if err != nil {
		return core.StatusSnapshot{}, err
	}
	return record.Snapshot(), nil
}

// Analysis returns the stored analysis of a record.
//
// Returns ErrNotReady while the analysis stage is pending or processing, and
// ErrNotFound if the last run failed or none was stored.
func (p *Pipeline) Analysis(ctx context.Context, id core.ID) (*core.AnalysisResult, error) {
	record, err := p.records.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	switch record.Analysis.Status {
	case core.StatusPending, core.StatusProcessing:
		return nil, fmt.Errorf("%w: %w: analysis is %s", core.ErrPrecondition, core.ErrNotReady, record.Analysis.Status)
	case core.StatusFailed:
		return nil, fmt.Errorf("%w: analysis failed: %s", storage.ErrNotFound, record.Analysis.Error)
	}
	return p.analyses.GetAnalysis(ctx, id)
}

// Chunks returns the record's current chunk set in sequence order.
func (p *Pipeline) Chunks(ctx context.Context, id core.ID) ([]*core.Chunk, error) {
	return p.chunks.GetChunks(ctx, id)
}

// Wait blocks until every dispatched task, including chained embedding
// tasks, has finished. It is safe to trigger new runs while Wait blocks;
// those are waited for as well.
func (p *Pipeline) Wait() {
	p.inflight.wait()
}

// Release stops both stages. Queued tasks that have not started stay PENDING
// and are resumed by Recover. The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	p.release.Do(func() {
		if p.analysisQueue != nil {
			p.analysisQueue.close()
		}
		if p.embeddingQueue != nil {
			p.embeddingQueue.close()
		}
	})
}

func (p *Pipeline) queue(stage core.Stage) *taskQueue {
	if stage == core.StageEmbedding {
		return p.embeddingQueue
	}
	return p.analysisQueue
}
