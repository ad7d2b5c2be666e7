package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/digest/ai"
	"github.com/poiesic/digest/core"
	"github.com/poiesic/digest/retry"
	"github.com/poiesic/digest/storage"
)

const (
	defaultTopK             = 5
	defaultMaxContextLength = 4000
	answerTemperature       = 0.1
)

// Citation identifies a chunk that was part of the answer's context.
type Citation struct {
	ChunkID  core.ID
	Sequence int
	Score    float32
}

// Answer is the result of Ask.
type Answer struct {
	RecordID  core.ID
	Question  string
	Text      string
	Citations []Citation
	// Stale is set when the answer came from chunks of a superseded embedding run.
	Stale    bool
	Attempts int
}

// CitedChunkIndices returns the sequence indices of the cited chunks in rank order.
func (a *Answer) CitedChunkIndices() []int {
	indices := make([]int, len(a.Citations))
	for i, c := range a.Citations {
		indices[i] = c.Sequence
	}
	return indices
}

// Engine answers questions from the chunks of one record.
type Engine struct {
	records          storage.RecordRepository
	chunks           storage.ChunkRepository
	embedder         ai.Embedder
	generator        ai.TextGenerator
	topK             int
	maxContextLength int
	retryPolicy      retry.Policy
	staleReads       bool
	logger           *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithTopK sets how many chunks are retrieved per question. Default is 5.
func WithTopK(k int) Option {
	return func(e *Engine) error {
		if k < 1 {
			return fmt.Errorf("top_k must be positive, got %d", k)
		}
		e.topK = k
		return nil
	}
}

// WithMaxContextLength bounds the assembled context in runes. Default is 4000.
func WithMaxContextLength(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			return fmt.Errorf("max_context_length must be positive, got %d", n)
		}
		e.maxContextLength = n
		return nil
	}
}

// WithRetryPolicy sets the retry envelope around a whole Ask.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(e *Engine) error {
		if err := policy.Validate(); err != nil {
			return err
		}
		e.retryPolicy = policy
		return nil
	}
}

// WithStaleReads controls answering from the last promoted chunk set while a
// re-embedding is pending, processing or failed. Default is true; such answers
// carry Answer.Stale. With false, Ask waits for the embedding to complete.
func WithStaleReads(enabled bool) Option {
	return func(e *Engine) error {
		e.staleReads = enabled
		return nil
	}
}

// NewEngine creates a new question answering engine.
func NewEngine(
	records storage.RecordRepository,
	chunks storage.ChunkRepository,
	provider ai.AIProvider,
	opts ...Option,
) (*Engine, error) {
	if records == nil {
		return nil, ErrRecordRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	e := &Engine{
		records:          records,
		chunks:           chunks,
		embedder:         provider.Embedder(),
		generator:        provider.TextGenerator(),
		topK:             defaultTopK,
		maxContextLength: defaultMaxContextLength,
		retryPolicy:      retry.DefaultPolicy(),
		staleReads:       true,
		logger:           slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "rag")

	return e, nil
}

// Ask answers question from the record's chunks.
func (e *Engine) Ask(ctx context.Context, recordID core.ID, question string) (*Answer, error) {
	return e.AskWithMonitor(ctx, recordID, question, nil)
}

// AskWithMonitor answers question from the record's chunks with monitoring.
//
// Fails with ErrNotFound for an unknown record and ErrPrecondition/ErrNotReady
// if the record has no usable chunks; no provider is called in either case.
// Embedding, retrieval and generation run inside one retry envelope. When it
// is exhausted, or a permanent error occurs, ErrGenerationFailed is returned.
func (e *Engine) AskWithMonitor(ctx context.Context, recordID core.ID, question string, monitor AskMonitor) (*Answer, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	monitor.Start(recordID, question)

	record, err := e.records.GetRecord(ctx, recordID)
	if err != nil {
		monitor.Finish(nil, err)
		return nil, err
	}

	stale, err := e.checkReady(record)
	if err != nil {
		monitor.Finish(nil, err)
		return nil, err
	}

	answer := &Answer{RecordID: recordID, Question: question, Stale: stale}
	attempts, err := retry.Do(ctx, e.retryPolicy, func(ctx context.Context) error {
		return e.answer(ctx, answer, monitor)
	})
	answer.Attempts = attempts
	if err != nil {
		e.logger.Error("error answering question", "record", recordID, "attempts", attempts, "err", err)
		err = fmt.Errorf("%w: %w", core.ErrGenerationFailed, err)
		monitor.Finish(nil, err)
		return nil, err
	}

	e.logger.Debug("answered question", "record", recordID, "citations", len(answer.Citations), "attempts", attempts)
	monitor.Finish(answer, nil)
	return answer, nil
}

// checkReady reports whether the record can be queried and whether its chunks are stale.
func (e *Engine) checkReady(record *core.Record) (bool, error) {
	status := record.Embedding.Status
	if status == core.StatusCompleted {
		return false, nil
	}
	if e.staleReads && record.Generation != 0 && record.ChunkCount > 0 {
		return true, nil
	}
	return false, fmt.Errorf("%w: %w: embedding is %s", core.ErrPrecondition, core.ErrNotReady, status)
}

// answer runs one attempt: embed, retrieve, assemble and generate.
func (e *Engine) answer(ctx context.Context, answer *Answer, monitor AskMonitor) error {
	vector, err := e.embedder.EmbedText(ctx, answer.Question)
	if err != nil {
		return err
	}
	monitor.AfterQueryEmbedding(vector)

	matches, err := e.chunks.FindSimilar(ctx, answer.RecordID, vector, e.topK)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidQuery) {
			// The stored chunks came from a different embedding model.
			return fmt.Errorf("%w: %w", core.ErrPermanentProvider, err)
		}
		return err
	}
	monitor.AfterRetrieval(matches)

	assembled, used := AssembleContext(matches, e.maxContextLength)
	monitor.AfterContextAssembly(assembled, used)

	text, err := e.generator.Generate(ctx, ai.GenerationRequest{
		System:      answerSystemPrompt,
		Prompt:      answerPrompt(assembled, answer.Question),
		Temperature: answerTemperature,
	})
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: empty answer", core.ErrMalformedResponse)
	}

	answer.Text = text
	answer.Citations = make([]Citation, len(used))
	for i, match := range used {
		answer.Citations[i] = Citation{
			ChunkID:  match.Chunk.Id,
			Sequence: match.Chunk.Sequence,
			Score:    match.Score,
		}
	}
	return nil
}
