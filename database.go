// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package digest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/digest/ai"
	"github.com/poiesic/digest/ai/ollama"
	"github.com/poiesic/digest/ai/openai"
	"github.com/poiesic/digest/config"
	"github.com/poiesic/digest/core"
	"github.com/poiesic/digest/pipeline"
	"github.com/poiesic/digest/rag"
	"github.com/poiesic/digest/reembed"
	"github.com/poiesic/digest/storage"
	"github.com/poiesic/digest/storage/badger"
)

// Database bundles the storage backend, the repositories and the model
// provider of one digest data directory.
type Database struct {
	backend  *badger.Backend
	repos    *badger.Repositories
	provider ai.AIProvider
	logger   *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig *ai.Config
	provider ai.AIProvider
	logger   *slog.Logger
	inMemory bool
}

// WithAIConfig sets the provider configuration.
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = cfg
	}
}

// WithProvider uses an existing provider instead of building one from the AI config.
// The database takes ownership and closes it.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithDatabaseLogger sets the logger of the database and its backend.
func WithDatabaseLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// WithInMemory keeps all data in memory. The file path is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// NewProvider creates the provider selected by cfg.Provider.
func NewProvider(cfg *ai.Config) (ai.AIProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ai.ProviderOllama:
		return ollama.NewProvider(cfg)
	default:
		return openai.NewProvider(cfg)
	}
}

// NewDatabase opens the database at filePath.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	// Apply options
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(), // Default if not provided
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory, badger.WithBackendLogger(options.logger))
	if err != nil {
		return nil, err
	}

	repos, err := badger.NewRepositories(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = NewProvider(options.aiConfig)
		if err != nil {
			repos.Close()
			backend.Close()
			return nil, err
		}
	}

	return &Database{
		backend:  backend,
		repos:    repos,
		provider: provider,
		logger:   options.logger,
	}, nil
}

// Open opens the database described by cfg.
func Open(cfg *config.Config, opts ...DatabaseOption) (*Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts = append([]DatabaseOption{WithAIConfig(cfg.AIConfig())}, opts...)
	return NewDatabase(cfg.DataDir, opts...)
}

func (db *Database) Close() error {
	var errs []error

	// Close AI provider first
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}

	if err := db.repos.Close(); err != nil {
		db.logger.Error("error closing repositories", "err", err)
		errs = append(errs, err)
	}

	// Close backend
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (db *Database) RecordRepository() storage.RecordRepository {
	return db.repos.Records
}

func (db *Database) AnalysisRepository() storage.AnalysisRepository {
	return db.repos.Analyses
}

func (db *Database) ChunkRepository() storage.ChunkRepository {
	return db.repos.Chunks
}

// AddRecords stores new transcripts. Their analysis starts PENDING and is not
// triggered automatically.
func (db *Database) AddRecords(ctx context.Context, records ...*core.Record) ([]*core.Record, error) {
	for i, record := range records {
		if record == nil {
			return nil, fmt.Errorf("%w: record %d is nil", core.ErrInvalidRecord, i)
		}
	}
	return db.repos.Records.AddRecords(ctx, records...)
}

func (db *Database) NewPipeline(opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	opts = append([]pipeline.Option{pipeline.WithLogger(db.logger)}, opts...)
	return pipeline.NewPipeline(db.repos.Records, db.repos.Analyses, db.repos.Chunks, db.provider, opts...)
}

func (db *Database) NewEngine(opts ...rag.Option) (*rag.Engine, error) {
	opts = append([]rag.Option{rag.WithLogger(db.logger)}, opts...)
	return rag.NewEngine(db.repos.Records, db.repos.Chunks, db.provider, opts...)
}

// NewReembedder creates a reembedder that schedules runs through scheduler.
func (db *Database) NewReembedder(scheduler reembed.Scheduler, cfg *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	return reembed.NewReembedder(db.repos.Records, scheduler, cfg, progress, db.logger)
}

// PipelineOptions maps cfg onto pipeline options.
func PipelineOptions(cfg *config.Config) []pipeline.Option {
	opts := []pipeline.Option{
		pipeline.WithChunkConfig(cfg.ChunkConfig()),
		pipeline.WithRetryPolicy(cfg.RetryPolicy()),
		pipeline.WithQueueSize(cfg.QueueSize),
		pipeline.WithEmbeddingBatchSize(cfg.EmbedBatchSize),
	}
	if cfg.PoolSize > 0 {
		opts = append(opts, pipeline.WithPoolSize(cfg.PoolSize))
	}
	return opts
}

// EngineOptions maps cfg onto question answering options.
func EngineOptions(cfg *config.Config) []rag.Option {
	return []rag.Option{
		rag.WithTopK(cfg.TopK),
		rag.WithMaxContextLength(cfg.MaxContextLength),
		rag.WithRetryPolicy(cfg.RetryPolicy()),
		rag.WithStaleReads(cfg.StaleReads),
	}
}
