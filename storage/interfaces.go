package storage

import (
	"context"

	"github.com/poiesic/digest/core"
)

// RecordMutator inspects and modifies a record inside a single transaction.
// Returning an error aborts the transaction and nothing is written.
type RecordMutator func(record *core.Record) error

// RecordRepository provides operations for managing transcript records.
// Implementations must be thread-safe and support concurrent access.
type RecordRepository interface {
	// AddRecords adds one or more records to storage.
	// Generates new IDs from a sequence and sets InsertedAt/UpdatedAt.
	// Returns the records with generated IDs and timestamps populated.
	AddRecords(ctx context.Context, records ...*core.Record) ([]*core.Record, error)

	// GetRecord retrieves a single record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	GetRecord(ctx context.Context, id core.ID) (*core.Record, error)

	// GetRecords retrieves multiple records by their IDs.
	// Returns only the records that exist (no error for missing records).
	GetRecords(ctx context.Context, ids ...core.ID) ([]*core.Record, error)

	// ListRecords returns every record ordered by ID.
	ListRecords(ctx context.Context) ([]*core.Record, error)

	// UpdateRecord applies fn to the current stored record and persists the result
	// as one atomic read-modify-write. Concurrent writers never interleave: a losing
	// writer re-reads and re-applies fn. Returns ErrNotFound if the record doesn't exist
	// and fn's error unchanged if fn rejects the record.
	UpdateRecord(ctx context.Context, id core.ID, fn RecordMutator) (*core.Record, error)

	// DeleteRecords removes records together with their analysis and chunks.
	// Returns ErrNotFound if any record doesn't exist.
	DeleteRecords(ctx context.Context, ids ...core.ID) error

	// Close releases resources held by the repository.
	Close() error
}

// AnalysisRepository stores the analysis result owned by each record.
type AnalysisRepository interface {
	// GetAnalysis retrieves the analysis result of a record.
	// Returns ErrNotFound if none was ever stored.
	GetAnalysis(ctx context.Context, recordID core.ID) (*core.AnalysisResult, error)

	// CommitAnalysis replaces the record's analysis result and applies fn to the
	// owning record in the same transaction. If fn fails, neither is written.
	CommitAnalysis(ctx context.Context, result *core.AnalysisResult, fn RecordMutator) (*core.Record, error)
}

// ChunkRepository stores chunk generations and answers similarity queries.
// Only the generation referenced by Record.Generation is ever visible to readers.
type ChunkRepository interface {
	// NextGeneration allocates a fresh, never reused generation number.
	NextGeneration(ctx context.Context) (uint64, error)

	// StageChunks writes chunks under their generation without making them visible.
	StageChunks(ctx context.Context, chunks []*core.Chunk) error

	// PromoteGeneration makes a staged generation current for the record and applies
	// fn to the record, atomically. On success the previous generation number is
	// returned so the caller can discard it.
	PromoteGeneration(ctx context.Context, recordID core.ID, generation uint64, chunkCount int, fn RecordMutator) (record *core.Record, previous uint64, err error)

	// DiscardGeneration deletes every chunk of one generation of a record.
	DiscardGeneration(ctx context.Context, recordID core.ID, generation uint64) error

	// PruneGenerations deletes every generation of a record except the current one.
	// Returns the number of chunks deleted.
	PruneGenerations(ctx context.Context, recordID core.ID) (int, error)

	// GetChunks returns the current generation of a record ordered by sequence.
	GetChunks(ctx context.Context, recordID core.ID) ([]*core.Chunk, error)

	// FindSimilar returns up to limit chunks of the record's current generation,
	// ordered by cosine similarity descending and sequence ascending on ties.
	// Chunks of other records are never returned.
	FindSimilar(ctx context.Context, recordID core.ID, vector []float32, limit int) ([]*core.ChunkMatch, error)

	// Close releases resources held by the repository.
	Close() error
}
