package badger

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/digest/core"
	"github.com/poiesic/digest/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
//
// Chunks are keyed by record, generation and sequence. A generation is staged
// with a WriteBatch, which is invisible to readers because no record points at
// it yet, and becomes visible when PromoteGeneration switches Record.Generation.
type ChunkRepository struct {
	backend *Backend
	genSeq  *badger.Sequence
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) (*ChunkRepository, error) {
	genSeq, err := backend.GetSequence(generationSeq)
	if err != nil {
		return nil, err
	}

	return &ChunkRepository{
		backend: backend,
		genSeq:  genSeq,
	}, nil
}

// Close releases the generation sequence.
func (r *ChunkRepository) Close() error {
	return r.genSeq.Release()
}

// NextGeneration allocates a fresh generation number.
func (r *ChunkRepository) NextGeneration(ctx context.Context) (uint64, error) {
	return nextID(r.genSeq)
}

// StageChunks writes a complete chunk set without making it visible.
func (r *ChunkRepository) StageChunks(ctx context.Context, chunks []*core.Chunk) error {
	if err := core.ValidateChunks(chunks); err != nil {
		return err
	}
	now := time.Now().UTC()
	return r.backend.WriteBatch(ctx, func(wb *badger.WriteBatch) error {
		for _, chunk := range chunks {
			chunk.InsertedAt = now
			key := makeChunkKey(chunk.RecordId, chunk.Generation, chunk.Sequence)
			if err := wb.Set(key, storage.MarshalChunk(chunk)); err != nil {
				return err
			}
		}
		return nil
	})
}

// PromoteGeneration points the record at a staged generation and applies fn in one transaction.
func (r *ChunkRepository) PromoteGeneration(ctx context.Context, recordID core.ID, generation uint64, chunkCount int, fn storage.RecordMutator) (*core.Record, uint64, error) {
	if chunkCount <= 0 {
		return nil, 0, fmt.Errorf("%w: chunk count must be positive", storage.ErrInvalidQuery)
	}

	var (
		updated  *core.Record
		previous uint64
	)
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		// The last chunk must exist, otherwise staging never finished.
		if _, err := tx.Get(makeChunkKey(recordID, generation, chunkCount-1)); err != nil {
			if err == badger.ErrKeyNotFound {
				return fmt.Errorf("%w: %d", storage.ErrUnknownGeneration, generation)
			}
			return err
		}

		record, err := mutateRecord(tx, recordID, func(record *core.Record) error {
			previous = record.Generation
			record.Generation = generation
			record.ChunkCount = chunkCount
			return fn(record)
		})
		if err != nil {
			return err
		}
		updated = record
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return updated, previous, nil
}

// DiscardGeneration deletes every chunk of one generation of a record.
// The current generation of a record can't be discarded.
func (r *ChunkRepository) DiscardGeneration(ctx context.Context, recordID core.ID, generation uint64) error {
	record, err := r.getRecord(recordID)
	if err != nil && err != storage.ErrNotFound {
		return err
	}
	if record != nil && record.Generation == generation {
		return fmt.Errorf("%w: generation %d is current", storage.ErrInvalidQuery, generation)
	}
	_, err = r.backend.DeleteKeys(ctx, makeGenerationPrefix(recordID, generation), nil)
	return err
}

// PruneGenerations deletes all but the current generation of a record.
func (r *ChunkRepository) PruneGenerations(ctx context.Context, recordID core.ID) (int, error) {
	record, err := r.getRecord(recordID)
	if err != nil {
		return 0, err
	}
	return r.backend.DeleteKeys(ctx, makeRecordChunkPrefix(recordID), func(key []byte) bool {
		return chunkKeyGeneration(key) == record.Generation
	})
}

// GetChunks returns the record's current generation ordered by sequence.
func (r *ChunkRepository) GetChunks(ctx context.Context, recordID core.ID) ([]*core.Chunk, error) {
	var chunks []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		chunks, err = readCurrentChunks(tx, recordID)
		return err
	}, false)
	return chunks, err
}

// FindSimilar ranks the record's current chunks against vector.
// The record and its chunks are read from the same snapshot. A chunk whose
// vector length differs from the query fails with storage.ErrDimensionMismatch.
func (r *ChunkRepository) FindSimilar(ctx context.Context, recordID core.ID, vector []float32, limit int) ([]*core.ChunkMatch, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", storage.ErrInvalidQuery)
	}

	var results []*core.ChunkMatch
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		chunks, err := readCurrentChunks(tx, recordID)
		if err != nil {
			return err
		}
		for _, chunk := range chunks {
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(chunk.Vector) != len(vector) {
				return fmt.Errorf("%w: query has %d, chunk %d has %d",
					storage.ErrDimensionMismatch, len(vector), chunk.Sequence, len(chunk.Vector))
			}
			results = append(results, &core.ChunkMatch{
				Chunk: chunk,
				Score: core.CosineSimilarity(vector, chunk.Vector),
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending, earlier chunks first on ties
	slices.SortStableFunc(results, func(a, b *core.ChunkMatch) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Chunk.Sequence, b.Chunk.Sequence)
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Helper methods

func (r *ChunkRepository) getRecord(recordID core.ID) (*core.Record, error) {
	var record *core.Record
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		record, err = readRecord(tx, recordID)
		if err != nil {
			return err
		}
		if record == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return record, err
}

// readCurrentChunks reads the generation the record currently points at.
func readCurrentChunks(tx *badger.Txn, recordID core.ID) ([]*core.Chunk, error) {
	record, err := readRecord(tx, recordID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, storage.ErrNotFound
	}
	if record.Generation == 0 {
		return nil, nil
	}

	opts := badger.DefaultIteratorOptions
	opts.Prefix = makeGenerationPrefix(recordID, record.Generation)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	chunks := make([]*core.Chunk, 0, record.ChunkCount)
	for iter.Rewind(); iter.Valid(); iter.Next() {
		var chunk *core.Chunk
		err := iter.Item().Value(func(val []byte) error {
			var err error
			chunk, err = storage.UnmarshalChunk(val)
			return err
		})
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}
