package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/digest/core"
	"github.com/poiesic/digest/storage"
)

// RecordRepository implements storage.RecordRepository for BadgerDB.
type RecordRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.RecordRepository = (*RecordRepository)(nil)

// NewRecordRepository creates a new RecordRepository.
func NewRecordRepository(backend *Backend) (*RecordRepository, error) {
	idSeq, err := backend.GetSequence(recordIDSeq)
	if err != nil {
		return nil, err
	}

	return &RecordRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *RecordRepository) Close() error {
	return r.idSeq.Release()
}

// AddRecords adds one or more records to storage.
// Pipeline state is reset: analysis starts PENDING without a task and
// embedding starts NONE.
func (r *RecordRepository) AddRecords(ctx context.Context, records ...*core.Record) ([]*core.Record, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, record := range records {
			// Always generate new ID from sequence
			id, err := nextID(r.idSeq)
			if err != nil {
				return err
			}
			record.Id = core.ID(id)

			record.InsertedAt = time.Now().UTC()
			record.UpdatedAt = record.InsertedAt
			record.Analysis = core.StageState{Status: core.StatusPending, UpdatedAt: record.InsertedAt}
			record.Embedding = core.StageState{}
			record.Generation = 0
			record.ChunkCount = 0

			if err := tx.Set(makeRecordKey(record.Id), storage.MarshalRecord(record)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)

	return records, err
}

// GetRecord retrieves a single record by ID.
func (r *RecordRepository) GetRecord(ctx context.Context, id core.ID) (*core.Record, error) {
	var result *core.Record
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readRecord(tx, id)
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetRecords retrieves multiple records by their IDs.
func (r *RecordRepository) GetRecords(ctx context.Context, ids ...core.ID) ([]*core.Record, error) {
	var result []*core.Record
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			record, err := readRecord(tx, id)
			if err != nil {
				return err
			}
			if record != nil {
				result = append(result, record)
			}
		}
		return nil
	}, false)
	return result, err
}

// ListRecords returns every record ordered by ID.
func (r *RecordRepository) ListRecords(ctx context.Context) ([]*core.Record, error) {
	var results []*core.Record
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var record *core.Record
			err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			results = append(results, record)
		}
		return nil
	}, false)
	return results, err
}

// UpdateRecord applies fn to the stored record and writes the result in the same transaction.
func (r *RecordRepository) UpdateRecord(ctx context.Context, id core.ID, fn storage.RecordMutator) (*core.Record, error) {
	var result *core.Record
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		record, err := mutateRecord(tx, id, fn)
		if err != nil {
			return err
		}
		result = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteRecords removes records by their IDs together with their analysis and chunks.
func (r *RecordRepository) DeleteRecords(ctx context.Context, ids ...core.ID) error {
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		for _, id := range ids {
			record, err := readRecord(tx, id)
			if err != nil {
				return err
			}
			if record == nil {
				return storage.ErrNotFound
			}
			if err := tx.Delete(makeRecordKey(id)); err != nil {
				return err
			}
			if err := tx.Delete(makeAnalysisKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Chunks of a deleted record are unreachable, so they can go in batches.
	for _, id := range ids {
		if _, err := r.backend.DeleteKeys(ctx, makeRecordChunkPrefix(id), nil); err != nil {
			return err
		}
	}
	return nil
}

// Helper methods

// readRecord reads a record from the transaction.
// Returns nil, nil if the record doesn't exist.
func readRecord(tx *badger.Txn, id core.ID) (*core.Record, error) {
	item, err := tx.Get(makeRecordKey(id))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var record *core.Record
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		record, unmarshalErr = storage.UnmarshalRecord(val)
		return unmarshalErr
	})
	return record, err
}

// mutateRecord reads a record, applies fn and stores the result.
// The mutated record must still satisfy core.ValidateRecord.
func mutateRecord(tx *badger.Txn, id core.ID, fn storage.RecordMutator) (*core.Record, error) {
	record, err := readRecord(tx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, storage.ErrNotFound
	}
	if err := fn(record); err != nil {
		return nil, err
	}
	return record, writeRecord(tx, record)
}

func writeRecord(tx *badger.Txn, record *core.Record) error {
	record.UpdatedAt = time.Now().UTC()
	if err := core.ValidateRecord(record); err != nil {
		return err
	}
	return tx.Set(makeRecordKey(record.Id), storage.MarshalRecord(record))
}
