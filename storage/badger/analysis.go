package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/digest/core"
	"github.com/poiesic/digest/storage"
)

// AnalysisRepository implements storage.AnalysisRepository for BadgerDB.
type AnalysisRepository struct {
	backend *Backend
}

var _ storage.AnalysisRepository = (*AnalysisRepository)(nil)

// NewAnalysisRepository creates a new AnalysisRepository.
func NewAnalysisRepository(backend *Backend) *AnalysisRepository {
	return &AnalysisRepository{
		backend: backend,
	}
}

// GetAnalysis retrieves the analysis result of a record.
func (r *AnalysisRepository) GetAnalysis(ctx context.Context, recordID core.ID) (*core.AnalysisResult, error) {
	var result *core.AnalysisResult
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeAnalysisKey(recordID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}

		return item.Value(func(val []byte) error {
			var unmarshalErr error
			result, unmarshalErr = storage.UnmarshalAnalysis(val)
			return unmarshalErr
		})
	}, false)
	return result, err
}

// CommitAnalysis overwrites the record's analysis result and applies fn to the
// record in one transaction.
func (r *AnalysisRepository) CommitAnalysis(ctx context.Context, result *core.AnalysisResult, fn storage.RecordMutator) (*core.Record, error) {
	if err := core.ValidateAnalysis(result); err != nil {
		return nil, err
	}

	var updated *core.Record
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		record, err := mutateRecord(tx, result.RecordId, fn)
		if err != nil {
			return err
		}
		result.InsertedAt = time.Now().UTC()
		if err := tx.Set(makeAnalysisKey(record.Id), storage.MarshalAnalysis(result)); err != nil {
			return err
		}
		updated = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
