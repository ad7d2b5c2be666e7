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


package reembed

import (
	"context"

	"github.com/poiesic/digest/core"
	"github.com/poiesic/digest/storage"
)

const (
	// DefaultBatchSize is the default number of records triggered per batch
	DefaultBatchSize = 32
)

// RecordIterator iterates over the records eligible for re-embedding in batches.
// A record is eligible once its analysis completed.
type RecordIterator struct {
	repo      storage.RecordRepository
	batchSize int
}

// NewRecordIterator creates a new record iterator.
// batchSize: number of records per batch (defaults to DefaultBatchSize if <= 0)
func NewRecordIterator(repo storage.RecordRepository, batchSize int) *RecordIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &RecordIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// Eligible returns every record whose analysis completed, ordered by ID.
func (it *RecordIterator) Eligible(ctx context.Context) ([]*core.Record, error) {
	records, err := it.repo.ListRecords(ctx)
	if err != nil {
		return nil, err
	}

	eligible := records[:0]
	for _, record := range records {
		if record.Analysis.Status == core.StatusCompleted {
			eligible = append(eligible, record)
		}
	}
	return eligible, nil
}

// ForEach calls fn for each batch of eligible records.
// Iteration stops on first error from fn or when all records are processed.
// Context cancellation is checked between batches.
func (it *RecordIterator) ForEach(ctx context.Context, fn func([]*core.Record) error) error {
	// Check context before starting
	if err := ctx.Err(); err != nil {
		return err
	}

	records, err := it.Eligible(ctx)
	if err != nil {
		return err
	}

	for i := 0; i < len(records); i += it.batchSize {
		end := min(i+it.batchSize, len(records))
		if err := fn(records[i:end]); err != nil {
			return err
		}

		// Check context after each batch
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}
