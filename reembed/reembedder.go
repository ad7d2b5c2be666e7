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
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/digest/core"
	"github.com/poiesic/digest/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of records triggered before waiting for them.
	// Keep it at or below the pipeline's queue size.
	BatchSize int

	// ReportInterval is how often to report progress (number of records)
	ReportInterval int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: DefaultBatchSize,
	}
}

// Summary is the outcome of a Run.
type Summary struct {
	Total   int
	Elapsed time.Duration
	BatchResult
}

// Reembedder orchestrates the re-embedding of every analyzed record.
type Reembedder struct {
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *RecordIterator
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(repo storage.RecordRepository, scheduler Scheduler, config *Config, progress io.Writer, logger *slog.Logger) (*Reembedder, error) {
	if repo == nil {
		return nil, ErrRecordRepositoryRequired
	}
	if scheduler == nil {
		return nil, ErrSchedulerRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(repo, scheduler, logger),
		iterator:  NewRecordIterator(repo, config.BatchSize),
	}, nil
}

// Run forces a new embedding run for every analyzed record.
// Progress is reported to the configured writer. Individual failures are
// counted in the summary; only storage errors and cancellation abort the run.
func (r *Reembedder) Run(ctx context.Context) (*Summary, error) {
	eligible, err := r.iterator.Eligible(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}

	summary := &Summary{Total: len(eligible)}
	if summary.Total == 0 {
		fmt.Fprintf(r.progress, "No analyzed records found (0 records)\n")
		return summary, nil
	}

	fmt.Fprintf(r.progress, "Starting re-embedding of %d records (batch size: %d)\n",
		summary.Total, r.iterator.batchSize)

	// Initialize progress tracker
	tracker := NewProgressTracker(r.progress, summary.Total, r.config.ReportInterval)
	tracker.Start()

	err = r.iterator.ForEach(ctx, func(records []*core.Record) error {
		result, err := r.processor.Process(ctx, records)
		summary.Add(result)
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}

		tracker.Add(len(records), result)
		return nil
	})
	summary.Elapsed = tracker.Elapsed()
	if err != nil {
		return summary, err
	}

	tracker.Finish()

	fmt.Fprintf(r.progress, "Re-embedding complete. %d completed, %d failed, %d skipped in %v (%.1f records/sec)\n",
		summary.Completed, summary.Failed, summary.Skipped, summary.Elapsed.Round(time.Second),
		float64(summary.Total)/summary.Elapsed.Seconds())

	return summary, nil
}
