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


// Package storage provides the storage abstraction layer for digest.
//
// This package defines repository interfaces that decouple the enrichment
// pipeline from the storage implementation, plus the MUS wire format used to
// persist records, analysis results and chunks.
//
// # Architecture
//
//   - RecordRepository: transcript records and their per-stage state
//   - AnalysisRepository: the single analysis result owned by a record
//   - ChunkRepository: generational chunk storage and similarity search
//
// # Atomicity
//
// Every state transition goes through a RecordMutator. The repository applies
// the mutator to the current stored record inside one transaction, so a
// check-and-set such as "only start analysis if nothing is running" cannot
// interleave with another writer. A mutator that returns an error aborts the
// transaction and the stored record is left untouched.
//
// Chunks are written in generations. A new generation is staged invisibly and
// then promoted by switching Record.Generation in one transaction. Readers only
// ever see the promoted generation, so a half-written set of chunks is never
// observable.
//
// # Usage
//
//	repos, backend, err := badger.NewMemoryRepositories()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
