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


package core

import (
	"fmt"
)

// ValidateRecord validates a Record according to domain rules.
//
// Validation rules:
//   - Both stages satisfy ValidateStageState
//   - The analysis stage never reports StatusNone
//   - The embedding stage is only entered after analysis completed
//   - A completed embedding stage has a promoted, non-empty chunk generation
//
// NOT validated:
//   - Text (empty text is rejected when a stage is triggered)
//   - ID (0 is valid from database sequences)
func ValidateRecord(record *Record) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}

	if err := ValidateStageState(StageAnalysis, record.Analysis); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if err := ValidateStageState(StageEmbedding, record.Embedding); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	if record.Analysis.Status == StatusNone {
		return fmt.Errorf("%w: analysis status cannot be %s", ErrInvalidRecord, StatusNone)
	}

	if record.Embedding.Status != StatusNone && record.Analysis.Status != StatusCompleted {
		return fmt.Errorf("%w: embedding is %s while analysis is %s",
			ErrInvalidRecord, record.Embedding.Status, record.Analysis.Status)
	}

	if record.Embedding.Status == StatusCompleted && (record.Generation == 0 || record.ChunkCount == 0) {
		return fmt.Errorf("%w: completed embedding without chunks", ErrInvalidRecord)
	}

	return nil
}

// ValidateStageState checks the task ownership rules of a single stage:
// processing always has a task, terminal and idle states never do.
// Pending without a task is a record that has not been triggered yet.
func ValidateStageState(stage Stage, state StageState) error {
	switch state.Status {
	case StatusProcessing:
		if state.TaskID == "" {
			return fmt.Errorf("%w: %s is %s without a task", ErrInvalidStageState, stage, state.Status)
		}
	case StatusNone, StatusCompleted, StatusFailed:
		if state.TaskID != "" {
			return fmt.Errorf("%w: %s is %s with task %s", ErrInvalidStageState, stage, state.Status, state.TaskID)
		}
	case StatusPending:
	default:
		return fmt.Errorf("%w: %s has unknown status %d", ErrInvalidStageState, stage, state.Status)
	}
	return nil
}

// ValidateAnalysis validates an AnalysisResult before it is stored.
//
// Validation rules:
//   - Summary must not be blank
//   - Every key point has text and a known kind
func ValidateAnalysis(result *AnalysisResult) error {
	if result == nil {
		return fmt.Errorf("%w: result is nil", ErrInvalidAnalysis)
	}
	if isBlank(result.Summary) {
		return fmt.Errorf("%w: summary cannot be empty", ErrInvalidAnalysis)
	}
	for i, kp := range result.KeyPoints {
		if isBlank(kp.Text) {
			return fmt.Errorf("%w: key point %d has no text", ErrInvalidAnalysis, i)
		}
		if kp.Kind != KeyPointInsight && kp.Kind != KeyPointActionItem {
			return fmt.Errorf("%w: key point %d has unknown kind %d", ErrInvalidAnalysis, i, kp.Kind)
		}
	}
	return nil
}

// ValidateChunks checks that a chunk set is non-empty, ordered, and from one generation.
// All vectors must be present and share a dimension.
func ValidateChunks(chunks []*Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("%w: chunk set is empty", ErrInvalidChunk)
	}
	first := chunks[0]
	dim := len(first.Vector)
	for i, c := range chunks {
		if c.Generation != first.Generation || c.RecordId != first.RecordId {
			return fmt.Errorf("%w: chunk %d belongs to a different generation", ErrInvalidChunk, i)
		}
		if c.Sequence != i {
			return fmt.Errorf("%w: chunk %d has sequence %d", ErrInvalidChunk, i, c.Sequence)
		}
		if len(c.Vector) == 0 || len(c.Vector) != dim {
			return fmt.Errorf("%w: chunk %d has vector dimension %d, want %d", ErrInvalidChunk, i, len(c.Vector), dim)
		}
	}
	return nil
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
