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
	"context"
	"errors"
)

// Pipeline error taxonomy. Categories are combined with a reason using
// fmt.Errorf("%w: %w", category, reason) so both match with errors.Is.
var (
	// ErrNotFound indicates an unknown record.
	ErrNotFound = errors.New("record not found")

	// ErrNoContent indicates a record without text to process.
	ErrNoContent = errors.New("record has no content")

	// ErrConflict indicates a duplicate or overlapping trigger.
	ErrConflict = errors.New("conflict")

	// ErrAlreadyDone is the Conflict reason for a stage that already completed.
	ErrAlreadyDone = errors.New("already done")

	// ErrInProgress is the Conflict reason for a stage that has a live task.
	ErrInProgress = errors.New("in progress")

	// ErrPrecondition indicates that stage ordering was violated.
	ErrPrecondition = errors.New("precondition failed")

	// ErrNotAnalyzed is the Precondition reason for embedding before analysis completed.
	ErrNotAnalyzed = errors.New("record not analyzed")

	// ErrNotReady is the Precondition reason for reading output that does not exist yet.
	ErrNotReady = errors.New("record not ready")

	// ErrTransientProvider indicates a provider failure worth retrying.
	ErrTransientProvider = errors.New("transient provider error")

	// ErrPermanentProvider indicates a provider failure that must not be retried.
	ErrPermanentProvider = errors.New("permanent provider error")

	// ErrGenerationFailed is surfaced by question answering once retries are exhausted.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrMalformedResponse indicates provider output that could not be interpreted.
	ErrMalformedResponse = errors.New("malformed provider response")
)

// Domain validation errors
var (
	// ErrInvalidRecord indicates a Record failed validation.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrInvalidStageState indicates a stage violates the task ownership rules.
	ErrInvalidStageState = errors.New("invalid stage state")

	// ErrInvalidAnalysis indicates an AnalysisResult failed validation.
	ErrInvalidAnalysis = errors.New("invalid analysis result")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")
)

// IsPermanent reports whether err must not be retried.
// Cancellation of the caller's context is permanent as well.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanentProvider) || errors.Is(err, context.Canceled)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err)
}
