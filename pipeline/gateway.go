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


package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/digest/core"
	"github.com/poiesic/digest/storage"
)

const maxErrorLength = 1024

// TriggerAnalysis starts the analysis stage of a record.
//
// Fails with ErrNotFound for an unknown record and ErrNoContent for a record
// without text. A completed analysis is rejected with ErrConflict/ErrAlreadyDone,
// a live task with ErrConflict/ErrInProgress. Rejected triggers change nothing.
func (p *Pipeline) TriggerAnalysis(ctx context.Context, id core.ID) (core.StatusSnapshot, error) {
	return p.trigger(ctx, id, core.StageAnalysis, false)
}

// TriggerEmbedding starts the embedding stage of a record.
// Same rules as TriggerAnalysis, and the analysis must have completed, otherwise
// ErrPrecondition/ErrNotAnalyzed is returned.
func (p *Pipeline) TriggerEmbedding(ctx context.Context, id core.ID) (core.StatusSnapshot, error) {
	return p.trigger(ctx, id, core.StageEmbedding, false)
}

// ForceEmbedding is TriggerEmbedding that also restarts a completed embedding,
// for instance after the embedding model changed. The current chunks stay
// queryable until the new run succeeds.
func (p *Pipeline) ForceEmbedding(ctx context.Context, id core.ID) (core.StatusSnapshot, error) {
	return p.trigger(ctx, id, core.StageEmbedding, true)
}

func (p *Pipeline) trigger(ctx context.Context, id core.ID, stage core.Stage, force bool) (core.StatusSnapshot, error) {
	task := core.Task{ID: uuid.NewString(), RecordID: id, Stage: stage}

	record, err := p.records.UpdateRecord(ctx, id, func(record *core.Record) error {
		if !record.HasContent() {
			return fmt.Errorf("%w: record %d", core.ErrNoContent, id)
		}
		if stage == core.StageEmbedding && record.Analysis.Status != core.StatusCompleted {
			return fmt.Errorf("%w: %w: analysis is %s", core.ErrPrecondition, core.ErrNotAnalyzed, record.Analysis.Status)
		}

		state := record.Stage(stage)
		switch {
		case state.Status == core.StatusCompleted && !force:
			return fmt.Errorf("%w: %w: %s of record %d", core.ErrConflict, core.ErrAlreadyDone, stage, id)
		case state.Status == core.StatusProcessing, state.Status == core.StatusPending && state.TaskID != "":
			return fmt.Errorf("%w: %w: %s task %s", core.ErrConflict, core.ErrInProgress, stage, state.TaskID)
		}

		if err := moveTo(stage, state, core.StatusPending, task.ID); err != nil {
			return err
		}
		state.Error = ""
		state.Attempts = 0
		return nil
	})
	if err != nil {
		return core.StatusSnapshot{}, err
	}

	if !p.queue(stage).enqueue(task) {
		p.logger.Warn("dispatch queue rejected task", "stage", stage.String(), "record", id, "task", task.ID)
		snapshot := p.failDispatch(ctx, task)
		return snapshot, fmt.Errorf("%w: %s queue is full or closed", ErrDispatchFailed, stage)
	}

	p.logger.Debug("task dispatched", "stage", stage.String(), "record", id, "task", task.ID)
	return record.Snapshot(), nil
}

// rejectTask handles a task the worker pool refused after it was queued.
func (p *Pipeline) rejectTask(task core.Task, err error) {
	p.failDispatch(context.Background(), task)
}

// failDispatch releases the stage of a task that never reached a worker.
func (p *Pipeline) failDispatch(ctx context.Context, task core.Task) core.StatusSnapshot {
	record, err := p.records.UpdateRecord(ctx, task.RecordID, func(record *core.Record) error {
		state := record.Stage(task.Stage)
		if state.TaskID != task.ID {
			return errStaleTask
		}
		if err := moveTo(task.Stage, state, core.StatusFailed, ""); err != nil {
			return err
		}
		state.Error = ErrDispatchFailed.Error()
		return nil
	})
	if err != nil {
		p.logger.Error("error releasing undispatched task", "record", task.RecordID, "task", task.ID, "err", err)
		return core.StatusSnapshot{}
	}
	return record.Snapshot()
}

// claim moves a queued task to PROCESSING. Returns errStaleTask if the record
// no longer waits for this task, which happens for duplicate deliveries.
func (p *Pipeline) claim(ctx context.Context, task core.Task) (*core.Record, error) {
	return p.records.UpdateRecord(ctx, task.RecordID, func(record *core.Record) error {
		state := record.Stage(task.Stage)
		if state.Status != core.StatusPending || state.TaskID != task.ID {
			return errStaleTask
		}
		return moveTo(task.Stage, state, core.StatusProcessing, task.ID)
	})
}

// finish returns a mutator that ends a task's run. It refuses to touch a record
// whose stage has been taken over by another task.
func finish(task core.Task, status core.Status, attempts int, cause error) storage.RecordMutator {
	return func(record *core.Record) error {
		state := record.Stage(task.Stage)
		if state.Status != core.StatusProcessing || state.TaskID != task.ID {
			return errStaleTask
		}
		if err := moveTo(task.Stage, state, status, ""); err != nil {
			return err
		}
		state.Attempts = attempts
		state.Error = ""
		if cause != nil {
			state.Error = errorMessage(task.Stage, cause)
		}
		return nil
	}
}

// fail marks a running task FAILED. Errors are logged, the worker has nobody to return them to.
func (p *Pipeline) fail(ctx context.Context, task core.Task, attempts int, cause error) {
	p.logger.Warn("stage failed", "stage", task.Stage.String(), "record", task.RecordID,
		"task", task.ID, "attempts", attempts, "err", cause)
	if _, err := p.records.UpdateRecord(ctx, task.RecordID, finish(task, core.StatusFailed, attempts, cause)); err != nil {
		p.logger.Error("error recording stage failure", "stage", task.Stage.String(),
			"record", task.RecordID, "task", task.ID, "err", err)
	}
}

func moveTo(stage core.Stage, state *core.StageState, to core.Status, taskID string) error {
	if !core.CanTransition(stage, state.Status, to) {
		return fmt.Errorf("%w: %s cannot move from %s to %s", core.ErrInvalidStageState, stage, state.Status, to)
	}
	state.Status = to
	state.TaskID = taskID
	state.UpdatedAt = time.Now().UTC()
	return nil
}

func errorMessage(stage core.Stage, cause error) string {
	msg := fmt.Sprintf("%s failed: %v", stage, cause)
	if len(msg) <= maxErrorLength {
		return msg
	}
	return strings.ToValidUTF8(msg[:maxErrorLength], "")
}
