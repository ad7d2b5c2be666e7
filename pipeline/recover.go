package pipeline

import (
	"context"
	"errors"

	"github.com/poiesic/digest/core"
)

// RecoveryReport summarizes what Recover did.
type RecoveryReport struct {
	// Requeued is the number of tasks dispatched again.
	Requeued int
	// Pruned is the number of orphaned chunks deleted.
	Pruned int
	// Failed is the number of tasks that could not be dispatched.
	Failed int
}

// Recover resumes the work of a previous process.
//
// Chunk generations that no record points at are pruned first. Then every
// PROCESSING task is reset to PENDING with the same task id, and every PENDING
// task is queued again. Recover must run before any trigger of this process:
// the exclusive lock on the store guarantees no other process owns these tasks.
func (p *Pipeline) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport

	records, err := p.records.ListRecords(ctx)
	if err != nil {
		return report, err
	}

	for _, record := range records {
		pruned, err := p.chunks.PruneGenerations(ctx, record.Id)
		if err != nil {
			return report, err
		}
		report.Pruned += pruned
	}

	for _, record := range records {
		for _, stage := range []core.Stage{core.StageAnalysis, core.StageEmbedding} {
			state := record.Stage(stage)
			if state.TaskID == "" || !state.Status.IsActive() {
				continue
			}
			task := core.Task{ID: state.TaskID, RecordID: record.Id, Stage: stage}

			if state.Status == core.StatusProcessing {
				if err := p.resetTask(ctx, task); err != nil {
					if errors.Is(err, errStaleTask) {
						continue
					}
					return report, err
				}
			}

			if !p.queue(stage).enqueue(task) {
				p.failDispatch(ctx, task)
				report.Failed++
				continue
			}
			report.Requeued++
		}
	}

	p.logger.Info("recovery finished", "records", len(records),
		"requeued", report.Requeued, "pruned", report.Pruned, "failed", report.Failed)
	return report, nil
}

// resetTask moves an interrupted PROCESSING task back to PENDING.
func (p *Pipeline) resetTask(ctx context.Context, task core.Task) error {
	_, err := p.records.UpdateRecord(ctx, task.RecordID, func(record *core.Record) error {
		state := record.Stage(task.Stage)
		if state.Status != core.StatusProcessing || state.TaskID != task.ID {
			return errStaleTask
		}
		return moveTo(task.Stage, state, core.StatusPending, task.ID)
	})
	if err == nil {
		p.logger.Info("reset interrupted task", "stage", task.Stage.String(), "record", task.RecordID, "task", task.ID)
	}
	return err
}
