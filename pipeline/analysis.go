package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/digest/ai"
	"github.com/poiesic/digest/core"
	"github.com/poiesic/digest/retry"
)

const analysisTemperature = 0.2

// analysisProcessor runs the analysis stage of one task.
type analysisProcessor struct {
	p         *Pipeline
	generator ai.TextGenerator
	logger    *slog.Logger
}

func newAnalysisProcessor(p *Pipeline, generator ai.TextGenerator) (*analysisProcessor, error) {
	if generator == nil {
		return nil, fmt.Errorf("text generator required")
	}
	return &analysisProcessor{
		p:         p,
		generator: generator,
		logger:    p.logger.With("processor", "analysis"),
	}, nil
}

// process claims the task, generates the analysis and commits it together with
// the COMPLETED status. On success the embedding stage is triggered.
func (ap *analysisProcessor) process(ctx context.Context, task core.Task) {
	record, err := ap.p.claim(ctx, task)
	if err != nil {
		if errors.Is(err, errStaleTask) {
			ap.logger.Debug("skipping stale task", "record", task.RecordID, "task", task.ID)
			return
		}
		ap.logger.Error("error claiming task", "record", task.RecordID, "task", task.ID, "err", err)
		return
	}
	ap.logger.Info("analyzing record", "record", record.Id, "task", task.ID)

	result, attempts, err := ap.analyze(ctx, record)
	if err != nil {
		ap.p.fail(ctx, task, attempts, err)
		return
	}
	result.RecordId = record.Id
	result.TaskID = task.ID
	if result.Title == "" {
		result.Title = record.Title
	}

	complete := finish(task, core.StatusCompleted, attempts, nil)
	_, err = ap.p.analyses.CommitAnalysis(ctx, result, func(record *core.Record) error {
		if err := complete(record); err != nil {
			return err
		}
		// Untitled records take the title the model found.
		if strings.TrimSpace(record.Title) == "" {
			record.Title = result.Title
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errStaleTask) {
			ap.logger.Warn("discarding analysis of a task that lost ownership", "record", record.Id, "task", task.ID)
			return
		}
		ap.p.fail(ctx, task, attempts, err)
		return
	}
	ap.logger.Info("analysis completed", "record", record.Id, "task", task.ID,
		"keyPoints", len(result.KeyPoints), "attempts", attempts)

	// Continuation. The gateway rejects duplicates, so a conflict here is harmless.
	if _, err := ap.p.TriggerEmbedding(ctx, record.Id); err != nil {
		if errors.Is(err, core.ErrConflict) {
			ap.logger.Debug("embedding already triggered", "record", record.Id, "err", err)
			return
		}
		ap.logger.Error("error triggering embedding", "record", record.Id, "err", err)
	}
}

// analyze asks the generator for the analysis, retrying transient failures.
// An unparseable reply fails at once.
func (ap *analysisProcessor) analyze(ctx context.Context, record *core.Record) (*core.AnalysisResult, int, error) {
	req := ai.GenerationRequest{
		System:      analysisSystemPrompt,
		Prompt:      record.Text,
		JSON:        true,
		Temperature: analysisTemperature,
	}

	var result *core.AnalysisResult
	attempts, err := retry.Do(ctx, ap.p.retryPolicy, func(ctx context.Context) error {
		reply, err := ap.generator.Generate(ctx, req)
		if err != nil {
			return err
		}
		result, err = parseAnalysis(reply)
		if err != nil {
			ap.logger.Debug("unparseable analysis reply", "record", record.Id, "err", err)
		}
		return err
	})
	return result, attempts, err
}
