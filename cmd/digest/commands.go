package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/poiesic/digest"
	"github.com/poiesic/digest/config"
	"github.com/poiesic/digest/core"
	"github.com/poiesic/digest/pipeline"
	"github.com/poiesic/digest/reembed"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// session is an open database with a running pipeline.
type session struct {
	db       *digest.Database
	pipeline *pipeline.Pipeline
	cfg      *config.Config
}

func openSession(c *cli.Context) (*session, error) {
	cfg := appConfig(c)
	db, err := digest.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	p, err := db.NewPipeline(digest.PipelineOptions(cfg)...)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return &session{db: db, pipeline: p, cfg: cfg}, nil
}

func (s *session) close() error {
	s.pipeline.Release()
	return s.db.Close()
}

func parseIDs(args []string) ([]core.ID, error) {
	ids := make([]core.ID, 0, len(args))
	for _, arg := range args {
		n, err := strconv.ParseUint(arg, 10, 64)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("invalid record id %q", arg)
		}
		ids = append(ids, core.ID(n))
	}
	return ids, nil
}

func requireIDs(c *cli.Context, max int) ([]core.ID, error) {
	if c.NArg() == 0 {
		return nil, errors.New("at least one record id is required")
	}
	args := c.Args().Slice()
	if max > 0 && len(args) > max {
		args = args[:max]
	}
	return parseIDs(args)
}

func addCommand(c *cli.Context) error {
	ctx := context.Background()

	records, err := readTranscripts(c)
	if err != nil {
		return err
	}

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	added, err := s.db.AddRecords(ctx, records...)
	if err != nil {
		return fmt.Errorf("failed to add records: %w", err)
	}

	for _, record := range added {
		fmt.Fprintf(c.App.Writer, "%d\t%s\n", record.Id, record.Title)
	}
	if !c.Bool("analyze") {
		return nil
	}

	ids := make([]core.ID, len(added))
	for i, record := range added {
		ids[i] = record.Id
	}
	return trigger(c, s, ids, s.pipeline.TriggerAnalysis)
}

func readTranscripts(c *cli.Context) ([]*core.Record, error) {
	title := c.String("title")
	if c.NArg() == 0 {
		data, err := io.ReadAll(c.App.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return []*core.Record{{Title: title, Text: string(data)}}, nil
	}

	records := make([]*core.Record, 0, c.NArg())
	for _, path := range c.Args().Slice() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		recordTitle := title
		if recordTitle == "" {
			recordTitle = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		records = append(records, &core.Record{Title: recordTitle, Text: string(data)})
	}
	return records, nil
}

func analyzeCommand(c *cli.Context) error {
	ids, err := requireIDs(c, 0)
	if err != nil {
		return err
	}

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	return trigger(c, s, ids, s.pipeline.TriggerAnalysis)
}

func embedCommand(c *cli.Context) error {
	ids, err := requireIDs(c, 0)
	if err != nil {
		return err
	}

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	fn := s.pipeline.TriggerEmbedding
	if c.Bool("force") {
		fn = s.pipeline.ForceEmbedding
	}
	return trigger(c, s, ids, fn)
}

type triggerFunc func(ctx context.Context, id core.ID) (core.StatusSnapshot, error)

// trigger starts fn for every id and optionally waits for the runs to finish.
// Rejected triggers are reported per record and do not stop the others.
func trigger(c *cli.Context, s *session, ids []core.ID, fn triggerFunc) error {
	ctx := context.Background()

	var rejected int
	for _, id := range ids {
		if _, err := fn(ctx, id); err != nil {
			fmt.Fprintf(c.App.ErrWriter, "record %d: %v\n", id, err)
			rejected++
		}
	}

	if c.Bool("wait") {
		s.pipeline.Wait()
	}
	for _, id := range ids {
		snapshot, err := s.pipeline.Status(ctx, id)
		if err != nil {
			continue
		}
		printStatus(c.App.Writer, snapshot)
	}

	if rejected == len(ids) {
		return errors.New("no run was started")
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	ctx := context.Background()
	ids, err := parseIDs(c.Args().Slice())
	if err != nil {
		return err
	}

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	if len(ids) == 0 {
		records, err := s.db.RecordRepository().ListRecords(ctx)
		if err != nil {
			return err
		}
		for _, record := range records {
			printStatus(c.App.Writer, record.Snapshot())
		}
		return nil
	}

	for _, id := range ids {
		snapshot, err := s.pipeline.Status(ctx, id)
		if err != nil {
			return fmt.Errorf("record %d: %w", id, err)
		}
		printStatus(c.App.Writer, snapshot)
	}
	return nil
}

func printStatus(w io.Writer, s core.StatusSnapshot) {
	fmt.Fprintf(w, "%d\tanalysis=%s\tembedding=%s\tchunks=%d", s.RecordID, s.ProcessingStatus, s.EmbeddingStatus, s.ChunkCount)
	if s.Error != "" {
		fmt.Fprintf(w, "\terror=%q", s.Error)
	}
	if s.EmbeddingError != "" {
		fmt.Fprintf(w, "\tembedding_error=%q", s.EmbeddingError)
	}
	fmt.Fprintln(w)
}

func showCommand(c *cli.Context) error {
	ctx := context.Background()
	ids, err := requireIDs(c, 1)
	if err != nil {
		return err
	}

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	result, err := s.pipeline.Analysis(ctx, ids[0])
	if err != nil {
		return fmt.Errorf("record %d: %w", ids[0], err)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "# %s\n\n%s\n", result.Title, result.Summary)
	if len(result.KeyPoints) > 0 {
		fmt.Fprintf(w, "\nKey points:\n")
	}
	for _, kp := range result.KeyPoints {
		if kp.Kind != core.KeyPointInsight {
			continue
		}
		fmt.Fprintf(w, "  - %s\n", kp.Text)
	}
	if items := result.ActionItems(); len(items) > 0 {
		fmt.Fprintf(w, "\nAction items:\n")
		for _, item := range items {
			fmt.Fprintf(w, "  - %s (owner: %s, due: %s)\n", item.Text, item.Owner, item.Deadline)
		}
	}
	return nil
}

func chunksCommand(c *cli.Context) error {
	ctx := context.Background()
	ids, err := requireIDs(c, 1)
	if err != nil {
		return err
	}

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	chunks, err := s.pipeline.Chunks(ctx, ids[0])
	if err != nil {
		return fmt.Errorf("record %d: %w", ids[0], err)
	}
	for _, chunk := range chunks {
		fmt.Fprintf(c.App.Writer, "[%d] %d-%d generation=%d\n%s\n\n", chunk.Sequence, chunk.Start, chunk.End, chunk.Generation, chunk.Text)
	}
	return nil
}

func askCommand(c *cli.Context) error {
	ctx := context.Background()
	if c.NArg() < 2 {
		return errors.New("a record id and a question are required")
	}
	ids, err := requireIDs(c, 1)
	if err != nil {
		return err
	}
	question := strings.Join(c.Args().Tail(), " ")

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	engine, err := s.db.NewEngine(digest.EngineOptions(s.cfg)...)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	answer, err := engine.Ask(ctx, ids[0], question)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, answer.Text)
	if len(answer.Citations) > 0 {
		parts := make([]string, len(answer.Citations))
		for i, citation := range answer.Citations {
			parts[i] = fmt.Sprintf("#%d (%.3f)", citation.Sequence, citation.Score)
		}
		fmt.Fprintf(c.App.Writer, "\nSources: %s\n", strings.Join(parts, ", "))
	}
	if answer.Stale {
		fmt.Fprintln(c.App.Writer, "Note: answered from chunks of a previous embedding run.")
	}
	return nil
}

func reembedCommand(c *cli.Context) error {
	ctx := context.Background()

	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
	}
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	if reembedConfig.BatchSize > s.cfg.QueueSize {
		return fmt.Errorf("batch-size cannot exceed queue_size (%d)", s.cfg.QueueSize)
	}

	reembedder, err := s.db.NewReembedder(s.pipeline, reembedConfig, c.App.ErrWriter)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", s.cfg.DataDir)
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", s.cfg.Provider.EmbeddingHost)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", s.cfg.Provider.EmbeddingModel)
	fmt.Fprintln(c.App.ErrWriter)

	summary, err := reembedder.Run(ctx)
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d records failed to re-embed", summary.Failed)
	}
	return nil
}

func resumeCommand(c *cli.Context) error {
	ctx := context.Background()

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	report, err := s.pipeline.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recovery failed: %w", err)
	}
	s.pipeline.Wait()

	fmt.Fprintf(c.App.Writer, "Requeued %d tasks, pruned %d orphaned chunks, %d failed to requeue\n",
		report.Requeued, report.Pruned, report.Failed)
	return nil
}

func configCommand(c *cli.Context) error {
	cfg := appConfig(c)
	if path := c.String("save"); path != "" {
		if err := config.Save(path, cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Fprintf(c.App.ErrWriter, "Saved configuration to %s\n", path)
		return nil
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = c.App.Writer.Write(data)
	return err
}
