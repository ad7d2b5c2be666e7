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


package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/digest"
	"github.com/poiesic/digest/config"
	"github.com/poiesic/digest/core"
)

var lines = []string{
	"Priya opened the weekly sync and reviewed last sprint's carry-over.",
	"The billing migration is blocked on the new tax tables.",
	"Marco will ask finance for the updated tables by Wednesday.",
	"Search latency regressed after the index rebuild.",
	"The team agreed to roll back the analyzer change.",
	"Dana will write the rollback plan before Friday.",
	"Customer support reported duplicate invoice emails.",
	"Nobody owns the notification service right now.",
	"Priya will raise ownership at the staff meeting.",
	"The quarterly roadmap review moves to next Thursday.",
	"Onboarding docs for the data platform are out of date.",
	"Lee offered to pair with the two new hires on the docs.",
	"The staging cluster ran out of disk twice this week.",
	"Ops will add an alert on disk usage above eighty percent.",
	"Design shared mockups for the new settings page.",
	"Feedback on the mockups is due by Monday.",
	"The mobile release is on track for the end of the month.",
	"Crash reports dropped by half after the last patch.",
	"Marco flagged that the vendor contract renews in six weeks.",
	"Everyone agreed the retro format is working and should stay.",
}

var (
	seedFileName = flag.String("src", "", "file of seed data, one transcript line per line")
	dbPath       = flag.String("db", "./digest_db", "path to the database directory")
	perRecord    = flag.Int("lines", 5, "number of lines per transcript")
	analyze      = flag.Bool("analyze", false, "trigger analysis of every seeded transcript")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}

// linesFromFile returns an iterator over lines in a file.
func linesFromFile(filename string) (iter.Seq[string], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(string) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if !yield(scanner.Text()) {
				return
			}
		}
	}, nil
}

// linesFromSlice returns an iterator over a slice of strings.
func linesFromSlice(lines []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, line := range lines {
			if !yield(line) {
				return
			}
		}
	}
}

// transcripts groups non-blank lines from source into transcripts of size lines each.
func transcripts(source iter.Seq[string], size int) iter.Seq[*core.Record] {
	return func(yield func(*core.Record) bool) {
		batch := make([]string, 0, size)
		n := 0
		flush := func() bool {
			if len(batch) == 0 {
				return true
			}
			n++
			record := &core.Record{
				Title: fmt.Sprintf("Seeded transcript %d", n),
				Text:  strings.Join(batch, "\n"),
			}
			batch = batch[:0]
			return yield(record)
		}

		for line := range source {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			batch = append(batch, line)
			if len(batch) == size && !flush() {
				return
			}
		}
		flush()
	}
}

func main() {
	flag.Parse()
	if *perRecord <= 0 {
		slog.Error("lines must be positive")
		os.Exit(1)
	}

	cfg, _, err := config.LoadDefault()
	if err != nil {
		panic(err)
	}
	cfg.DataDir = *dbPath

	db, err := digest.Open(cfg)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	pipeline, err := db.NewPipeline(digest.PipelineOptions(cfg)...)
	if err != nil {
		panic(err)
	}
	defer pipeline.Release()

	ctx := context.Background()

	// Determine source of seed data
	var source iter.Seq[string]
	if seedFileName != nil && *seedFileName != "" {
		source, err = linesFromFile(*seedFileName)
		if err != nil {
			panic(err)
		}
	} else {
		source = linesFromSlice(lines)
	}

	for record := range transcripts(source, *perRecord) {
		added, err := db.AddRecords(ctx, record)
		if err != nil {
			panic(err)
		}
		id := added[0].Id
		slog.Info("seeded transcript", "record", id, "title", record.Title)

		if *analyze {
			if _, err := pipeline.TriggerAnalysis(ctx, id); err != nil {
				slog.Error("failed to trigger analysis", "record", id, "err", err)
			}
		}
	}

	pipeline.Wait()
}
