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
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/poiesic/digest/config"
	"github.com/poiesic/digest/reembed"
	"github.com/urfave/cli/v2"
)

const configKey = "config"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	waitFlag := &cli.BoolFlag{
		Name:  "wait",
		Usage: "Block until the triggered runs have finished",
		Value: true,
	}

	return &cli.App{
		Name:  "digest",
		Usage: "Summarize transcripts, extract key points and answer questions about them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file (defaults to ./digest.yaml or ~/.config/digest/config.yaml)",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (overrides data_dir)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
		},
		Metadata: map[string]interface{}{},
		Before:   setup,
		After:    teardown,
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add transcripts from files, or from stdin when no file is given",
				ArgsUsage: "[file...]",
				Action:    addCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "title",
						Usage: "Title of the transcript (defaults to the file name)",
					},
					&cli.BoolFlag{
						Name:  "analyze",
						Usage: "Trigger analysis right after adding",
					},
					waitFlag,
				},
			},
			{
				Name:      "analyze",
				Usage:     "Trigger the analysis of records; embedding follows automatically",
				ArgsUsage: "<id...>",
				Action:    analyzeCommand,
				Flags:     []cli.Flag{waitFlag},
			},
			{
				Name:      "embed",
				Usage:     "Trigger the embedding of analyzed records",
				ArgsUsage: "<id...>",
				Action:    embedCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Re-embed records whose embedding already completed",
					},
					waitFlag,
				},
			},
			{
				Name:      "status",
				Usage:     "Show the pipeline status of records (all records when no id is given)",
				ArgsUsage: "[id...]",
				Action:    statusCommand,
			},
			{
				Name:      "show",
				Usage:     "Show the analysis of a record",
				ArgsUsage: "<id>",
				Action:    showCommand,
			},
			{
				Name:      "chunks",
				Usage:     "List the current chunks of a record",
				ArgsUsage: "<id>",
				Action:    chunksCommand,
			},
			{
				Name:      "ask",
				Usage:     "Answer a question from the chunks of one record",
				ArgsUsage: "<id> <question...>",
				Action:    askCommand,
			},
			{
				Name:   "reembed",
				Usage:  "Re-embed every analyzed record, e.g. after switching embedding models",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of records to process in each batch",
						Value: reembed.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N records",
						Value: reembed.DefaultBatchSize,
					},
				},
			},
			{
				Name:   "resume",
				Usage:  "Re-dispatch tasks left pending or processing by a previous run",
				Action: resumeCommand,
			},
			{
				Name:   "config",
				Usage:  "Print the effective configuration as YAML",
				Action: configCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "save",
						Usage: "Write the effective configuration to this path",
					},
				},
			},
		},
	}
}

// setup loads the configuration and installs the logger.
func setup(c *cli.Context) error {
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, _, err = config.LoadDefault()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if db := c.String("db"); db != "" {
		cfg.DataDir = db
	}
	if level := c.String("log-level"); level != "" {
		cfg.LogLevel = level
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger, cleanup := config.SetupLogger(cfg.LogFile, level)
	slog.SetDefault(logger)

	c.App.Metadata[configKey] = cfg
	c.App.Metadata["cleanup"] = cleanup
	return nil
}

func teardown(c *cli.Context) error {
	if cleanup, ok := c.App.Metadata["cleanup"].(func() error); ok {
		return cleanup()
	}
	return nil
}

func appConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}
