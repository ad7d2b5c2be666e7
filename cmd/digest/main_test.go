package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/digest/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// runApp runs the CLI with args and returns stdout and stderr.
func runApp(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := newApp()
	app.Reader = strings.NewReader(stdin)
	app.Writer = &stdout
	app.ErrWriter = &stderr
	err := app.Run(append([]string{"digest"}, args...))
	return stdout.String(), stderr.String(), err
}

func TestReembedCommandFlags(t *testing.T) {
	app := newApp()
	var cmd *cli.Command
	for _, c := range app.Commands {
		if c.Name == "reembed" {
			cmd = c
		}
	}
	require.NotNil(t, cmd)

	t.Run("batch-size has default value", func(t *testing.T) {
		var batchFlag *cli.IntFlag
		for _, flag := range cmd.Flags {
			if f, ok := flag.(*cli.IntFlag); ok && f.Name == "batch-size" {
				batchFlag = f
				break
			}
		}
		require.NotNil(t, batchFlag)
		assert.Equal(t, 32, batchFlag.Value)
	})

	t.Run("rejects non-positive batch size", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "db")
		_, _, err := runApp(t, "", "--db", dbPath, "reembed", "--batch-size", "0")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "batch-size")
	})
}

func TestInvalidLogLevel(t *testing.T) {
	_, _, err := runApp(t, "", "--log-level", "chatty", "config")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestAddAndStatus(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db")

	stdout, _, err := runApp(t, "Alice will send the report.", "--db", dbPath, "add", "--title", "standup")
	require.NoError(t, err)
	assert.Equal(t, "1\tstandup\n", stdout)

	transcript := filepath.Join(t.TempDir(), "retro.txt")
	require.NoError(t, os.WriteFile(transcript, []byte("We discussed the outage."), 0o644))
	stdout, _, err = runApp(t, "", "--db", dbPath, "add", transcript)
	require.NoError(t, err)
	assert.Equal(t, "2\tretro\n", stdout)

	stdout, _, err = runApp(t, "", "--db", dbPath, "status")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "1\tanalysis=PENDING\tembedding=NONE")
	assert.Contains(t, lines[1], "2\tanalysis=PENDING")

	_, _, err = runApp(t, "", "--db", dbPath, "status", "99")
	assert.ErrorContains(t, err, "record 99")
}

func TestShowBeforeAnalysis(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db")
	_, _, err := runApp(t, "Some transcript.", "--db", dbPath, "add")
	require.NoError(t, err)

	_, _, err = runApp(t, "", "--db", dbPath, "show", "1")
	assert.ErrorIs(t, err, core.ErrNotReady)
}

func TestEmbedBeforeAnalysis(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db")
	_, _, err := runApp(t, "Some transcript.", "--db", dbPath, "add")
	require.NoError(t, err)

	_, stderr, err := runApp(t, "", "--db", dbPath, "embed", "1")
	assert.ErrorContains(t, err, "no run was started")
	assert.Contains(t, stderr, "record 1")
}

func TestCommandsRequireIDs(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db")
	for _, name := range []string{"analyze", "embed", "show", "chunks"} {
		t.Run(name, func(t *testing.T) {
			_, _, err := runApp(t, "", "--db", dbPath, name)
			assert.ErrorContains(t, err, "record id")
		})
	}

	_, _, err := runApp(t, "", "--db", dbPath, "show", "abc")
	assert.ErrorContains(t, err, `invalid record id "abc"`)

	_, _, err = runApp(t, "", "--db", dbPath, "ask", "1")
	assert.ErrorContains(t, err, "question")
}

func TestConfigCommand(t *testing.T) {
	t.Setenv("DIGEST_TOP_K", "7")
	dbPath := filepath.Join(t.TempDir(), "db")

	stdout, _, err := runApp(t, "", "--db", dbPath, "config")
	require.NoError(t, err)

	var printed map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &printed))
	assert.Equal(t, 7, printed["top_k"])
	assert.Equal(t, dbPath, printed["data_dir"])

	savePath := filepath.Join(t.TempDir(), "digest.yaml")
	_, _, err = runApp(t, "", "--db", dbPath, "config", "--save", savePath)
	require.NoError(t, err)
	assert.FileExists(t, savePath)
}

func TestResumeEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db")
	stdout, _, err := runApp(t, "", "--db", dbPath, "resume")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Requeued 0 tasks")
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"1", "42"})
	require.NoError(t, err)
	assert.Equal(t, []core.ID{1, 42}, ids)

	_, err = parseIDs([]string{"0"})
	assert.Error(t, err)
	_, err = parseIDs([]string{"-3"})
	assert.Error(t, err)
}
