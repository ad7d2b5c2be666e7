package digest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/digest/ai"
	"github.com/poiesic/digest/ai/mock"
	"github.com/poiesic/digest/config"
	"github.com/poiesic/digest/core"
	"github.com/poiesic/digest/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabase(t *testing.T) {
	t.Run("create new database", func(t *testing.T) {
		tmpDir := filepath.Join(t.TempDir(), "test_db")
		db, err := NewDatabase(tmpDir)
		require.NoError(t, err)
		require.NotNil(t, db)
		defer db.Close()

		// Verify components are initialized
		assert.NotNil(t, db.RecordRepository())
		assert.NotNil(t, db.AnalysisRepository())
		assert.NotNil(t, db.ChunkRepository())
		assert.NotNil(t, db.backend)
		assert.NotNil(t, db.logger)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		// Try to create a database at a file path instead of directory
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		err := os.WriteFile(tmpFile, []byte("test"), 0644)
		require.NoError(t, err)

		db, err := NewDatabase(tmpFile)
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("error with invalid provider", func(t *testing.T) {
		db, err := NewDatabase("", WithInMemory(), WithAIConfig(ai.NewConfig(ai.WithProvider("bedrock"))))
		assert.Error(t, err)
		assert.Nil(t, db)
	})
}

func TestNewProvider(t *testing.T) {
	for _, name := range []string{ai.ProviderOpenAI, ai.ProviderOllama} {
		t.Run(name, func(t *testing.T) {
			provider, err := NewProvider(ai.NewConfig(ai.WithProvider(name), ai.WithHost("http://localhost:11434")))
			require.NoError(t, err)
			require.NotNil(t, provider)
			assert.NotNil(t, provider.Embedder())
			assert.NotNil(t, provider.TextGenerator())
			assert.NoError(t, provider.Close())
		})
	}
}

func TestDatabase_Close(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := NewDatabase(tmpDir)
	require.NoError(t, err)
	require.NotNil(t, db)

	// Close the database
	err = db.Close()
	assert.NoError(t, err)
}

func TestDatabase_FactoryMethods(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := NewDatabase(tmpDir)
	require.NoError(t, err)
	require.NotNil(t, db)
	defer db.Close()

	t.Run("can create pipeline", func(t *testing.T) {
		p, err := db.NewPipeline()
		require.NoError(t, err)
		require.NotNil(t, p)
		p.Release()
	})

	t.Run("can create engine", func(t *testing.T) {
		engine, err := db.NewEngine()
		require.NoError(t, err)
		require.NotNil(t, engine)
	})

	t.Run("options from config", func(t *testing.T) {
		cfg := config.Default()
		cfg.PoolSize = 2

		p, err := db.NewPipeline(PipelineOptions(cfg)...)
		require.NoError(t, err)
		p.Release()

		_, err = db.NewEngine(EngineOptions(cfg)...)
		require.NoError(t, err)
	})
}

func TestOpen(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")

	provider := mock.NewMockProvider().(*mock.MockProvider)
	db, err := Open(cfg, WithProvider(provider))
	require.NoError(t, err)
	require.NoError(t, db.Close())
	assert.True(t, provider.Closed(), "database owns the provider")

	cfg.ChunkOverlap = cfg.ChunkSize
	_, err = Open(cfg)
	assert.Error(t, err)
}

func TestDatabase_EndToEnd(t *testing.T) {
	ctx := context.Background()
	db, err := NewDatabase("", WithInMemory(), WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	defer db.Close()

	p, err := db.NewPipeline(pipeline.WithPoolSize(2))
	require.NoError(t, err)
	defer p.Release()

	records, err := db.AddRecords(ctx, &core.Record{
		Title: "Weekly sync",
		Text:  "The team agreed to ship the billing migration on Friday. Dana owns the rollback plan.",
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	id := records[0].Id

	_, err = p.TriggerAnalysis(ctx, id)
	require.NoError(t, err)
	p.Wait()

	status, err := p.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, status.ProcessingStatus)
	assert.Equal(t, core.StatusCompleted, status.EmbeddingStatus)

	engine, err := db.NewEngine()
	require.NoError(t, err)
	answer, err := engine.Ask(ctx, id, "Who owns the rollback plan?")
	require.NoError(t, err)
	assert.NotEmpty(t, answer.Text)
	assert.NotEmpty(t, answer.Citations)
}

func TestDatabase_AddRecordsRejectsNil(t *testing.T) {
	db, err := NewDatabase("", WithInMemory(), WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.AddRecords(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrInvalidRecord)
}
