package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/digest/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 512, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 4000, cfg.MaxContextLength)
	assert.True(t, cfg.StaleReads)
	assert.Equal(t, 3, cfg.RetryLimit)
	assert.Equal(t, time.Second, cfg.RetryBackoffBase)
	assert.Equal(t, ai.ProviderOpenAI, cfg.Provider.Type)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "digest.yaml")
	data := `
chunk_size: 100
chunk_overlap: 20
top_k: 3
retry_backoff_base: 250ms
provider:
  type: ollama
  embedding_host: http://gpu-box:11434
  embedding_model: nomic-embed-text
  call_timeout: 2m
data_dir: /var/lib/digest
log_level: debug
stale_reads: false
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.ChunkSize)
	assert.Equal(t, 20, cfg.ChunkOverlap)
	assert.Equal(t, 3, cfg.TopK)
	assert.Equal(t, 4000, cfg.MaxContextLength, "unset keys keep defaults")
	assert.False(t, cfg.StaleReads)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBackoffBase)
	assert.Equal(t, ai.ProviderOllama, cfg.Provider.Type)
	assert.Equal(t, 2*time.Minute, cfg.Provider.CallTimeout)
	assert.Equal(t, "/var/lib/digest", cfg.DataDir)
	assert.Equal(t, slog.LevelDebug, cfg.Level())

	aiCfg := cfg.AIConfig()
	require.NoError(t, aiCfg.Validate())
	assert.Equal(t, "http://gpu-box:11434", aiCfg.EmbeddingHost)
	assert.Equal(t, "nomic-embed-text", aiCfg.EmbeddingModel)

	chunking := cfg.ChunkConfig()
	assert.Equal(t, 100, chunking.Size)
	assert.Equal(t, 20, chunking.Overlap)

	policy := cfg.RetryPolicy()
	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, policy.BaseDelay)
	assert.Equal(t, 2*time.Minute, policy.CallTimeout)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "digest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunk_size: [oops"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DIGEST_DATA_DIR", "/tmp/override")
	t.Setenv("DIGEST_TOP_K", "9")
	t.Setenv("DIGEST_HOST", "http://shared:8080")
	t.Setenv("DIGEST_GENERATION_MODEL", "llama3")
	t.Setenv("DIGEST_CALL_TIMEOUT", "5s")
	t.Setenv("DIGEST_STALE_READS", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override", cfg.DataDir)
	assert.Equal(t, 9, cfg.TopK)
	assert.Equal(t, "http://shared:8080", cfg.Provider.EmbeddingHost)
	assert.Equal(t, "http://shared:8080", cfg.Provider.GenerationHost)
	assert.Equal(t, "llama3", cfg.Provider.GenerationModel)
	assert.Equal(t, 5*time.Second, cfg.Provider.CallTimeout)
	assert.False(t, cfg.StaleReads)
}

func TestLoad_InvalidEnvValue(t *testing.T) {
	t.Setenv("DIGEST_CHUNK_SIZE", "large")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DIGEST_CHUNK_SIZE")
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.TopK = 8
	cfg.Provider.CallTimeout = 90 * time.Second

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"overlap not below size", func(c *Config) { c.ChunkOverlap = c.ChunkSize }},
		{"zero retry limit", func(c *Config) { c.RetryLimit = 0 }},
		{"unknown provider", func(c *Config) { c.Provider.Type = "bedrock" }},
		{"zero top k", func(c *Config) { c.TopK = 0 }},
		{"zero context length", func(c *Config) { c.MaxContextLength = 0 }},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"bad log level", func(c *Config) { c.LogLevel = "chatty" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	for input, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"Warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		level, err := ParseLogLevel(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, level, input)
	}

	_, err := ParseLogLevel("trace")
	assert.Error(t, err)
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("record analyzed", "record", 7)

	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, stderr.String(), "record analyzed")
	assert.Contains(t, file.String(), `"msg":"record analyzed"`)
	assert.Contains(t, file.String(), `"record":7`)
}

func TestSetupLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "digest.log")
	logger, cleanup := SetupLogger(path, slog.LevelInfo)
	logger.Info("hello")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
