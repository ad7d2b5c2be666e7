package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/digest/ai"
	"github.com/poiesic/digest/chunker"
	"github.com/poiesic/digest/retry"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DIGEST_"

// ProviderConfig selects and configures the model provider.
type ProviderConfig struct {
	Type            string        `yaml:"type"`
	EmbeddingHost   string        `yaml:"embedding_host"`
	GenerationHost  string        `yaml:"generation_host"`
	EmbeddingModel  string        `yaml:"embedding_model"`
	GenerationModel string        `yaml:"generation_model"`
	APIKeyEnv       string        `yaml:"api_key_env"`
	CallTimeout     time.Duration `yaml:"call_timeout"`
}

// Config is the root application configuration.
type Config struct {
	// Chunking
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`

	// Question answering
	TopK             int  `yaml:"top_k"`
	MaxContextLength int  `yaml:"max_context_length"`
	StaleReads       bool `yaml:"stale_reads"`

	// Provider retries
	RetryLimit       int           `yaml:"retry_limit"`
	RetryBackoffBase time.Duration `yaml:"retry_backoff_base"`

	Provider ProviderConfig `yaml:"provider"`

	// Workers
	PoolSize       int `yaml:"pool_size"`
	QueueSize      int `yaml:"queue_size"`
	EmbedBatchSize int `yaml:"embed_batch_size"`

	// Storage and logging
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	chunking := chunker.DefaultConfig()
	policy := retry.DefaultPolicy()
	provider := ai.DefaultConfig()
	return &Config{
		ChunkSize:        chunking.Size,
		ChunkOverlap:     chunking.Overlap,
		TopK:             5,
		MaxContextLength: 4000,
		StaleReads:       true,
		RetryLimit:       policy.MaxAttempts,
		RetryBackoffBase: policy.BaseDelay,
		Provider: ProviderConfig{
			Type:            provider.Provider,
			EmbeddingHost:   provider.EmbeddingHost,
			GenerationHost:  provider.GenerationHost,
			EmbeddingModel:  provider.EmbeddingModel,
			GenerationModel: provider.GenerationModel,
			APIKeyEnv:       provider.APIKeyEnv,
			CallTimeout:     provider.RequestTimeout,
		},
		QueueSize:      256,
		EmbedBatchSize: 32,
		DataDir:        "digest.db",
		LogLevel:       "info",
	}
}

// LoadDotEnv loads a .env file from the working directory if one exists.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Load reads a config from path and applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}
	applyDefaults(cfg)
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./digest.yaml first, then ~/.config/digest/config.yaml.
// Returns the path that was read, or "" when only defaults apply.
func LoadDefault() (*Config, string, error) {
	candidates := []string{"digest.yaml"}
	if userPath, err := DefaultUserConfigPath(); err == nil {
		candidates = append(candidates, userPath)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			cfg, err := Load(path)
			return cfg, path, err
		}
	}
	cfg, err := Load("")
	return cfg, "", err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultUserConfigPath returns ~/.config/digest/config.yaml.
func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "digest", "config.yaml"), nil
}

// Validate checks that the derived component configurations are usable.
func (c *Config) Validate() error {
	if err := c.ChunkConfig().Validate(); err != nil {
		return err
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		return err
	}
	if err := c.AIConfig().Validate(); err != nil {
		return err
	}
	if c.TopK <= 0 {
		return errors.New("config: top_k must be positive")
	}
	if c.MaxContextLength <= 0 {
		return errors.New("config: max_context_length must be positive")
	}
	if c.DataDir == "" {
		return errors.New("config: data_dir is required")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ChunkConfig returns the chunker settings.
func (c *Config) ChunkConfig() chunker.Config {
	return chunker.Config{Size: c.ChunkSize, Overlap: c.ChunkOverlap}
}

// RetryPolicy returns the provider retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = c.RetryLimit
	policy.BaseDelay = c.RetryBackoffBase
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = policy.BaseDelay
	}
	policy.CallTimeout = c.Provider.CallTimeout
	return policy
}

// AIConfig returns the provider settings.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithProvider(c.Provider.Type),
		ai.WithEmbeddingHost(c.Provider.EmbeddingHost),
		ai.WithGenerationHost(c.Provider.GenerationHost),
		ai.WithEmbeddingModel(c.Provider.EmbeddingModel),
		ai.WithGenerationModel(c.Provider.GenerationModel),
		ai.WithAPIKeyEnv(c.Provider.APIKeyEnv),
		ai.WithRequestTimeout(c.Provider.CallTimeout),
	)
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() slog.Level {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLogLevel maps debug, info, warn and error to slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", s)
	}
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.TopK == 0 {
		cfg.TopK = def.TopK
	}
	if cfg.MaxContextLength == 0 {
		cfg.MaxContextLength = def.MaxContextLength
	}
	if cfg.RetryLimit == 0 {
		cfg.RetryLimit = def.RetryLimit
	}
	if cfg.RetryBackoffBase == 0 {
		cfg.RetryBackoffBase = def.RetryBackoffBase
	}
	if cfg.Provider.Type == "" {
		cfg.Provider.Type = def.Provider.Type
	}
	if cfg.Provider.GenerationHost == "" {
		cfg.Provider.GenerationHost = cfg.Provider.EmbeddingHost
	}
	if cfg.Provider.EmbeddingHost == "" {
		cfg.Provider.EmbeddingHost = cfg.Provider.GenerationHost
	}
	if cfg.Provider.EmbeddingHost == "" {
		cfg.Provider.EmbeddingHost = def.Provider.EmbeddingHost
		cfg.Provider.GenerationHost = def.Provider.GenerationHost
	}
	if cfg.Provider.CallTimeout == 0 {
		cfg.Provider.CallTimeout = def.Provider.CallTimeout
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.EmbedBatchSize == 0 {
		cfg.EmbedBatchSize = def.EmbedBatchSize
	}
	if cfg.DataDir == "" {
		cfg.DataDir = def.DataDir
	}
}

// applyEnv overrides file values with DIGEST_* environment variables.
func applyEnv(cfg *Config) error {
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)

	cfg.Provider.Type = getEnv("PROVIDER", cfg.Provider.Type)
	if host := getEnv("HOST", ""); host != "" {
		cfg.Provider.EmbeddingHost = host
		cfg.Provider.GenerationHost = host
	}
	cfg.Provider.EmbeddingHost = getEnv("EMBEDDING_HOST", cfg.Provider.EmbeddingHost)
	cfg.Provider.GenerationHost = getEnv("GENERATION_HOST", cfg.Provider.GenerationHost)
	cfg.Provider.EmbeddingModel = getEnv("EMBEDDING_MODEL", cfg.Provider.EmbeddingModel)
	cfg.Provider.GenerationModel = getEnv("GENERATION_MODEL", cfg.Provider.GenerationModel)
	cfg.Provider.APIKeyEnv = getEnv("API_KEY_ENV", cfg.Provider.APIKeyEnv)

	ints := map[string]*int{
		"CHUNK_SIZE":         &cfg.ChunkSize,
		"CHUNK_OVERLAP":      &cfg.ChunkOverlap,
		"TOP_K":              &cfg.TopK,
		"MAX_CONTEXT_LENGTH": &cfg.MaxContextLength,
		"RETRY_LIMIT":        &cfg.RetryLimit,
		"POOL_SIZE":          &cfg.PoolSize,
		"QUEUE_SIZE":         &cfg.QueueSize,
		"EMBED_BATCH_SIZE":   &cfg.EmbedBatchSize,
	}
	for key, dst := range ints {
		val := getEnv(key, "")
		if val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"RETRY_BACKOFF_BASE": &cfg.RetryBackoffBase,
		"CALL_TIMEOUT":       &cfg.Provider.CallTimeout,
	}
	for key, dst := range durations {
		val := getEnv(key, "")
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
	}

	if val := getEnv("STALE_READS", ""); val != "" {
		cfg.StaleReads = val == "true" || val == "1"
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		return val
	}
	return defaultVal
}
