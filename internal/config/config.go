// Package config handles configuration loading and validation.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete configuration.
type Config struct {
	Embedding   EmbeddingConfig   `mapstructure:"embedding" yaml:"embedding"`
	Chunking    ChunkingConfig    `mapstructure:"chunking" yaml:"chunking"`
	VectorStore VectorStoreConfig `mapstructure:"vectorstore" yaml:"vectorstore"`
	Index       IndexConfig       `mapstructure:"index" yaml:"index"`
	Limits      LimitsConfig      `mapstructure:"limits" yaml:"limits"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider" yaml:"provider"`     // local, ollama, openai
	Model     string `mapstructure:"model" yaml:"model"`           // model name
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`     // API endpoint
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`       // API key
	BatchSize int    `mapstructure:"batch_size" yaml:"batch_size"` // documents per batch
}

// ChunkingConfig contains chunking strategy configuration.
type ChunkingConfig struct {
	Strategy string `mapstructure:"strategy" yaml:"strategy"` // window
	Lines    int    `mapstructure:"lines" yaml:"lines"`       // lines per chunk window
}

// VectorStoreConfig contains vector store configuration.
type VectorStoreConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"` // sqlitevec
}

// IndexConfig contains code indexing configuration.
type IndexConfig struct {
	Exclude []string `mapstructure:"exclude" yaml:"exclude"` // glob patterns to exclude
}

// LimitsConfig contains resource limits.
type LimitsConfig struct {
	MaxFileSize string        `mapstructure:"max_file_size" yaml:"max_file_size"` // e.g., "10MB"
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`             // indexing timeout
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:  "local",
			Model:     "hash-v1",
			BatchSize: 32,
		},
		Chunking: ChunkingConfig{
			Strategy: "window",
			Lines:    30,
		},
		VectorStore: VectorStoreConfig{
			Provider: "sqlitevec",
		},
		Index: IndexConfig{
			Exclude: []string{
				"**/vendor/**", "**/node_modules/**", "**/.git/**",
				"**/dist/**", "**/build/**", "**/target/**",
				"**/*.min.js", "**/*.min.css",
				"**/package-lock.json", "**/yarn.lock", "**/pnpm-lock.yaml",
				"**/go.sum", "**/Cargo.lock", "**/composer.lock",
			},
		},
		Limits: LimitsConfig{
			MaxFileSize: "10MB",
			Timeout:     30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DataDir returns the path to the .mcp-kb directory.
func DataDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".mcp-kb")
}

// ConfigPath returns the path to config.yaml.
func ConfigPath(projectRoot string) string {
	return filepath.Join(DataDir(projectRoot), "config.yaml")
}

// KBDBPath returns the path to the item index database.
func KBDBPath(projectRoot string) string {
	return filepath.Join(DataDir(projectRoot), "kb.db")
}

// VectorDBPath returns the path to the code search vector database.
func VectorDBPath(projectRoot string) string {
	return filepath.Join(DataDir(projectRoot), "vectors.db")
}

// Load loads configuration from file, falling back to defaults.
func Load(projectRoot string) (*Config, []string, error) {
	cfg := DefaultConfig()
	warnings := []string{}

	configPath := ConfigPath(projectRoot)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		warnings = append(warnings, "No config file found, using defaults")
		return cfg, warnings, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply defaults for missing values
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "local"
		warnings = append(warnings, "Using default embedding provider: local")
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}
	if cfg.Embedding.Provider == "ollama" && cfg.Embedding.Endpoint == "" {
		cfg.Embedding.Endpoint = "http://localhost:11434"
	}

	if cfg.Chunking.Strategy == "" {
		cfg.Chunking.Strategy = "window"
	}
	if cfg.Chunking.Lines == 0 {
		cfg.Chunking.Lines = 30
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "sqlitevec"
	}
	if cfg.Limits.MaxFileSize == "" {
		cfg.Limits.MaxFileSize = "10MB"
	}

	return cfg, warnings, nil
}

// Save saves configuration to file.
func Save(projectRoot string, cfg *Config) error {
	dataDir := DataDir(projectRoot)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(ConfigPath(projectRoot))
	v.SetConfigType("yaml")

	v.Set("embedding", cfg.Embedding)
	v.Set("chunking", cfg.Chunking)
	v.Set("vectorstore", cfg.VectorStore)
	v.Set("index", cfg.Index)
	v.Set("limits", cfg.Limits)
	v.Set("logging", cfg.Logging)

	return v.WriteConfig()
}

// Validate validates the configuration.
func Validate(cfg *Config) []error {
	var errs []error

	validEmbeddingProviders := map[string]bool{
		"local": true, "ollama": true, "openai": true,
	}
	if !validEmbeddingProviders[cfg.Embedding.Provider] {
		errs = append(errs, fmt.Errorf("invalid embedding provider: %s", cfg.Embedding.Provider))
	}

	if cfg.Chunking.Strategy != "" && cfg.Chunking.Strategy != "window" {
		errs = append(errs, fmt.Errorf("invalid chunking strategy: %s", cfg.Chunking.Strategy))
	}
	if cfg.Chunking.Lines < 0 {
		errs = append(errs, fmt.Errorf("invalid chunk lines: %d", cfg.Chunking.Lines))
	}

	if cfg.VectorStore.Provider != "" && cfg.VectorStore.Provider != "sqlitevec" {
		errs = append(errs, fmt.Errorf("invalid vector store: %s", cfg.VectorStore.Provider))
	}

	validLevels := map[string]bool{
		"": true, "debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Errorf("invalid log level: %s", cfg.Logging.Level))
	}

	return errs
}

// Hash returns a hash of configuration that affects indexing.
// Used for detecting when reindexing is needed.
func (c *Config) Hash() string {
	data := fmt.Sprintf("%s:%s:%s:%d",
		c.Embedding.Provider,
		c.Embedding.Model,
		c.Chunking.Strategy,
		c.Chunking.Lines,
	)
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

// Copy creates a deep copy of the config.
func (c *Config) Copy() *Config {
	copy := *c

	if c.Index.Exclude != nil {
		copy.Index.Exclude = make([]string, len(c.Index.Exclude))
		for i, v := range c.Index.Exclude {
			copy.Index.Exclude[i] = v
		}
	}

	return &copy
}
