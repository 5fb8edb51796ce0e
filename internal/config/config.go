// Package config provides configuration loading and structs for the kotae server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chat      ChatConfig      `yaml:"chat"`
	Vector    VectorConfig    `yaml:"vector"`
	Index     IndexConfig     `yaml:"index"`
	Storage   StorageConfig   `yaml:"storage"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// CorpusConfig selects where documentation is read from.
type CorpusConfig struct {
	// Source is "fs" or "s3".
	Source    string   `yaml:"source"`
	Root      string   `yaml:"root"`
	Extension string   `yaml:"extension"`
	S3        S3Config `yaml:"s3"`
}

// S3Config locates the corpus in a bucket.
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// EmbeddingConfig holds embedding service settings. The API key is read from the
// environment variable named by APIKeyEnv.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	APIKeyEnv      string `yaml:"api_key_env"`
	Dimensions     int    `yaml:"dimensions"`
	SendDimensions bool   `yaml:"send_dimensions"`
	BatchSize      int    `yaml:"batch_size"`
	MaxRetries     int    `yaml:"max_retries"`
	TimeoutSecs    int    `yaml:"timeout_secs"`
	CacheSize      int    `yaml:"cache_size"`
	CacheTTLSecs   int    `yaml:"cache_ttl_secs"`
}

// ChatConfig holds completion service settings.
type ChatConfig struct {
	Provider    string   `yaml:"provider"`
	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	TimeoutSecs int      `yaml:"timeout_secs"`
}

// VectorConfig selects the vector index backend.
type VectorConfig struct {
	Backend     string `yaml:"backend"`
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	DSNEnv      string `yaml:"dsn_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// IndexConfig holds indexing and retrieval settings.
type IndexConfig struct {
	Collection      string `yaml:"collection"`
	Distance        string `yaml:"distance"`
	Concurrency     int    `yaml:"concurrency"`
	TopK            int    `yaml:"top_k"`
	RebuildOnStart  *bool  `yaml:"rebuild_on_start"`
	Watch           bool   `yaml:"watch"`
	WatchDebounceMs int    `yaml:"watch_debounce_ms"`
	// Schedule is a cron expression; empty disables scheduled rebuilds.
	Schedule string `yaml:"schedule"`
}

// RebuildOnStartOrDefault returns whether to rebuild at startup; defaults to true when unset.
func (i *IndexConfig) RebuildOnStartOrDefault() bool {
	if i.RebuildOnStart != nil {
		return *i.RebuildOnStart
	}
	return true
}

// StorageConfig holds the index-run ledger location.
type StorageConfig struct {
	LedgerPath string `yaml:"ledger_path"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// A .env file next to the config is loaded into the environment first, if present.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	if err := LoadDotEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}

	ApplyDefaults(&cfg)

	if cfg.Corpus.Source == SourceFS {
		cfg.Corpus.Root = expandPath(cfg.Corpus.Root, configDir)
	}
	cfg.Storage.LedgerPath = expandPath(cfg.Storage.LedgerPath, configDir)

	return &cfg, nil
}

// LoadDotEnv loads variables from path into the environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Secret returns the value of the environment variable named by env, or "" when env is empty.
func Secret(env string) string {
	if env == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(env))
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
