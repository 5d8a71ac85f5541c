// Package config provides configuration loading and structs for schemarag.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override (e.g. SCHEMARAG_LLM_API_KEY).
const EnvPrefix = "SCHEMARAG_"

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug" env:"DEBUG"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Schema     SchemaConfig     `yaml:"schema"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Index      IndexConfig      `yaml:"index"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Generation GenerationConfig `yaml:"generation"`
	Database   DatabaseConfig   `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host" env:"SERVER_HOST"`
	Port int    `yaml:"port" env:"SERVER_PORT"`
}

// StorageConfig holds paths for the SQLite store and the persisted semantic index.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path" env:"STORAGE_DATABASE_PATH"`
	IndexPath    string `yaml:"index_path" env:"STORAGE_INDEX_PATH"`
}

// SchemaConfig points at the schema description file (JSON or YAML).
type SchemaConfig struct {
	Path string `yaml:"path" env:"SCHEMA_PATH"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" env:"EMBEDDING_PROVIDER"` // hashing, onnx, http
	Model      string `yaml:"model" env:"EMBEDDING_MODEL"`
	ModelPath  string `yaml:"model_path" env:"EMBEDDING_MODEL_PATH"`
	Dimensions int    `yaml:"dimensions" env:"EMBEDDING_DIMENSIONS"`
	MaxTokens  int    `yaml:"max_tokens" env:"EMBEDDING_MAX_TOKENS"`
	CacheSize  int    `yaml:"cache_size" env:"EMBEDDING_CACHE_SIZE"`
	BaseURL    string `yaml:"base_url" env:"EMBEDDING_BASE_URL"`
	APIKey     string `yaml:"api_key" env:"EMBEDDING_API_KEY"`
	Workers    int    `yaml:"workers" env:"EMBEDDING_WORKERS"`
}

// IndexConfig holds semantic index settings.
type IndexConfig struct {
	Metric string `yaml:"metric" env:"INDEX_METRIC"` // l2, cosine
}

// RetrievalConfig holds the retrieval policy.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k" env:"RETRIEVAL_TOP_K"`
	MaxDistance    float64 `yaml:"max_distance" env:"RETRIEVAL_MAX_DISTANCE"`
	KeywordWeight  float64 `yaml:"keyword_weight" env:"RETRIEVAL_KEYWORD_WEIGHT"`
	SemanticWeight float64 `yaml:"semantic_weight" env:"RETRIEVAL_SEMANTIC_WEIGHT"`
	TableBoost     float64 `yaml:"table_boost" env:"RETRIEVAL_TABLE_BOOST"`
	Fuzzy          bool    `yaml:"fuzzy" env:"RETRIEVAL_FUZZY"`
}

// GenerationConfig holds the chat-completions endpoint settings.
type GenerationConfig struct {
	BaseURL     string        `yaml:"base_url" env:"LLM_BASE_URL"`
	APIKey      string        `yaml:"api_key" env:"LLM_API_KEY"`
	Model       string        `yaml:"model" env:"LLM_MODEL"`
	Temperature float64       `yaml:"temperature" env:"LLM_TEMPERATURE"`
	MaxTokens   int           `yaml:"max_tokens" env:"LLM_MAX_TOKENS"`
	TopP        float64       `yaml:"top_p" env:"LLM_TOP_P"`
	Timeout     time.Duration `yaml:"timeout" env:"LLM_TIMEOUT"`
	MaxAttempts int           `yaml:"max_attempts" env:"LLM_MAX_ATTEMPTS"`
	Dialect     string        `yaml:"dialect" env:"LLM_DIALECT"`
}

// DatabaseConfig describes the target database for extraction and execution.
type DatabaseConfig struct {
	Driver   string        `yaml:"driver" env:"DB_DRIVER"` // mysql, sqlite3
	Host     string        `yaml:"host" env:"DB_HOST"`
	Port     int           `yaml:"port" env:"DB_PORT"`
	User     string        `yaml:"user" env:"DB_USER"`
	Password string        `yaml:"password" env:"DB_PASSWORD"`
	Name     string        `yaml:"name" env:"DB_NAME"`
	Path     string        `yaml:"path" env:"DB_PATH"`
	MaxRows  int           `yaml:"max_rows" env:"DB_MAX_ROWS"`
	Timeout  time.Duration `yaml:"timeout" env:"DB_TIMEOUT"`
}

// Load reads and parses the config file at path, applies environment overrides,
// applies defaults and expands paths.
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
	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}

	ApplyDefaults(&cfg)
	expandPaths(&cfg, filepath.Dir(path))
	return &cfg, nil
}

// LoadOrDefault loads path when it exists; otherwise it returns defaults plus environment
// overrides with paths relative to the working directory.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	var cfg Config
	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	expandPaths(&cfg, wd)
	return &cfg, nil
}

// ApplyEnv overrides fields from SCHEMARAG_* environment variables. GROQ_API_KEY is
// honoured when no generation API key is configured.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment variables: %w", err)
	}
	if cfg.Generation.APIKey == "" {
		cfg.Generation.APIKey = os.Getenv("GROQ_API_KEY")
	}
	return nil
}

// Save writes the config to path. Secrets are left out; they come from the environment.
func Save(path string, cfg *Config) error {
	out := *cfg
	out.Embedding.APIKey = ""
	out.Generation.APIKey = ""
	out.Database.Password = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func expandPaths(cfg *Config, configDir string) {
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	if cfg.Schema.Path != "" {
		cfg.Schema.Path = expandPath(cfg.Schema.Path, configDir)
	}
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Database.Path != "" {
		cfg.Database.Path = expandPath(cfg.Database.Path, configDir)
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
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
