package config

import "time"

// Defaults for the generation endpoint (Groq's OpenAI-compatible API).
const (
	DefaultGenerationBaseURL = "https://api.groq.com/openai/v1"
	DefaultGenerationModel   = "meta-llama/llama-4-maverick-17b-128e-instruct"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/schemarag.db"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "./data/index"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "hashing"
	}
	if cfg.Embedding.Model == "" && cfg.Embedding.Provider == "onnx" {
		cfg.Embedding.Model = "all-MiniLM-L6-v2"
	}
	if cfg.Embedding.ModelPath == "" && cfg.Embedding.Provider == "onnx" {
		cfg.Embedding.ModelPath = "./data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Workers == 0 {
		cfg.Embedding.Workers = 1
	}
	if cfg.Index.Metric == "" {
		cfg.Index.Metric = "l2"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Retrieval.KeywordWeight > 0 && cfg.Retrieval.SemanticWeight == 0 {
		cfg.Retrieval.SemanticWeight = 1 - cfg.Retrieval.KeywordWeight
	}
	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = DefaultGenerationBaseURL
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = DefaultGenerationModel
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = 0.1
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 1024
	}
	if cfg.Generation.TopP == 0 {
		cfg.Generation.TopP = 1
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = 60 * time.Second
	}
	if cfg.Generation.MaxAttempts == 0 {
		cfg.Generation.MaxAttempts = 1
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "mysql"
	}
	if cfg.Generation.Dialect == "" {
		if cfg.Database.Driver == "sqlite3" {
			cfg.Generation.Dialect = "SQLite"
		} else {
			cfg.Generation.Dialect = "MySQL"
		}
	}
	if cfg.Database.Port == 0 && cfg.Database.Driver == "mysql" {
		cfg.Database.Port = 3306
	}
	if cfg.Database.Host == "" && cfg.Database.Driver == "mysql" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.MaxRows == 0 {
		cfg.Database.MaxRows = 10000
	}
	if cfg.Database.Timeout == 0 {
		cfg.Database.Timeout = 30 * time.Second
	}
}
