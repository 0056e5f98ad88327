package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the retrieval service.
type Config struct {
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Search    SearchConfig    `yaml:"search"`
	Build     BuildConfig     `yaml:"build"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ChunkingConfig holds paragraph chunking configuration.
type ChunkingConfig struct {
	TargetChars int     `yaml:"target_chars"`
	MinChars    int     `yaml:"min_chars"`
	Overlap     float64 `yaml:"overlap"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // "local", "mock"
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

// RerankConfig holds cross-encoder reranking configuration.
type RerankConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Provider   string `yaml:"provider"` // "local", "lexical"
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	Candidates int    `yaml:"candidates"`
}

// SearchConfig holds result shaping configuration.
type SearchConfig struct {
	TopK         int `yaml:"top_k"`
	MaxTopK      int `yaml:"max_top_k"`
	PreviewChars int `yaml:"preview_chars"`
}

// BuildConfig holds index build configuration.
type BuildConfig struct {
	Pages     []string `yaml:"pages"` // glob patterns for page JSONL files
	IndexPath string   `yaml:"index_path"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	ListenAddr    string `yaml:"listen_addr"`
	MaxQueryChars int    `yaml:"max_query_chars"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Chunking: ChunkingConfig{
			TargetChars: 1400,
			MinChars:    1100,
			Overlap:     0.15,
		},
		Embedding: EmbeddingConfig{
			Provider:  "local",
			Model:     "intfloat/e5-large-v2",
			BaseURL:   "http://127.0.0.1:11434/v1",
			Dimension: 1024,
			BatchSize: 16,
		},
		Rerank: RerankConfig{
			Enabled:    true,
			Provider:   "local",
			Model:      "BAAI/bge-reranker-base",
			BaseURL:    "http://127.0.0.1:8081",
			Candidates: 50,
		},
		Search: SearchConfig{
			TopK:         5,
			MaxTopK:      10,
			PreviewChars: 240,
		},
		Build: BuildConfig{
			Pages:     []string{"manuscript/*.jsonl"},
			IndexPath: IndexDBPath("."),
		},
		Server: ServerConfig{
			ListenAddr:    "127.0.0.1:8000",
			MaxQueryChars: 600,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, filling unset fields with
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for
// symphonia.yaml, then .symphonia/config.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "symphonia.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".symphonia", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// IndexDBPath returns the path to the index database.
func IndexDBPath(dir string) string {
	return filepath.Join(dir, ".symphonia", "index.db")
}

// EnsureDataDir ensures the .symphonia directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".symphonia"), 0755)
}
