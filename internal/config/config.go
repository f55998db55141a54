package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the per-directory config file.
const ConfigFileName = "hybris.yaml"

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "HYBRIS_"

// Config is the complete service configuration.
type Config struct {
	Paths      PathsConfig      `yaml:"paths"`
	Server     ServerConfig     `yaml:"server"`
	Search     SearchConfig     `yaml:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Rerank     RerankConfig     `yaml:"rerank"`
	Ingest     IngestConfig     `yaml:"ingest"`
}

// PathsConfig locates on-disk state.
type PathsConfig struct {
	// DataDir holds the SQLite database, lexical index, and vector
	// index sidecar. Default: ./data
	DataDir string `yaml:"data_dir"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	LogLevel       string        `yaml:"log_level"`
	LogFile        string        `yaml:"log_file"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// SearchConfig configures retrieval and fusion.
type SearchConfig struct {
	// RRFConstant is the rank fusion smoothing parameter (k).
	// Default: 60. Higher values reduce the impact of rank differences.
	RRFConstant int `yaml:"rrf_constant"`

	// LexicalBackend selects the lexical index backend.
	// Options: "sqlite" (default) or "bleve".
	LexicalBackend string `yaml:"lexical_backend"`

	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	DefaultK     int `yaml:"default_k"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama", "static", or "auto" (ollama with a static
	// fallback when unreachable).
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	OllamaHost string `yaml:"ollama_host"`
	CacheSize  int    `yaml:"cache_size"`
}

// RerankConfig configures the reranker gate and its scorer.
type RerankConfig struct {
	// Scorer is "lexical" (in-process, default) or "http" (cross-encoder
	// sidecar).
	Scorer       string        `yaml:"scorer"`
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	Timeout      time.Duration `yaml:"timeout"`
	Permits      int64         `yaml:"permits"`
	MaxDocuments int           `yaml:"max_documents"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	// DatasetNames and DatasetURLs are parallel lists of remote
	// gzipped JSONL datasets.
	DatasetNames []string `yaml:"dataset_names"`
	DatasetURLs  []string `yaml:"dataset_urls"`

	// LocalDataPath, when set, switches ingestion to a local directory
	// walk instead of remote downloads.
	LocalDataPath string `yaml:"local_data_path"`

	MaxItemsPerDataset int           `yaml:"max_items_per_dataset"`
	Workers            int           `yaml:"workers"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
}

// NewConfig returns a Config with all defaults applied.
func NewConfig() *Config {
	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}
	return &Config{
		Paths: PathsConfig{
			DataDir: "data",
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			LogLevel:       "info",
			RequestTimeout: 30 * time.Second,
		},
		Search: SearchConfig{
			RRFConstant:    60,
			LexicalBackend: "sqlite",
			ChunkSize:      450,
			ChunkOverlap:   80,
			DefaultK:       5,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "auto",
			Model:      "nomic-embed-text",
			Dimensions: 384,
			BatchSize:  32,
			OllamaHost: "http://localhost:11434",
			CacheSize:  1000,
		},
		Rerank: RerankConfig{
			Scorer:       "lexical",
			Endpoint:     "http://localhost:9659",
			Model:        "cross-encoder-small",
			Timeout:      30 * time.Second,
			Permits:      2,
			MaxDocuments: 100,
		},
		Ingest: IngestConfig{
			MaxItemsPerDataset: 1000,
			Workers:            workers,
			RequestTimeout:     5 * time.Minute,
		},
	}
}

// Load builds the effective configuration for dir: defaults, then the
// directory's hybris.yaml if present, then HYBRIS_* environment
// overrides (a .env file in the working directory is honored), then
// validation.
func Load(dir string) (*Config, error) {
	_ = godotenv.Load()

	cfg := NewConfig()
	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); err != nil {
		// No config file is fine, defaults apply.
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}

	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.LogFile != "" {
		c.Server.LogFile = other.Server.LogFile
	}
	if other.Server.RequestTimeout != 0 {
		c.Server.RequestTimeout = other.Server.RequestTimeout
	}

	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.LexicalBackend != "" {
		c.Search.LexicalBackend = other.Search.LexicalBackend
	}
	if other.Search.ChunkSize != 0 {
		c.Search.ChunkSize = other.Search.ChunkSize
	}
	if other.Search.ChunkOverlap != 0 {
		c.Search.ChunkOverlap = other.Search.ChunkOverlap
	}
	if other.Search.DefaultK != 0 {
		c.Search.DefaultK = other.Search.DefaultK
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	if other.Rerank.Scorer != "" {
		c.Rerank.Scorer = other.Rerank.Scorer
	}
	if other.Rerank.Endpoint != "" {
		c.Rerank.Endpoint = other.Rerank.Endpoint
	}
	if other.Rerank.Model != "" {
		c.Rerank.Model = other.Rerank.Model
	}
	if other.Rerank.Timeout != 0 {
		c.Rerank.Timeout = other.Rerank.Timeout
	}
	if other.Rerank.Permits != 0 {
		c.Rerank.Permits = other.Rerank.Permits
	}
	if other.Rerank.MaxDocuments != 0 {
		c.Rerank.MaxDocuments = other.Rerank.MaxDocuments
	}

	if len(other.Ingest.DatasetNames) > 0 {
		c.Ingest.DatasetNames = other.Ingest.DatasetNames
	}
	if len(other.Ingest.DatasetURLs) > 0 {
		c.Ingest.DatasetURLs = other.Ingest.DatasetURLs
	}
	if other.Ingest.LocalDataPath != "" {
		c.Ingest.LocalDataPath = other.Ingest.LocalDataPath
	}
	if other.Ingest.MaxItemsPerDataset != 0 {
		c.Ingest.MaxItemsPerDataset = other.Ingest.MaxItemsPerDataset
	}
	if other.Ingest.Workers != 0 {
		c.Ingest.Workers = other.Ingest.Workers
	}
	if other.Ingest.RequestTimeout != 0 {
		c.Ingest.RequestTimeout = other.Ingest.RequestTimeout
	}
}

// applyEnvOverrides applies HYBRIS_* environment variable overrides.
// Env vars take precedence over both defaults and the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvPrefix + "DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv(EnvPrefix + "HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv(EnvPrefix + "PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FILE"); v != "" {
		c.Server.LogFile = v
	}
	if v := os.Getenv(EnvPrefix + "REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Server.RequestTimeout = d
		}
	}

	if v := os.Getenv(EnvPrefix + "RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv(EnvPrefix + "LEXICAL_BACKEND"); v != "" {
		c.Search.LexicalBackend = v
	}
	if v := os.Getenv(EnvPrefix + "CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.ChunkSize = n
		}
	}
	if v := os.Getenv(EnvPrefix + "CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Search.ChunkOverlap = n
		}
	}

	if v := os.Getenv(EnvPrefix + "EMBEDDING_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv(EnvPrefix + "EMBEDDING_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv(EnvPrefix + "EMBEDDING_DIM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.Dimensions = n
		}
	}
	if v := os.Getenv(EnvPrefix + "OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}

	if v := os.Getenv(EnvPrefix + "RERANK_SCORER"); v != "" {
		c.Rerank.Scorer = v
	}
	if v := os.Getenv(EnvPrefix + "RERANK_ENDPOINT"); v != "" {
		c.Rerank.Endpoint = v
	}
	if v := os.Getenv(EnvPrefix + "RERANK_PERMITS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Rerank.Permits = n
		}
	}
	if v := os.Getenv(EnvPrefix + "RERANK_MAX_DOCUMENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Rerank.MaxDocuments = n
		}
	}

	if v := os.Getenv(EnvPrefix + "DATASET_NAMES"); v != "" {
		c.Ingest.DatasetNames = splitList(v)
	}
	if v := os.Getenv(EnvPrefix + "DATASET_URLS"); v != "" {
		c.Ingest.DatasetURLs = splitList(v)
	}
	if v := os.Getenv(EnvPrefix + "LOCAL_DATA_PATH"); v != "" {
		c.Ingest.LocalDataPath = v
	}
	if v := os.Getenv(EnvPrefix + "MAX_ITEMS_PER_DATASET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Ingest.MaxItemsPerDataset = n
		}
	}
	if v := os.Getenv(EnvPrefix + "INGEST_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Ingest.Workers = n
		}
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the final configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	if c.Search.RRFConstant < 1 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	validBackends := map[string]bool{"sqlite": true, "bleve": true}
	if !validBackends[strings.ToLower(c.Search.LexicalBackend)] {
		return fmt.Errorf("search.lexical_backend must be 'sqlite' or 'bleve', got %s", c.Search.LexicalBackend)
	}
	if c.Search.ChunkSize < 1 {
		return fmt.Errorf("search.chunk_size must be positive, got %d", c.Search.ChunkSize)
	}
	if c.Search.ChunkOverlap < 0 {
		return fmt.Errorf("search.chunk_overlap must be non-negative, got %d", c.Search.ChunkOverlap)
	}
	if c.Search.ChunkOverlap >= c.Search.ChunkSize {
		return fmt.Errorf("search.chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Search.ChunkOverlap, c.Search.ChunkSize)
	}

	validProviders := map[string]bool{"ollama": true, "static": true, "auto": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'ollama', 'static', or 'auto', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 1 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}

	validScorers := map[string]bool{"lexical": true, "http": true}
	if !validScorers[strings.ToLower(c.Rerank.Scorer)] {
		return fmt.Errorf("rerank.scorer must be 'lexical' or 'http', got %s", c.Rerank.Scorer)
	}
	if c.Rerank.Permits < 1 {
		return fmt.Errorf("rerank.permits must be positive, got %d", c.Rerank.Permits)
	}
	if c.Rerank.MaxDocuments < 1 {
		return fmt.Errorf("rerank.max_documents must be positive, got %d", c.Rerank.MaxDocuments)
	}

	if len(c.Ingest.DatasetNames) != len(c.Ingest.DatasetURLs) {
		return fmt.Errorf("ingest.dataset_names (%d) and ingest.dataset_urls (%d) must have matching lengths",
			len(c.Ingest.DatasetNames), len(c.Ingest.DatasetURLs))
	}

	return nil
}

// DatabasePath returns the SQLite database location under DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "hybris.db")
}

// VectorIndexPath returns the vector index sidecar location.
func (c *Config) VectorIndexPath() string {
	return filepath.Join(c.Paths.DataDir, "vectors.hnsw")
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
