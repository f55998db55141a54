package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "data", cfg.Paths.DataDir)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)

	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, "sqlite", cfg.Search.LexicalBackend)
	assert.Equal(t, 450, cfg.Search.ChunkSize)
	assert.Equal(t, 80, cfg.Search.ChunkOverlap)
	assert.Equal(t, 5, cfg.Search.DefaultK)

	assert.Equal(t, "auto", cfg.Embeddings.Provider)
	assert.Equal(t, 384, cfg.Embeddings.Dimensions)

	assert.Equal(t, "lexical", cfg.Rerank.Scorer)
	assert.Equal(t, int64(2), cfg.Rerank.Permits)
	assert.Equal(t, 100, cfg.Rerank.MaxDocuments)

	require.NoError(t, cfg.Validate())
}

func TestLoad_NoConfigFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 9090
search:
  rrf_constant: 30
  lexical_backend: bleve
rerank:
  permits: 4
ingest:
  dataset_names: [electronics]
  dataset_urls: [https://example.com/electronics.json.gz]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Search.RRFConstant)
	assert.Equal(t, "bleve", cfg.Search.LexicalBackend)
	assert.Equal(t, int64(4), cfg.Rerank.Permits)
	assert.Equal(t, []string{"electronics"}, cfg.Ingest.DatasetNames)

	// Untouched values keep defaults.
	assert.Equal(t, 450, cfg.Search.ChunkSize)
	assert.Equal(t, "lexical", cfg.Rerank.Scorer)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "server:\n  port: 9090\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yaml), 0o644))

	t.Setenv(EnvPrefix+"PORT", "7070")
	t.Setenv(EnvPrefix+"RRF_CONSTANT", "10")
	t.Setenv(EnvPrefix+"EMBEDDING_PROVIDER", "static")
	t.Setenv(EnvPrefix+"DATASET_NAMES", "a, b")
	t.Setenv(EnvPrefix+"DATASET_URLS", "http://x/a.gz,http://x/b.gz")
	t.Setenv(EnvPrefix+"LOG_FILE", "/tmp/hybris.log")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/tmp/hybris.log", cfg.Server.LogFile)
	assert.Equal(t, 10, cfg.Search.RRFConstant)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, []string{"a", "b"}, cfg.Ingest.DatasetNames)
	assert.Equal(t, []string{"http://x/a.gz", "http://x/b.gz"}, cfg.Ingest.DatasetURLs)
}

func TestLoad_InvalidEnvValueIgnored(t *testing.T) {
	t.Setenv(EnvPrefix+"PORT", "not-a-number")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_MalformedYAMLFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("server: [not a map"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "verbose" }},
		{"zero rrf constant", func(c *Config) { c.Search.RRFConstant = 0 }},
		{"unknown lexical backend", func(c *Config) { c.Search.LexicalBackend = "elastic" }},
		{"overlap >= chunk size", func(c *Config) { c.Search.ChunkOverlap = c.Search.ChunkSize }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "openai" }},
		{"zero dimensions", func(c *Config) { c.Embeddings.Dimensions = 0 }},
		{"unknown scorer", func(c *Config) { c.Rerank.Scorer = "neural" }},
		{"zero permits", func(c *Config) { c.Rerank.Permits = 0 }},
		{"zero max documents", func(c *Config) { c.Rerank.MaxDocuments = 0 }},
		{"mismatched dataset lists", func(c *Config) {
			c.Ingest.DatasetNames = []string{"a", "b"}
			c.Ingest.DatasetURLs = []string{"http://x/a.gz"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)

	cfg := NewConfig()
	cfg.Server.Port = 9999
	cfg.Ingest.DatasetNames = []string{"cameras"}
	cfg.Ingest.DatasetURLs = []string{"https://example.com/cameras.json.gz"}
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 9999, loaded.Server.Port)
	assert.Equal(t, []string{"cameras"}, loaded.Ingest.DatasetNames)
}

func TestDerivedPaths(t *testing.T) {
	cfg := NewConfig()
	cfg.Paths.DataDir = "/var/lib/hybris"

	assert.Equal(t, filepath.Join("/var/lib/hybris", "hybris.db"), cfg.DatabasePath())
	assert.Equal(t, filepath.Join("/var/lib/hybris", "vectors.hnsw"), cfg.VectorIndexPath())
}

func TestBackupConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)

	// Nothing to back up.
	backup, err := BackupConfigFile(path)
	require.NoError(t, err)
	assert.Empty(t, backup)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 1234\n"), 0o644))
	backup, err = BackupConfigFile(path)
	require.NoError(t, err)
	require.NotEmpty(t, backup)

	data, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1234")

	backups, err := ListConfigBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}
