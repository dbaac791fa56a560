package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := LoadDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100, cfg.Pipeline.BatchSize)
	assert.True(t, cfg.Pipeline.RetryEnabled)
	assert.Equal(t, SinkMemory, cfg.Pipeline.Sink)
	assert.Empty(t, cfg.Storage.DataDir)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docdb.yaml")
	yamlBody := `
storage:
  data_dir: /var/lib/docdb
server:
  address: ":9000"
pipeline:
  batch_size: 25
  retry_enabled: false
  sink: dir
  sink_path: /tmp/events
embedding:
  url: http://localhost:11434/v1
  timeout: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	t.Setenv("DOCDB_ADDRESS", ":9100")
	t.Setenv("DOCDB_EMBEDDING_TIMEOUT", "12")
	t.Setenv("DOCDB_PIPELINE_RETRY", "yes")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/var/lib/docdb", cfg.Storage.DataDir)
	assert.Equal(t, ":9100", cfg.Server.Address)
	assert.Equal(t, 25, cfg.Pipeline.BatchSize)
	assert.True(t, cfg.Pipeline.RetryEnabled)
	assert.Equal(t, SinkDir, cfg.Pipeline.Sink)
	assert.Equal(t, 12*time.Second, cfg.Embedding.Timeout)
	// untouched keys keep their defaults
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty address", func(c *Config) { c.Server.Address = "" }},
		{"zero batch", func(c *Config) { c.Pipeline.BatchSize = 0 }},
		{"unknown sink", func(c *Config) { c.Pipeline.Sink = "s3" }},
		{"badger without path", func(c *Config) { c.Pipeline.Sink = SinkBadger }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
		{"url without model", func(c *Config) { c.Embedding.URL = "http://x"; c.Embedding.Model = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadDefaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestStringHidesKey(t *testing.T) {
	cfg := LoadDefaults()
	cfg.Embedding.APIKey = "sk-secret"
	assert.NotContains(t, cfg.String(), "sk-secret")
}
