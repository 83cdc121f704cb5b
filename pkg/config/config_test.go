package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "gpt-4o-mini", cfg.LLMModel)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
	assert.Equal(t, "localhost:8080", cfg.WeaviateHost)
	assert.Equal(t, "FilingChunk", cfg.WeaviateClass)
	assert.False(t, cfg.EnableWeaviate)
	assert.False(t, cfg.UseRedisSessions)
	assert.Equal(t, 512, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, 5*time.Minute, cfg.ProcessingTimeout)
	assert.Equal(t, 50*time.Millisecond, cfg.TokenDelay)
	assert.Equal(t, 10*time.Millisecond, cfg.SourceDelay)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CHUNK_SIZE", "1024")
	t.Setenv("LLM_BASE_URL", "http://llm.internal:8001/v1")
	t.Setenv("ENABLE_WEAVIATE", "true")
	t.Setenv("PROCESSING_TIMEOUT", "90s")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 1024, cfg.ChunkSize)
	assert.Equal(t, "http://llm.internal:8001/v1", cfg.LLMBaseURL)
	assert.True(t, cfg.EnableWeaviate)
	assert.Equal(t, 90*time.Second, cfg.ProcessingTimeout)
}

func TestLoadFromEnvMalformedValuesUseDefaults(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	t.Setenv("PROCESSING_TIMEOUT", "soon")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.ProcessingTimeout)
}

func TestConfigFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"port: 9999\nlog_level: warn\nllm_model: gpt-4o\n"), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Port, "file value applies when the variable is unset")
	assert.Equal(t, "error", cfg.LogLevel, "environment wins over the file")
	assert.Equal(t, "gpt-4o", cfg.LLMModel)
}

func TestConfigFileMissing(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := LoadFromEnv()
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:          8080,
			LogLevel:      "info",
			ChunkSize:     512,
			ChunkOverlap:  50,
			MaxUploadSize: 1024,
		}
	}

	cfg := base()
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Port = 0
	assert.ErrorContains(t, cfg.Validate(), "invalid port")

	cfg = base()
	cfg.ChunkOverlap = 512
	assert.ErrorContains(t, cfg.Validate(), "chunk overlap")

	cfg = base()
	cfg.MaxUploadSize = 0
	assert.ErrorContains(t, cfg.Validate(), "upload size")

	cfg = base()
	cfg.LogLevel = "verbose"
	assert.ErrorContains(t, cfg.Validate(), "log level")

	cfg = base()
	cfg.EnableWeaviate = true
	assert.ErrorContains(t, cfg.Validate(), "weaviate")

	cfg = base()
	cfg.UseRedisSessions = true
	assert.ErrorContains(t, cfg.Validate(), "redis")
}
