// Package config loads service configuration from the environment, with an
// optional YAML file providing overrides for deployments that prefer files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config holds all service configuration.
type Config struct {
	// HTTP server
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Uploads
	UploadDir     string `yaml:"upload_dir"`
	MaxUploadSize int64  `yaml:"max_upload_size"`

	// LLM backend
	LLMBaseURL     string        `yaml:"llm_base_url"`
	LLMAPIKey      string        `yaml:"llm_api_key"`
	LLMModel       string        `yaml:"llm_model"`
	EmbeddingModel string        `yaml:"embedding_model"`
	LLMTimeout     time.Duration `yaml:"llm_timeout"`
	LLMCooldown    time.Duration `yaml:"llm_cooldown"`

	// Vector index
	WeaviateHost   string `yaml:"weaviate_host"`
	WeaviateScheme string `yaml:"weaviate_scheme"`
	WeaviateAPIKey string `yaml:"weaviate_api_key"`
	WeaviateClass  string `yaml:"weaviate_class"`
	EnableWeaviate bool   `yaml:"enable_weaviate"`

	// Session store
	UseRedisSessions bool   `yaml:"use_redis_sessions"`
	RedisAddress     string `yaml:"redis_address"`
	RedisPassword    string `yaml:"redis_password"`
	RedisDatabase    int    `yaml:"redis_database"`

	// Chunking
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`

	// Pipeline
	ProcessingTimeout time.Duration `yaml:"processing_timeout"`

	// Streaming pacing
	TokenDelay  time.Duration `yaml:"token_delay"`
	SourceDelay time.Duration `yaml:"source_delay"`
}

// LoadFromEnv builds the configuration from environment variables. A .env
// file in the working directory is loaded first when present, and a YAML
// file named by CONFIG_FILE supplies base values that the environment
// overrides.
func LoadFromEnv() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		Host:              getEnvOrDefault("HOST", "0.0.0.0"),
		Port:              getIntEnv("PORT", 8080),
		ReadTimeout:       getDurationEnv("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:      getDurationEnv("WRITE_TIMEOUT", 0),
		ShutdownTimeout:   getDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		UploadDir:         getEnvOrDefault("UPLOAD_DIR", os.TempDir()),
		MaxUploadSize:     int64(getIntEnv("MAX_UPLOAD_SIZE", 50*1024*1024)),
		LLMBaseURL:        os.Getenv("LLM_BASE_URL"),
		LLMAPIKey:         os.Getenv("LLM_API_KEY"),
		LLMModel:          getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
		EmbeddingModel:    getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		LLMTimeout:        getDurationEnv("LLM_TIMEOUT", 60*time.Second),
		LLMCooldown:       getDurationEnv("LLM_COOLDOWN", 30*time.Second),
		WeaviateHost:      getEnvOrDefault("WEAVIATE_HOST", "localhost:8080"),
		WeaviateScheme:    getEnvOrDefault("WEAVIATE_SCHEME", "http"),
		WeaviateAPIKey:    os.Getenv("WEAVIATE_API_KEY"),
		WeaviateClass:     getEnvOrDefault("WEAVIATE_CLASS", "FilingChunk"),
		EnableWeaviate:    getBoolEnv("ENABLE_WEAVIATE", false),
		UseRedisSessions:  getBoolEnv("USE_REDIS_SESSIONS", false),
		RedisAddress:      getEnvOrDefault("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDatabase:     getIntEnv("REDIS_DATABASE", 0),
		ChunkSize:         getIntEnv("CHUNK_SIZE", 512),
		ChunkOverlap:      getIntEnv("CHUNK_OVERLAP", 50),
		ProcessingTimeout: getDurationEnv("PROCESSING_TIMEOUT", 5*time.Minute),
		TokenDelay:        getDurationEnv("TOKEN_DELAY", 50*time.Millisecond),
		SourceDelay:       getDurationEnv("SOURCE_DELAY", 10*time.Millisecond),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyYAML overlays values from a YAML file. Environment variables already
// loaded take precedence, so only keys absent from the environment are
// replaced.
func (c *Config) applyYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if os.Getenv("PORT") == "" && overlay.Port != 0 {
		c.Port = overlay.Port
	}
	if os.Getenv("HOST") == "" && overlay.Host != "" {
		c.Host = overlay.Host
	}
	if os.Getenv("LOG_LEVEL") == "" && overlay.LogLevel != "" {
		c.LogLevel = overlay.LogLevel
	}
	if os.Getenv("LLM_BASE_URL") == "" && overlay.LLMBaseURL != "" {
		c.LLMBaseURL = overlay.LLMBaseURL
	}
	if os.Getenv("LLM_MODEL") == "" && overlay.LLMModel != "" {
		c.LLMModel = overlay.LLMModel
	}
	if os.Getenv("EMBEDDING_MODEL") == "" && overlay.EmbeddingModel != "" {
		c.EmbeddingModel = overlay.EmbeddingModel
	}
	if os.Getenv("WEAVIATE_HOST") == "" && overlay.WeaviateHost != "" {
		c.WeaviateHost = overlay.WeaviateHost
	}
	if os.Getenv("WEAVIATE_SCHEME") == "" && overlay.WeaviateScheme != "" {
		c.WeaviateScheme = overlay.WeaviateScheme
	}
	if os.Getenv("UPLOAD_DIR") == "" && overlay.UploadDir != "" {
		c.UploadDir = overlay.UploadDir
	}
	if os.Getenv("CHUNK_SIZE") == "" && overlay.ChunkSize != 0 {
		c.ChunkSize = overlay.ChunkSize
	}
	if os.Getenv("CHUNK_OVERLAP") == "" && overlay.ChunkOverlap != 0 {
		c.ChunkOverlap = overlay.ChunkOverlap
	}
	return nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", c.ChunkOverlap, c.ChunkSize)
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.EnableWeaviate && c.WeaviateHost == "" {
		return fmt.Errorf("weaviate enabled but no host configured")
	}
	if c.UseRedisSessions && c.RedisAddress == "" {
		return fmt.Errorf("redis sessions enabled but no address configured")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
