// Package config centralizes configuration for the proofreading pipeline.
// Values come from the environment (a .env file is honored when present),
// with validation and defaults applied once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/proofly/proofly/internal/segmenter"
)

// Config holds every recognized option and its effect on the pipeline.
type Config struct {
	// OpenAI-compatible endpoint
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration

	// Proofread stage segmentation
	ChunkSize    int
	ChunkOverlap int

	// Edit stage segmentation (larger chunks, larger overlap)
	EditChunkSize    int
	EditChunkOverlap int

	// Concurrency
	Workers int

	// Persistence
	DBPath string

	// HTTP surface
	Port int

	LogLevel string
}

// Load reads configuration from a .env file (if present) and the
// environment, then validates it.
func Load() (*Config, error) {
	// Missing .env is fine; the environment may carry everything.
	_ = godotenv.Load()

	cfg := &Config{
		APIKey:           os.Getenv("OPENAI_API_KEY"),
		BaseURL:          os.Getenv("OPENAI_BASE_URL"),
		Model:            getEnv("PROOFLY_MODEL", "gpt-4o-mini"),
		Timeout:          getEnvDuration("PROOFLY_TIMEOUT", 120*time.Second),
		MaxAttempts:      getEnvInt("PROOFLY_MAX_ATTEMPTS", 3),
		RetryDelay:       getEnvDuration("PROOFLY_RETRY_DELAY", 2*time.Second),
		ChunkSize:        getEnvInt("PROOFLY_CHUNK_SIZE", segmenter.DefaultMaxSize),
		ChunkOverlap:     getEnvInt("PROOFLY_CHUNK_OVERLAP", segmenter.DefaultOverlap),
		EditChunkSize:    getEnvInt("PROOFLY_EDIT_CHUNK_SIZE", 2000),
		EditChunkOverlap: getEnvInt("PROOFLY_EDIT_CHUNK_OVERLAP", 200),
		Workers:          getEnvInt("PROOFLY_WORKERS", 4),
		DBPath:           getEnv("PROOFLY_DB", "./data/proofly.db"),
		Port:             getEnvInt("PROOFLY_PORT", 8501),
		LogLevel:         getEnv("PROOFLY_LOG_LEVEL", "info"),
	}

	return cfg, cfg.Validate()
}

// Validate applies the same parameter rules the segmenter enforces, so bad
// configuration is rejected before any LLM call is made.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("PROOFLY_CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("PROOFLY_CHUNK_OVERLAP must be in [0, chunk size), got %d", c.ChunkOverlap)
	}
	if c.EditChunkSize <= 0 {
		return fmt.Errorf("PROOFLY_EDIT_CHUNK_SIZE must be positive, got %d", c.EditChunkSize)
	}
	if c.EditChunkOverlap < 0 || c.EditChunkOverlap >= c.EditChunkSize {
		return fmt.Errorf("PROOFLY_EDIT_CHUNK_OVERLAP must be in [0, edit chunk size), got %d", c.EditChunkOverlap)
	}
	if c.MaxAttempts < 1 || c.MaxAttempts > 10 {
		return fmt.Errorf("PROOFLY_MAX_ATTEMPTS must be 1-10, got %d", c.MaxAttempts)
	}
	if c.Workers < 1 {
		return fmt.Errorf("PROOFLY_WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PROOFLY_PORT must be a valid port, got %d", c.Port)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
