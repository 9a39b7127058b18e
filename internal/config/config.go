package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"10"`

	// ServiceToken authenticates internal callers of the HTTP API.
	ServiceToken string `envconfig:"SERVICE_TOKEN"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"kbpipe-knowledge"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	EmbeddingProvider   string        `envconfig:"EMBEDDING_PROVIDER" default:"voyage"`
	EmbeddingAPIKey     string        `envconfig:"EMBEDDING_API_KEY"`
	EmbeddingBaseURL    string        `envconfig:"EMBEDDING_BASE_URL"`
	EmbeddingModel      string        `envconfig:"EMBEDDING_MODEL"`
	EmbeddingDimensions int           `envconfig:"EMBEDDING_DIMENSIONS" default:"1024"`
	EmbeddingTimeout    time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"60s"`

	LLMAPIKey  string        `envconfig:"LLM_API_KEY"`
	LLMBaseURL string        `envconfig:"LLM_BASE_URL"`
	LLMModel   string        `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	LLMTimeout time.Duration `envconfig:"LLM_TIMEOUT" default:"90s"`

	ChunkMaxChars int `envconfig:"CHUNK_MAX_CHARS" default:"1500"`
	ChunkOverlap  int `envconfig:"CHUNK_OVERLAP" default:"200"`

	EditRequestTTL  time.Duration `envconfig:"EDIT_REQUEST_TTL" default:"30m"`
	URLFetchTimeout time.Duration `envconfig:"URL_FETCH_TIMEOUT" default:"30s"`
	ProcessTimeout  time.Duration `envconfig:"PROCESS_TIMEOUT" default:"5m"`

	ReindexInterval  time.Duration `envconfig:"REINDEX_INTERVAL" default:"30s"`
	ReindexBatchSize int           `envconfig:"REINDEX_BATCH_SIZE" default:"50"`

	SentryDSN string `envconfig:"SENTRY_DSN"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("KBPIPE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.ChunkMaxChars <= 0:
		return fmt.Errorf("KBPIPE_CHUNK_MAX_CHARS must be positive, got %d", c.ChunkMaxChars)
	case c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkMaxChars:
		return fmt.Errorf("KBPIPE_CHUNK_OVERLAP must be in [0, %d), got %d", c.ChunkMaxChars, c.ChunkOverlap)
	case c.ReindexBatchSize <= 0:
		return fmt.Errorf("KBPIPE_REINDEX_BATCH_SIZE must be positive, got %d", c.ReindexBatchSize)
	case c.ReindexInterval <= 0:
		return fmt.Errorf("KBPIPE_REINDEX_INTERVAL must be positive, got %s", c.ReindexInterval)
	}
	switch strings.ToLower(c.EmbeddingProvider) {
	case "voyage", "openai":
	default:
		return fmt.Errorf("KBPIPE_EMBEDDING_PROVIDER must be voyage or openai, got %q", c.EmbeddingProvider)
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasEmbeddings() bool {
	return c.EmbeddingAPIKey != ""
}

func (c *Config) HasLLM() bool {
	return c.LLMAPIKey != ""
}
