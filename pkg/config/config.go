package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for lineage-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values. Secrets (passwords,
// API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Registry database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Graph store configuration (Neo4j)
	Graph GraphConfig `yaml:"graph"`

	// Optional embedding vector cache (Redis). Disabled when host is empty.
	Redis RedisConfig `yaml:"redis"`

	// Model endpoints
	AI AIConfig `yaml:"ai"`

	// Retrieval limits
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

// DatabaseConfig holds PostgreSQL configuration for the dialect registry.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"lineage"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"lineage_engine"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GraphConfig holds Neo4j connection configuration.
type GraphConfig struct {
	URI            string `yaml:"uri" env:"NEO4J_URI" env-default:"bolt://localhost:7687"`
	User           string `yaml:"user" env:"NEO4J_USER" env-default:"neo4j"`
	Password       string `yaml:"-" env:"NEO4J_PASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"NEO4J_DATABASE" env-default:""`
	MaxPoolSize    int    `yaml:"max_pool_size" env:"NEO4J_MAX_POOL_SIZE" env-default:"50"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"NEO4J_TIMEOUT_SECONDS" env-default:"10"`
}

// Timeout returns the per-query graph budget as a duration.
func (c *GraphConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RedisConfig holds the optional embedding cache settings.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// IsAvailable returns true if the embedding cache is configured.
func (c *RedisConfig) IsAvailable() bool {
	return c.Host != ""
}

// AIConfig holds model endpoint configuration. Provider selects the client
// implementation: "openai" for any OpenAI-compatible endpoint (including
// local vLLM), "anthropic" for the Anthropic API.
type AIConfig struct {
	Provider       string `yaml:"provider" env:"AI_PROVIDER" env-default:"openai"`
	BaseURL        string `yaml:"base_url" env:"AI_BASE_URL" env-default:"https://api.openai.com/v1"`
	Model          string `yaml:"model" env:"AI_MODEL" env-default:"gpt-4o"`
	APIKey         string `yaml:"-" env:"AI_API_KEY"` // Secret - not in YAML
	EmbeddingModel string `yaml:"embedding_model" env:"AI_EMBEDDING_MODEL" env-default:"text-embedding-3-small"`

	// Independent timeouts so a slow model never stalls graph-only retrieval.
	CompletionTimeoutSeconds int `yaml:"completion_timeout_seconds" env:"AI_COMPLETION_TIMEOUT_SECONDS" env-default:"120"`
	EmbeddingTimeoutSeconds  int `yaml:"embedding_timeout_seconds" env:"AI_EMBEDDING_TIMEOUT_SECONDS" env-default:"15"`
}

// CompletionTimeout returns the completion call budget as a duration.
func (c *AIConfig) CompletionTimeout() time.Duration {
	return time.Duration(c.CompletionTimeoutSeconds) * time.Second
}

// EmbeddingTimeout returns the embedding call budget as a duration.
func (c *AIConfig) EmbeddingTimeout() time.Duration {
	return time.Duration(c.EmbeddingTimeoutSeconds) * time.Second
}

// RetrievalConfig bounds context retrieval.
type RetrievalConfig struct {
	NeighborhoodHops int `yaml:"neighborhood_hops" env:"RETRIEVAL_NEIGHBORHOOD_HOPS" env-default:"2"`
	MaxNeighbors     int `yaml:"max_neighbors" env:"RETRIEVAL_MAX_NEIGHBORS" env-default:"100"`
	ChunkTopK        int `yaml:"chunk_top_k" env:"RETRIEVAL_CHUNK_TOP_K" env-default:"8"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. A missing config.yaml is fine; env vars and defaults apply.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if cfg.Retrieval.NeighborhoodHops < 1 {
		return nil, fmt.Errorf("retrieval.neighborhood_hops must be >= 1, got %d", cfg.Retrieval.NeighborhoodHops)
	}

	return cfg, nil
}
