package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for cubelens-engine.
// Configuration can come from a YAML file (config.yaml) or environment
// variables; environment variables always override YAML values. Secrets
// (passwords, API keys) must only come from environment variables.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	Database  DatabaseConfig  `yaml:"database"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Redis     RedisConfig     `yaml:"redis"`
	AI        AIConfig        `yaml:"ai"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`

	// ClassifierRulesPath optionally points to a YAML file overriding the
	// built-in error classification and normalization rules.
	ClassifierRulesPath string `yaml:"classifier_rules_path" env:"CLASSIFIER_RULES_PATH" env-default:""`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"cubelens"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"cubelens_engine"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`

	// Tenant scoping pins a connection per request, so connections recycle
	// faster than a typical pool would.
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"PGMAX_CONN_LIFETIME" env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"PGMAX_CONN_IDLE_TIME" env-default:"30m"`
}

// URL builds a connection URL for pgx.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// WarehouseConfig points at the tenant data warehouse compiled queries
// run against. It is a separate database from the engine's own storage.
type WarehouseConfig struct {
	// Dialect selects the executor adapter: "postgres" or "sqlserver".
	Dialect string `yaml:"dialect" env:"WAREHOUSE_DIALECT" env-default:"postgres"`
	// URL carries credentials, so it only comes from the environment.
	URL string `yaml:"-" env:"WAREHOUSE_URL"`
}

// RedisConfig holds Redis configuration for the embedding cache.
// Redis is optional; an empty host disables caching.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// AIConfig holds LLM and embedding collaborator endpoints.
type AIConfig struct {
	// Provider selects the generation backend: "openai" (any
	// OpenAI-compatible endpoint) or "anthropic".
	Provider string `yaml:"provider" env:"AI_PROVIDER" env-default:"openai"`

	LLMBaseURL string `yaml:"llm_base_url" env:"AI_LLM_BASE_URL" env-default:"https://api.openai.com/v1"`
	LLMModel   string `yaml:"llm_model" env:"AI_LLM_MODEL" env-default:"gpt-4o"`
	LLMAPIKey  string `yaml:"-" env:"AI_LLM_API_KEY"` // Secret - not in YAML

	EmbeddingBaseURL string `yaml:"embedding_base_url" env:"AI_EMBEDDING_BASE_URL" env-default:"https://api.openai.com/v1"`
	EmbeddingModel   string `yaml:"embedding_model" env:"AI_EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
	EmbeddingAPIKey  string `yaml:"-" env:"AI_EMBEDDING_API_KEY"` // Secret - not in YAML

	// EmbeddingCacheTTL is how long cached embedding vectors stay valid.
	EmbeddingCacheTTL time.Duration `yaml:"embedding_cache_ttl" env:"AI_EMBEDDING_CACHE_TTL" env-default:"168h"`
}

// PipelineConfig bounds the synthesis and repair loop.
type PipelineConfig struct {
	// MaxRepairAttempts is the maximum number of repair cycles per request.
	MaxRepairAttempts int `yaml:"max_repair_attempts" env:"PIPELINE_MAX_REPAIR_ATTEMPTS" env-default:"3"`

	// AttemptTimeout bounds a single generate/validate/execute attempt.
	AttemptTimeout time.Duration `yaml:"attempt_timeout" env:"PIPELINE_ATTEMPT_TIMEOUT" env-default:"60s"`

	// RequestDeadline bounds the whole repair loop. Must be at least
	// 3x AttemptTimeout so the full retry budget remains usable.
	RequestDeadline time.Duration `yaml:"request_deadline" env:"PIPELINE_REQUEST_DEADLINE" env-default:"300s"`

	// ExemplarCount is how many few-shot exemplars retrieval asks for.
	ExemplarCount int `yaml:"exemplar_count" env:"PIPELINE_EXEMPLAR_COUNT" env-default:"5"`
}

// Load reads configuration from config.yaml (if present) and environment
// variables, then validates it.
func Load(version string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.Version = version

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Pipeline.MaxRepairAttempts < 0 {
		return fmt.Errorf("pipeline.max_repair_attempts must not be negative")
	}
	if c.Pipeline.AttemptTimeout <= 0 {
		return fmt.Errorf("pipeline.attempt_timeout must be positive")
	}
	if c.Pipeline.RequestDeadline < 3*c.Pipeline.AttemptTimeout {
		return fmt.Errorf("pipeline.request_deadline must be at least 3x pipeline.attempt_timeout")
	}
	if c.AI.Provider != "openai" && c.AI.Provider != "anthropic" {
		return fmt.Errorf("ai.provider must be openai or anthropic, got %q", c.AI.Provider)
	}
	if c.Warehouse.Dialect != "postgres" && c.Warehouse.Dialect != "sqlserver" {
		return fmt.Errorf("warehouse.dialect must be postgres or sqlserver, got %q", c.Warehouse.Dialect)
	}
	return nil
}
