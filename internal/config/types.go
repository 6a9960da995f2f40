package config

import (
	"strconv"
	"time"
)

// Config is the root configuration object loaded from YAML plus
// environment-variable expansion and defaults merge.
type Config struct {
	Database    DatabaseConfig         `yaml:"database"`
	LLM         LLMConfig              `yaml:"llm"`
	Storage     StorageConfig          `yaml:"storage"`
	Scheduler   SchedulerConfig        `yaml:"scheduler"`
	Pipeline    PipelineConfig         `yaml:"pipeline"`
	Slack       SlackConfig            `yaml:"slack"`
	DataSources map[string]DataSourceConfig `yaml:"data_sources"`
	APIAddr     string                 `yaml:"api_addr"`
	AllowedWSOrigins []string          `yaml:"allowed_ws_origins"`
}

// DatabaseConfig configures the engine's own Postgres connection (not the
// target data warehouses, which are described by DataSourceConfig).
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
}

// DSN builds a pgx-compatible connection string.
func (d DatabaseConfig) DSN() string {
	port := d.Port
	if port == 0 {
		port = 5432
	}
	return "host=" + d.Host +
		" port=" + strconv.Itoa(port) +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

// LLMConfig configures the anthropic-sdk-go-backed LLMClient.
type LLMConfig struct {
	APIKeyEnv      string        `yaml:"api_key_env"`
	Model          string        `yaml:"model"`
	BaseURL        string        `yaml:"base_url,omitempty"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	MaxRetries     int           `yaml:"max_retries"`
}

func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StorageConfig configures HybridStorage's two backends.
type StorageConfig struct {
	PrimaryEnabled   bool   `yaml:"primary_enabled"`
	Bucket           string `yaml:"bucket"`
	Region           string `yaml:"region"`
	Endpoint         string `yaml:"endpoint,omitempty"`
	AccessKeyEnv     string `yaml:"access_key_env"`
	SecretKeyEnv     string `yaml:"secret_key_env"`
	LocalFallbackDir string `yaml:"local_fallback_dir"`
	ObjectKeyTemplate string `yaml:"object_key_template"`
	// LocalPublicURL is the base URL the engine's own API server mounts
	// LocalFallbackDir under (see api.Server.ServeLocalFiles), used to build
	// PresignedURL results when an object lives on the local backend.
	LocalPublicURL string `yaml:"local_public_url"`
}

// SchedulerConfig configures TaskScheduler's cron dispatch and distributed
// lock behavior.
type SchedulerConfig struct {
	LockTTLSeconds       int `yaml:"lock_ttl_seconds"`
	JanitorIntervalSeconds int `yaml:"janitor_interval_seconds"`
}

func (c SchedulerConfig) LockTTL() time.Duration {
	if c.LockTTLSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func (c SchedulerConfig) JanitorInterval() time.Duration {
	if c.JanitorIntervalSeconds <= 0 {
		return 1 * time.Minute
	}
	return time.Duration(c.JanitorIntervalSeconds) * time.Second
}

// PipelineConfig mirrors the enumerated environment toggles in spec.md §6.
type PipelineConfig struct {
	MaxFailedPlaceholdersForDoc int `yaml:"max_failed_placeholders_for_doc"`
	AgentConcurrency            int `yaml:"agent_concurrency"`
	AgentMaxIterations          int `yaml:"agent_max_iterations"`
	LLMTimeoutSeconds           int `yaml:"llm_timeout_seconds"`
	SQLExecuteTimeoutSeconds    int `yaml:"sql_execute_timeout_seconds"`
	ExecutionWallClockSeconds   int `yaml:"execution_wall_clock_seconds"`
	ReattemptCooldownSeconds    int `yaml:"reattempt_cooldown_seconds"`
	PromptContextSentences      int `yaml:"prompt_context_sentences"`
}

func (c PipelineConfig) WallClockBudget() time.Duration {
	if c.ExecutionWallClockSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.ExecutionWallClockSeconds) * time.Second
}

func (c PipelineConfig) SQLExecuteTimeout() time.Duration {
	if c.SQLExecuteTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.SQLExecuteTimeoutSeconds) * time.Second
}

func (c PipelineConfig) MaxIterations() int {
	if c.AgentMaxIterations <= 0 {
		return 15
	}
	return c.AgentMaxIterations
}

func (c PipelineConfig) Concurrency() int {
	if c.AgentConcurrency <= 0 {
		return 1
	}
	return c.AgentConcurrency
}

// SlackConfig configures the best-effort Finalize-phase notification.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BotTokenEnv string `yaml:"bot_token_env"`
	Channel    string `yaml:"channel"`
}

// DataSourceConfig describes a configured connection reference the core
// passes through to the external DataSourceConnector collaborator. The core
// never opens the connection itself.
type DataSourceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Type string `yaml:"type"` // e.g. "postgres", "mysql" — meaningful only to the connector
	DSNEnv string `yaml:"dsn_env"`
}
