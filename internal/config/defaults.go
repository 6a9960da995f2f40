package config

// Defaults returns the built-in configuration merged underneath whatever the
// user's YAML provides, matching the teacher's builtin.go + mergo.WithOverride
// pattern (user config always wins).
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			SSLMode:  "disable",
			MaxConns: 10,
		},
		LLM: LLMConfig{
			APIKeyEnv:      "ANTHROPIC_API_KEY",
			Model:          "claude-sonnet-4-5",
			TimeoutSeconds: 120,
			MaxRetries:     2,
		},
		Storage: StorageConfig{
			PrimaryEnabled:    true,
			LocalFallbackDir:  "./data/reports",
			ObjectKeyTemplate: "reports/{tenant}/{slug}/{date}-{name}.docx",
			LocalPublicURL:    "http://localhost:8080/files",
		},
		Scheduler: SchedulerConfig{
			LockTTLSeconds:         600,
			JanitorIntervalSeconds: 60,
		},
		Pipeline: PipelineConfig{
			MaxFailedPlaceholdersForDoc: 0,
			AgentConcurrency:            1,
			AgentMaxIterations:          15,
			LLMTimeoutSeconds:           120,
			SQLExecuteTimeoutSeconds:    60,
			ExecutionWallClockSeconds:   600,
			ReattemptCooldownSeconds:    0,
			PromptContextSentences:      3,
		},
		APIAddr: ":8080",
	}
}
