package config

import "fmt"

// Validator checks a loaded Config for the minimum set of fields the
// pipeline cannot run without. Mirrors the teacher's pkg/config/validator.go
// NewValidator(cfg).ValidateAll() shape.
type Validator struct {
	cfg *Config
}

// NewValidator creates a Validator for cfg.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every check, returning the first failure wrapped with
// component context.
func (v *Validator) ValidateAll() error {
	if err := v.validateDatabase(); err != nil {
		return err
	}
	if err := v.validateLLM(); err != nil {
		return err
	}
	if err := v.validateStorage(); err != nil {
		return err
	}
	if err := v.validateDataSources(); err != nil {
		return err
	}
	return nil
}

func (v *Validator) validateDatabase() error {
	if v.cfg.Database.DBName == "" {
		return NewValidationError("database", "engine", "dbname", ErrMissingRequiredField)
	}
	return nil
}

func (v *Validator) validateLLM() error {
	if v.cfg.LLM.APIKeyEnv == "" {
		return NewValidationError("llm", "default", "api_key_env", ErrMissingRequiredField)
	}
	if v.cfg.LLM.Model == "" {
		return NewValidationError("llm", "default", "model", ErrMissingRequiredField)
	}
	return nil
}

func (v *Validator) validateStorage() error {
	if v.cfg.Storage.PrimaryEnabled && v.cfg.Storage.Bucket == "" {
		return NewValidationError("storage", "primary", "bucket", ErrMissingRequiredField)
	}
	if v.cfg.Storage.LocalFallbackDir == "" {
		return NewValidationError("storage", "fallback", "local_fallback_dir", ErrMissingRequiredField)
	}
	return nil
}

func (v *Validator) validateDataSources() error {
	for id, ds := range v.cfg.DataSources {
		if ds.DSNEnv == "" {
			return NewValidationError("data_source", id, "dsn_env", ErrMissingRequiredField)
		}
		if ds.Type == "" {
			return NewValidationError("data_source", id, "type", ErrMissingRequiredField)
		}
	}
	return nil
}

// Describe is a small diagnostic helper that summarizes what was actually
// loaded, without any secrets. Nothing in cmd/reportengine calls it.
func (c Config) Describe() string {
	return fmt.Sprintf("db=%s:%d/%s llm_model=%s storage_bucket=%s data_sources=%d",
		c.Database.Host, c.Database.Port, c.Database.DBName, c.LLM.Model, c.Storage.Bucket, len(c.DataSources))
}
