// Package models holds the persistent entities of the report execution
// pipeline: tasks, their placeholders, executions, progress events, and the
// artifacts executions produce.
package models

import "time"

// Task is a persistent unit of scheduled or manually-triggered report work.
type Task struct {
	ID           string
	OwnerID      string
	Name         string
	TemplateID   string
	DataSourceID string
	Schedule     string // cron expression; empty means manual-trigger only
	Recipients   []string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SemanticType classifies what kind of value a placeholder resolves to.
type SemanticType string

const (
	SemanticScalarStat SemanticType = "scalar-stat"
	SemanticRanking     SemanticType = "ranking"
	SemanticPeriod      SemanticType = "period"
	SemanticCompare     SemanticType = "compare"
	SemanticChart       SemanticType = "chart"
)

// TestResult records the outcome of the most recent validation attempt for
// a placeholder's generated SQL.
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// AgentConfig is the schemaless blob persisted alongside a placeholder,
// carrying forward-compatible agent metadata (generation method, iteration
// count, fallback reasons) without column churn. See agent_config_blob in
// SPEC_FULL.md's persisted-state layout.
type AgentConfig struct {
	GenerationMethod string      `json:"generation_method,omitempty"`
	Iterations       int         `json:"iterations,omitempty"`
	FallbackReason   string      `json:"fallback_reason,omitempty"`
	LastTestResult   *TestResult `json:"last_test_result,omitempty"`
}

// Placeholder is a named slot inside a template whose value is produced by
// executing agent-derived SQL against a data source.
type Placeholder struct {
	ID            string
	TemplateID    string
	Name          string
	Description   string
	SemanticType  SemanticType
	TopN          *int
	GeneratedSQL  string
	SQLValidated  bool
	AgentAnalyzed bool
	Confidence    float64
	AgentConfig   AgentConfig
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Analyzed reports whether this placeholder carries the invariant that
// AgentAnalyzed implies a non-empty GeneratedSQL.
func (p *Placeholder) Analyzed() bool {
	return p.AgentAnalyzed && p.GeneratedSQL != ""
}
