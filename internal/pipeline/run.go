package pipeline

import (
	"github.com/reportforge/reportengine/internal/etl"
	"github.com/reportforge/reportengine/internal/models"
	"github.com/reportforge/reportengine/internal/resourcepool"
)

// run bundles every piece of state one PlaceholderPipeline.Run call
// accumulates as it advances through phases. It is never shared across
// executions.
type run struct {
	pipeline  *Pipeline
	task      models.Task
	triggerID string
	execution models.TaskExecution

	placeholders []models.Placeholder

	// basePool carries the Phase 2 schema-snapshot preload. Each Phase 3
	// placeholder analysis gets its own resourcepool.Pool seeded from this
	// snapshot, since ResourcePool's required keys (sql:current,
	// observations:history) must not collide across placeholders analyzed
	// concurrently — see DESIGN.md's ResourcePool scoping note.
	basePool *resourcepool.Pool

	// analysis holds Phase 3's per-placeholder outcome, keyed by
	// placeholder ID.
	analysis map[string]analysisResult

	// etlValues holds Phase 4's per-placeholder normalized result, keyed by
	// placeholder ID. Only placeholders with sql_validated=true from Phase 3
	// are attempted.
	etlValues map[string]etl.Value
	etlFailed []string // placeholder IDs, in template-scan order

	renderMap map[string]any

	templateRef string

	assembledBytes []byte
	friendlyName   string

	artifact models.ReportArtifact
}

// analysisResult is Phase 3's outcome for one placeholder.
type analysisResult struct {
	placeholder models.Placeholder
	success     bool
	reason      string
}
