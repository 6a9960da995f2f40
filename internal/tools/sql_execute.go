package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/reportforge/reportengine/internal/datasource"
)

// SQLExecute implements sql.execute. Accepts both positional-tuple and
// keyed-record row shapes from the connector and exposes primary_value as
// the first cell regardless of shape, per spec.md §4.1.
type SQLExecute struct {
	DataSources *datasource.Registry
	Timeout     time.Duration
}

func (t *SQLExecute) Name() string        { return "sql.execute" }
func (t *SQLExecute) Description() string { return "Execute SQL against the configured data source and return normalized rows." }
func (t *SQLExecute) InputSchema() map[string]string {
	return map[string]string{"sql": "string", "data_source_ref": "string", "parameters": "object?"}
}

func (t *SQLExecute) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	sql, _ := input["sql"].(string)
	ref, _ := input["data_source_ref"].(string)
	params, _ := input["parameters"].(map[string]any)

	conn, err := t.DataSources.Get(ref)
	if err != nil {
		return nil, err
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	result, err := conn.Execute(ctx, sql, params, timeout)
	if err != nil {
		return nil, fmt.Errorf("sql.execute: %w", err)
	}

	rows := make([]any, len(result.Rows))
	for i, r := range result.Rows {
		rows[i] = r
	}

	out := map[string]any{
		"rows":       rows,
		"row_count":  result.RowCount,
		"elapsed_ms": result.ElapsedMS,
	}
	if pv, ok := primaryValue(result); ok {
		out["primary_value"] = pv
	}
	return out, nil
}

// primaryValue returns the first cell of the first row, i.e. the value
// under the first column name the connector reported, regardless of
// whether the underlying driver shape was positional or keyed — the
// Connector interface normalizes both into map[string]any rows before this
// tool ever sees them.
func primaryValue(result datasource.QueryResult) (any, bool) {
	if len(result.Rows) == 0 || len(result.Columns) == 0 {
		return nil, false
	}
	v, ok := result.Rows[0][result.Columns[0].Name]
	return v, ok
}
