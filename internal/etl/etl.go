// Package etl implements ETLRunner (spec.md §4.4/§4.9): substitutes time
// placeholders in cached SQL, executes it via a DataSourceConnector, and
// normalizes the raw result into a typed value based on its row/column
// shape.
package etl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/reportforge/reportengine/internal/datasource"
)

// ValueKind classifies a normalized ETL result, per spec.md §4.9's shape table.
type ValueKind string

const (
	KindScalar ValueKind = "scalar"
	KindRecord ValueKind = "record"
	KindTable  ValueKind = "table"
)

// Value is a normalized ETL result ready for render-map insertion.
type Value struct {
	Kind   ValueKind
	Scalar any
	Record map[string]any
	Table  []map[string]any
}

// Runner executes placeholder SQL against a DataSourceConnector and
// normalizes the result.
type Runner struct {
	DataSources *datasource.Registry
	Timeout     time.Duration
}

// New creates a Runner.
func New(dataSources *datasource.Registry, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Runner{DataSources: dataSources, Timeout: timeout}
}

// Run substitutes window into sql's {{start_date}}/{{end_date}} (and any
// other time markers present in window) markers, executes it, and
// normalizes the result.
func (r *Runner) Run(ctx context.Context, dataSourceID, sql string, window map[string]string) (Value, error) {
	substituted := Substitute(sql, window)

	conn, err := r.DataSources.Get(dataSourceID)
	if err != nil {
		return Value{}, err
	}

	result, err := conn.Execute(ctx, substituted, nil, r.Timeout)
	if err != nil {
		return Value{}, err
	}

	return Normalize(result), nil
}

// Substitute replaces every {{key}} marker in sql with window[key].
// Markers with no matching key are left untouched.
func Substitute(sql string, window map[string]string) string {
	out := sql
	for k, v := range window {
		out = strings.ReplaceAll(out, fmt.Sprintf("{{%s}}", k), v)
	}
	return out
}

// Normalize reduces a raw QueryResult to a typed Value per spec.md §4.9:
//   - 1 row × 1 column  → scalar
//   - 1 row × N columns → record
//   - M rows × N columns → table
func Normalize(result datasource.QueryResult) Value {
	switch {
	case len(result.Rows) == 1 && len(result.Columns) == 1:
		col := result.Columns[0].Name
		return Value{Kind: KindScalar, Scalar: normalizeCell(result.Rows[0][col])}
	case len(result.Rows) == 1:
		return Value{Kind: KindRecord, Record: normalizeRecord(result.Rows[0])}
	default:
		rows := make([]map[string]any, len(result.Rows))
		for i, row := range result.Rows {
			rows[i] = normalizeRecord(row)
		}
		return Value{Kind: KindTable, Table: rows}
	}
}

// normalizeRecord applies normalizeCell to every column of row.
func normalizeRecord(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = normalizeCell(v)
	}
	return out
}

// normalizeCell converts float32 cells to float64. Every other cell,
// including nulls and any driver-specific decimal or fixed-point type, is
// returned unchanged; decimal values are not converted to float64.
func normalizeCell(v any) any {
	switch val := v.(type) {
	case float32:
		return float64(val)
	default:
		return val
	}
}
