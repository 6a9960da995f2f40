package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reportforge/reportengine/internal/datasource"
)

func registryWithConnector(ref string, c datasource.Connector) *datasource.Registry {
	r := datasource.NewRegistry()
	r.Register(ref, c)
	return r
}

func TestSQLExecute_Execute(t *testing.T) {
	t.Run("normalizes rows and surfaces primary_value from the first column", func(t *testing.T) {
		stub := datasource.NewStubConnector()
		stub.Default = datasource.QueryResult{
			Rows:      []map[string]any{{"total": 42.0, "region": "west"}},
			Columns:   []datasource.Column{{Name: "total", Type: "numeric"}, {Name: "region", Type: "text"}},
			RowCount:  1,
			ElapsedMS: 12,
		}
		se := &SQLExecute{DataSources: registryWithConnector("primary", stub)}

		out, err := se.Execute(context.Background(), map[string]any{"sql": "SELECT total, region FROM orders", "data_source_ref": "primary"})
		require.NoError(t, err)
		assert.Equal(t, 1, out["row_count"])
		assert.Equal(t, 42.0, out["primary_value"])
		rows, _ := out["rows"].([]any)
		assert.Len(t, rows, 1)
	})

	t.Run("omits primary_value for an empty result set", func(t *testing.T) {
		stub := datasource.NewStubConnector()
		se := &SQLExecute{DataSources: registryWithConnector("primary", stub)}

		out, err := se.Execute(context.Background(), map[string]any{"sql": "SELECT 1 WHERE false", "data_source_ref": "primary"})
		require.NoError(t, err)
		_, hasPrimary := out["primary_value"]
		assert.False(t, hasPrimary)
	})

	t.Run("unknown data source ref errors", func(t *testing.T) {
		se := &SQLExecute{DataSources: datasource.NewRegistry()}
		_, err := se.Execute(context.Background(), map[string]any{"sql": "SELECT 1", "data_source_ref": "ghost"})
		assert.Error(t, err)
	})

	t.Run("wraps a connector execution error", func(t *testing.T) {
		stub := datasource.NewStubConnector()
		stub.Err = assert.AnError
		se := &SQLExecute{DataSources: registryWithConnector("primary", stub)}

		_, err := se.Execute(context.Background(), map[string]any{"sql": "SELECT 1", "data_source_ref": "primary"})
		assert.Error(t, err)
	})

	t.Run("zero Timeout defaults rather than disabling the timeout", func(t *testing.T) {
		stub := datasource.NewStubConnector()
		se := &SQLExecute{DataSources: registryWithConnector("primary", stub), Timeout: 0}

		_, err := se.Execute(context.Background(), map[string]any{"sql": "SELECT 1", "data_source_ref": "primary"})
		require.NoError(t, err)
		assert.Equal(t, time.Duration(0), se.Timeout, "Execute must not mutate the tool's configured Timeout field")
	})
}
