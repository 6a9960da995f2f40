package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schemaSnapshot(tables ...string) map[string]any {
	cols := map[string]any{}
	for _, t := range tables {
		cols[t] = []any{map[string]any{"column": "id", "type": "bigint"}}
	}
	return map[string]any{"columns": cols}
}

func TestSQLValidate_Execute(t *testing.T) {
	v := &SQLValidate{}

	tests := []struct {
		name       string
		sql        string
		snapshot   map[string]any
		wantValid  bool
		wantIssues int
	}{
		{
			name:      "valid select against known table",
			sql:       "SELECT total FROM orders WHERE region = 'west'",
			snapshot:  schemaSnapshot("orders"),
			wantValid: true,
		},
		{
			name:       "empty sql is invalid",
			sql:        "   ",
			snapshot:   schemaSnapshot("orders"),
			wantValid:  false,
			wantIssues: 1,
		},
		{
			name:       "forbidden verb rejected",
			sql:        "DELETE FROM orders",
			snapshot:   schemaSnapshot("orders"),
			wantValid:  false,
			wantIssues: 1,
		},
		{
			name:       "unknown table rejected",
			sql:        "SELECT * FROM ghost_table",
			snapshot:   schemaSnapshot("orders"),
			wantValid:  false,
			wantIssues: 1,
		},
		{
			name:      "aliased and joined known tables accepted",
			sql:       "SELECT o.id FROM orders o JOIN customers c ON c.id = o.customer_id",
			snapshot:  schemaSnapshot("orders", "customers"),
			wantValid: true,
		},
		{
			name:      "no schema snapshot skips table-resolution check",
			sql:       "SELECT * FROM anything",
			snapshot:  nil,
			wantValid: true,
		},
		{
			name:       "forbidden verb as standalone word still caught amid other text",
			sql:        "SELECT * FROM orders; UPDATE orders SET total = 0",
			snapshot:   schemaSnapshot("orders"),
			wantValid:  false,
			wantIssues: 1,
		},
		{
			name:      "word containing a forbidden verb as substring is not flagged",
			sql:       "SELECT updated_at FROM orders",
			snapshot:  schemaSnapshot("orders"),
			wantValid: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			input := map[string]any{"sql": tc.sql}
			if tc.snapshot != nil {
				input["schema_snapshot"] = tc.snapshot
			}
			out, err := v.Execute(context.Background(), input)
			require.NoError(t, err)
			assert.Equal(t, tc.wantValid, out["valid"])
			if tc.wantIssues > 0 {
				issues, ok := out["issues"].([]any)
				require.True(t, ok)
				assert.Len(t, issues, tc.wantIssues)
			}
		})
	}
}

func TestSQLRefine_Execute(t *testing.T) {
	r := &SQLRefine{}

	t.Run("strips trailing semicolon and whitespace", func(t *testing.T) {
		out, err := r.Execute(context.Background(), map[string]any{"sql": "SELECT 1;  "})
		require.NoError(t, err)
		assert.Equal(t, "SELECT 1", out["sql"])
		notes, _ := out["notes"].([]any)
		assert.NotEmpty(t, notes)
	})

	t.Run("balances missing closing parens", func(t *testing.T) {
		out, err := r.Execute(context.Background(), map[string]any{"sql": "SELECT COUNT(id FROM orders"})
		require.NoError(t, err)
		assert.Equal(t, "SELECT COUNT(id FROM orders)", out["sql"])
	})

	t.Run("drops extra closing parens", func(t *testing.T) {
		out, err := r.Execute(context.Background(), map[string]any{"sql": "SELECT id) FROM orders"})
		require.NoError(t, err)
		assert.Equal(t, "SELECT id FROM orders", out["sql"])
	})

	t.Run("leaves balanced sql untouched", func(t *testing.T) {
		out, err := r.Execute(context.Background(), map[string]any{"sql": "SELECT (1 + 2) FROM orders"})
		require.NoError(t, err)
		assert.Equal(t, "SELECT (1 + 2) FROM orders", out["sql"])
	})

	t.Run("does not repair an unresolvable table name", func(t *testing.T) {
		// sql.refine only performs deterministic textual fixes; table-name
		// typos are a semantic repair left to the PTAV loop's LLM pass.
		out, err := r.Execute(context.Background(), map[string]any{
			"sql":    "SELECT * FROM ordrs",
			"schema": schemaSnapshot("orders"),
		})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM ordrs", out["sql"])
	})

	t.Run("case-normalizes a known table identifier", func(t *testing.T) {
		out, err := r.Execute(context.Background(), map[string]any{
			"sql":    "SELECT * FROM ORDERS",
			"schema": schemaSnapshot("orders"),
		})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM orders", out["sql"])
	})
}
