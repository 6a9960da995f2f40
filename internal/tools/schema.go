package tools

import (
	"context"
	"fmt"

	"github.com/reportforge/reportengine/internal/datasource"
)

// SchemaListTables implements schema.list_tables.
type SchemaListTables struct {
	DataSources *datasource.Registry
}

func (t *SchemaListTables) Name() string        { return "schema.list_tables" }
func (t *SchemaListTables) Description() string { return "List tables available in the configured data source." }
func (t *SchemaListTables) InputSchema() map[string]string {
	return map[string]string{"data_source_ref": "string"}
}

func (t *SchemaListTables) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	ref, _ := input["data_source_ref"].(string)
	conn, err := t.DataSources.Get(ref)
	if err != nil {
		return nil, err
	}
	tables, err := conn.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("schema.list_tables: %w", err)
	}
	return map[string]any{"tables": tables}, nil
}

// SchemaGetColumns implements schema.get_columns.
type SchemaGetColumns struct {
	DataSources *datasource.Registry
}

func (t *SchemaGetColumns) Name() string { return "schema.get_columns" }
func (t *SchemaGetColumns) Description() string {
	return "Get column metadata (name, type, nullable, comment) for a set of tables."
}
func (t *SchemaGetColumns) InputSchema() map[string]string {
	return map[string]string{"tables": "[]string", "data_source_ref": "string"}
}

func (t *SchemaGetColumns) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	ref, _ := input["data_source_ref"].(string)
	tables, err := stringSlice(input["tables"])
	if err != nil {
		return nil, fmt.Errorf("schema.get_columns: %w", err)
	}

	conn, err := t.DataSources.Get(ref)
	if err != nil {
		return nil, err
	}
	cols, err := conn.GetColumns(ctx, tables)
	if err != nil {
		return nil, fmt.Errorf("schema.get_columns: %w", err)
	}

	result := make(map[string]any, len(cols))
	for table, columns := range cols {
		rows := make([]map[string]any, len(columns))
		for i, c := range columns {
			rows[i] = map[string]any{
				"column": c.Column, "type": c.Type, "nullable": c.Nullable, "comment": c.Comment,
			}
		}
		result[table] = rows
	}
	return map[string]any{"columns": result}, nil
}

func stringSlice(v any) ([]string, error) {
	raw, ok := v.([]any)
	if !ok {
		if s, ok := v.([]string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected string element, got %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}
