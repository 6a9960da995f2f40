package tools

import (
	"time"

	"github.com/reportforge/reportengine/internal/datasource"
)

// NewBuiltinRegistry constructs and freezes the Registry with every tool
// required by spec.md §4.1.
func NewBuiltinRegistry(dataSources *datasource.Registry, sqlTimeout time.Duration) *Registry {
	r := NewRegistry()
	r.Register(&SchemaListTables{DataSources: dataSources})
	r.Register(&SchemaGetColumns{DataSources: dataSources})
	r.Register(&TimeWindow{})
	r.Register(&SQLValidate{})
	r.Register(&SQLExecute{DataSources: dataSources, Timeout: sqlTimeout})
	r.Register(&SQLRefine{})
	r.Register(&ChartSpec{})
	r.Freeze()
	return r
}
