package datasource

import (
	"context"
	"time"
)

// StubConnector is an in-memory Connector for tests: it returns a canned
// QueryResult for a given SQL string, and canned schema metadata.
type StubConnector struct {
	Results map[string]QueryResult
	Default QueryResult
	Tables  []string
	Columns map[string][]ColumnInfo
	Err     error
}

// NewStubConnector creates an empty StubConnector.
func NewStubConnector() *StubConnector {
	return &StubConnector{Results: make(map[string]QueryResult), Columns: make(map[string][]ColumnInfo)}
}

func (s *StubConnector) Execute(_ context.Context, sql string, _ map[string]any, _ time.Duration) (QueryResult, error) {
	if s.Err != nil {
		return QueryResult{}, s.Err
	}
	if r, ok := s.Results[sql]; ok {
		return r, nil
	}
	return s.Default, nil
}

func (s *StubConnector) ListTables(_ context.Context) ([]string, error) {
	return s.Tables, s.Err
}

func (s *StubConnector) GetColumns(_ context.Context, tables []string) (map[string][]ColumnInfo, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	out := make(map[string][]ColumnInfo, len(tables))
	for _, t := range tables {
		out[t] = s.Columns[t]
	}
	return out, nil
}
