package warehouse

import "context"

// MockExecutor is a deterministic QueryExecutor for tests: it always returns
// the configured Rows regardless of the SQL or params it is given.
type MockExecutor struct {
	Rows []map[string]any
	Err  error
}

// NewMockExecutor constructs a MockExecutor returning rows for every query.
func NewMockExecutor(rows []map[string]any) *MockExecutor {
	return &MockExecutor{Rows: rows}
}

func (m *MockExecutor) Execute(_ context.Context, _ string, _ map[string]any) (*QueryResult, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return &QueryResult{Rows: m.Rows, RowCount: len(m.Rows)}, nil
}
