package ptav

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reportforge/reportengine/internal/agent"
	"github.com/reportforge/reportengine/internal/agent/validator"
	"github.com/reportforge/reportengine/internal/resourcepool"
)

// fakeToolExecutor drives RunValidateOnly's two-pass validate/refine/
// validate sequence without needing the real tools.Registry or an LLM:
// sql.validate and sql.refine behavior is supplied per-test as closures.
type fakeToolExecutor struct {
	validate func(sql string) (valid bool, issues []any)
	refine   func(sql string) string
}

func (f *fakeToolExecutor) Execute(_ context.Context, toolName string, input map[string]any, _ *agent.ExecutionContext) (agent.Observation, error) {
	switch toolName {
	case "sql.validate":
		sql, _ := input["sql"].(string)
		valid, issues := f.validate(sql)
		return agent.Observation{Tool: toolName, Success: true, Result: map[string]any{"valid": valid, "issues": issues}}, nil
	case "sql.refine":
		sql, _ := input["sql"].(string)
		refined := sql
		if f.refine != nil {
			refined = f.refine(sql)
		}
		return agent.Observation{Tool: toolName, Success: true, Result: map[string]any{"sql": refined, "notes": []any{}}}, nil
	default:
		return agent.Observation{Tool: toolName, Success: false, Error: "unexpected tool " + toolName}, nil
	}
}

func newValidateOnlyContext(executor agent.ToolExecutor) *agent.ExecutionContext {
	return &agent.ExecutionContext{Pool: resourcepool.New(), Tools: executor}
}

func TestOrchestrator_RunValidateOnly(t *testing.T) {
	o := New(nil, nil, validator.New(), 15)

	t.Run("valid SQL succeeds on the first validate, never reaching refine", func(t *testing.T) {
		exec := &fakeToolExecutor{validate: func(string) (bool, []any) { return true, nil }}
		ec := newValidateOnlyContext(exec)

		out := o.RunValidateOnly(context.Background(), "SELECT total FROM orders", ec)
		assert.True(t, out.Success)
		assert.Equal(t, "SELECT total FROM orders", out.Content)
		assert.Equal(t, "validate_only", out.Metadata.GenerationMethod)
	})

	t.Run("invalid SQL that refine repairs succeeds on the second validate", func(t *testing.T) {
		calls := 0
		exec := &fakeToolExecutor{
			validate: func(sql string) (bool, []any) {
				calls++
				if calls == 1 {
					return false, []any{"case mismatch"}
				}
				return true, nil
			},
			refine: func(string) string { return "SELECT total FROM orders" },
		}
		ec := newValidateOnlyContext(exec)

		out := o.RunValidateOnly(context.Background(), "SELECT total FROM ORDERS", ec)
		assert.True(t, out.Success)
		assert.Equal(t, "SELECT total FROM orders", out.Content)
	})

	t.Run("unrepairable reason reports Repairable=false", func(t *testing.T) {
		exec := &fakeToolExecutor{
			validate: func(string) (bool, []any) { return false, []any{"dialect_mismatch"} },
		}
		ec := newValidateOnlyContext(exec)

		out := o.RunValidateOnly(context.Background(), "SELECT * FROM ghost", ec)
		assert.False(t, out.Success)
		assert.Equal(t, "dialect_mismatch", out.Metadata.Reason)
		assert.False(t, out.Metadata.Repairable)
	})

	t.Run("other reasons report Repairable=true, leaving PTAV fallback possible", func(t *testing.T) {
		exec := &fakeToolExecutor{
			validate: func(string) (bool, []any) { return false, []any{"table ghost not found"} },
		}
		ec := newValidateOnlyContext(exec)

		out := o.RunValidateOnly(context.Background(), "SELECT * FROM ghost", ec)
		assert.False(t, out.Success)
		assert.Equal(t, "table ghost not found", out.Metadata.Reason)
		assert.True(t, out.Metadata.Repairable)
	})
}

// --- pattern-detector exit conditions (spec.md §4.6.3), tested white-box
// since driving them through three live Planner/LLM round trips would not
// add any signal beyond what these pure functions already decide.

func plan(tool string, input map[string]any) agent.Plan {
	return agent.Plan{Steps: []agent.Step{{Tool: tool, Input: input}}}
}

func TestShouldExit_BelowPatternWindow(t *testing.T) {
	plans := []agent.Plan{plan("sql.validate", nil), plan("sql.validate", nil)}
	assert.False(t, shouldExit(plans, nil, []string{"a", "a"}))
}

func TestShouldExit_SameToolAndInputThreeTimes(t *testing.T) {
	input := map[string]any{"sql": "SELECT 1"}
	plans := []agent.Plan{plan("sql.validate", input), plan("sql.validate", input), plan("sql.validate", input)}
	assert.True(t, shouldExit(plans, nil, []string{"SELECT 1", "SELECT 1", "SELECT 1"}))
}

func TestShouldExit_DifferingInputDoesNotTriggerToolRepetitionExit(t *testing.T) {
	plans := []agent.Plan{
		plan("sql.validate", map[string]any{"sql": "SELECT 1"}),
		plan("sql.validate", map[string]any{"sql": "SELECT 2"}),
		plan("sql.validate", map[string]any{"sql": "SELECT 3"}),
	}
	// distinct sql each time also means net change, so the overall verdict
	// must be false unless errors repeat.
	history := []agent.Observation{
		{Tool: "sql.validate", Success: true},
		{Tool: "sql.validate", Success: true},
		{Tool: "sql.validate", Success: true},
	}
	assert.False(t, shouldExit(plans, history, []string{"SELECT 1", "SELECT 2", "SELECT 3"}))
}

func TestShouldExit_SameRepeatedError(t *testing.T) {
	plans := []agent.Plan{
		plan("sql.validate", map[string]any{"sql": "SELECT 1"}),
		plan("sql.execute", map[string]any{"sql": "SELECT 1"}),
		plan("sql.validate", map[string]any{"sql": "SELECT 2"}),
	}
	history := []agent.Observation{
		{Tool: "sql.validate", Success: false, Error: "table orders not found"},
		{Tool: "sql.execute", Success: false, Error: "table orders not found"},
		{Tool: "sql.validate", Success: false, Error: "table orders not found"},
	}
	assert.True(t, shouldExit(plans, history, []string{"SELECT 1", "SELECT 1", "SELECT 2"}))
}

func TestShouldExit_ErrorRunBrokenByASuccessDoesNotCount(t *testing.T) {
	plans := []agent.Plan{
		plan("sql.validate", map[string]any{"sql": "SELECT 1"}),
		plan("sql.validate", map[string]any{"sql": "SELECT 2"}),
		plan("sql.validate", map[string]any{"sql": "SELECT 3"}),
	}
	history := []agent.Observation{
		{Tool: "sql.validate", Success: false, Error: "table orders not found"},
		{Tool: "sql.validate", Success: true},
		{Tool: "sql.validate", Success: false, Error: "table orders not found"},
	}
	assert.False(t, shouldExit(plans, history, []string{"SELECT 1", "SELECT 2", "SELECT 3"}))
}

func TestShouldExit_NoNetChangeToSQLCurrent(t *testing.T) {
	plans := []agent.Plan{
		plan("sql.refine", map[string]any{"sql": "SELECT 1"}),
		plan("sql.validate", map[string]any{"sql": "SELECT 1"}),
		plan("sql.refine", map[string]any{"sql": "SELECT 2"}),
	}
	assert.True(t, shouldExit(plans, nil, []string{"SELECT 1", "SELECT 1", "SELECT 1"}))
}

func TestShouldExit_NoNetChangeIgnoresEmptySnapshots(t *testing.T) {
	// an empty snapshot means sql:current was never populated yet — that is
	// not "no progress", it is "no attempt made", so it must not trip the
	// exit condition.
	plans := []agent.Plan{
		plan("schema.list_tables", nil),
		plan("schema.get_columns", nil),
		plan("time.window", nil),
	}
	assert.False(t, shouldExit(plans, nil, []string{"", "", ""}))
}

func TestIsUnrepairable(t *testing.T) {
	assert.True(t, isUnrepairable("dialect_mismatch"))
	assert.True(t, isUnrepairable("lexical_error"))
	assert.False(t, isUnrepairable("table ghost not found"))
	assert.False(t, isUnrepairable(""))
}

func TestLastSQL(t *testing.T) {
	pool := resourcepool.New()
	_, ok := pool.Get(resourcepool.KeySQLCurrent)
	require.False(t, ok)
	assert.Equal(t, "", lastSQL(pool))

	pool.Put(resourcepool.KeySQLCurrent, "SELECT 1", 0)
	assert.Equal(t, "SELECT 1", lastSQL(pool))
}

func TestSchemaSnapshot(t *testing.T) {
	pool := resourcepool.New()
	pool.Put(resourcepool.KeySchemaPrefix+"orders", []any{"id", "total"}, 0)
	pool.Put(resourcepool.KeyTimeWindow, map[string]any{"start_date": "2026-07-01"}, 0)

	snap := schemaSnapshot(pool)
	columns, ok := snap["columns"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, columns, "orders")
	assert.NotContains(t, columns, resourcepool.KeyTimeWindow)
}
