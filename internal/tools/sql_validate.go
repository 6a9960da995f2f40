package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// forbiddenVerbs are never allowed in agent-generated or agent-validated
// SQL, per spec.md §4.1.
var forbiddenVerbs = []string{"DROP", "DELETE", "UPDATE", "TRUNCATE", "ALTER", "INSERT", "GRANT", "REVOKE"}

var identifierRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_\.]*`)
var wordRe = regexp.MustCompile(`[A-Za-z]+`)

// SQLValidate implements sql.validate: tokenization, identifier resolution
// against the schema snapshot, and a forbidden-verb check. This is a small
// hand-written scanner, not a general SQL-dialect parser — see DESIGN.md
// for why no library from the retrieval pack covers that ground.
type SQLValidate struct{}

func (t *SQLValidate) Name() string        { return "sql.validate" }
func (t *SQLValidate) Description() string { return "Validate a SQL statement's identifiers and forbid destructive verbs." }
func (t *SQLValidate) InputSchema() map[string]string {
	return map[string]string{"sql": "string", "schema_snapshot": "object"}
}

func (t *SQLValidate) Execute(_ context.Context, input map[string]any) (map[string]any, error) {
	sql, _ := input["sql"].(string)
	if strings.TrimSpace(sql) == "" {
		return map[string]any{"valid": false, "issues": []string{"empty sql"}}, nil
	}

	var issues []string

	for _, verb := range forbiddenVerbs {
		if containsWord(sql, verb) {
			issues = append(issues, fmt.Sprintf("forbidden verb %s", verb))
		}
	}

	knownTables := schemaTables(input["schema_snapshot"])
	if len(knownTables) > 0 {
		for _, table := range referencedTables(sql) {
			if !knownTables[strings.ToLower(table)] {
				issues = append(issues, fmt.Sprintf("table %s not found", table))
			}
		}
	}

	return map[string]any{"valid": len(issues) == 0, "issues": toAnySlice(issues)}, nil
}

// containsWord reports whether verb appears as a standalone word in sql,
// case-insensitively.
func containsWord(sql, verb string) bool {
	for _, w := range wordRe.FindAllString(sql, -1) {
		if strings.EqualFold(w, verb) {
			return true
		}
	}
	return false
}

// referencedTables extracts identifiers following FROM/JOIN keywords.
func referencedTables(sql string) []string {
	tokens := strings.Fields(sql)
	var tables []string
	for i, tok := range tokens {
		upper := strings.ToUpper(strings.Trim(tok, ","))
		if upper == "FROM" || upper == "JOIN" {
			if i+1 < len(tokens) {
				ident := identifierRe.FindString(tokens[i+1])
				if ident != "" {
					tables = append(tables, stripAlias(ident))
				}
			}
		}
	}
	return tables
}

func stripAlias(ident string) string {
	if idx := strings.LastIndex(ident, "."); idx >= 0 {
		return ident[idx+1:]
	}
	return ident
}

// schemaTables extracts the set of known table names from a schema
// snapshot shaped like schema.get_columns' output: {"columns": {table: [...]}}.
func schemaTables(snapshot any) map[string]bool {
	out := map[string]bool{}
	m, ok := snapshot.(map[string]any)
	if !ok {
		return out
	}
	cols, ok := m["columns"].(map[string]any)
	if !ok {
		// allow a bare table->columns map too
		cols = m
	}
	for table := range cols {
		out[strings.ToLower(table)] = true
	}
	return out
}

func toAnySlice(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

// SQLRefine implements sql.refine: deterministic textual fixes (case
// normalization against the snapshot, paren balancing, trailing-semicolon
// strip) applied before any semantic repair. The spec allows invoking the
// LLM for semantic repair; that step lives in Planner/StepExecutor's normal
// PTAV iteration rather than inside this tool, keeping sql.refine pure and
// independently testable.
type SQLRefine struct{}

func (t *SQLRefine) Name() string        { return "sql.refine" }
func (t *SQLRefine) Description() string { return "Apply deterministic textual fixes to a SQL statement before semantic repair." }
func (t *SQLRefine) InputSchema() map[string]string {
	return map[string]string{"sql": "string", "issues": "[]string", "schema": "object"}
}

func (t *SQLRefine) Execute(_ context.Context, input map[string]any) (map[string]any, error) {
	sql, _ := input["sql"].(string)
	var notes []string

	trimmed := strings.TrimRight(strings.TrimSpace(sql), ";")
	if trimmed != sql {
		notes = append(notes, "stripped trailing semicolon/whitespace")
	}
	sql = trimmed

	balanced, changed := balanceParens(sql)
	if changed {
		notes = append(notes, "balanced parentheses")
	}
	sql = balanced

	knownTables := schemaTables(input["schema"])
	if len(knownTables) > 0 {
		normalized, n := normalizeIdentifierCase(sql, knownTables)
		if n > 0 {
			notes = append(notes, fmt.Sprintf("case-normalized %d identifier(s)", n))
		}
		sql = normalized
	}

	return map[string]any{"sql": sql, "notes": toAnySlice(notes)}, nil
}

func balanceParens(sql string) (string, bool) {
	open := strings.Count(sql, "(")
	closeCount := strings.Count(sql, ")")
	if open == closeCount {
		return sql, false
	}
	if open > closeCount {
		return sql + strings.Repeat(")", open-closeCount), true
	}
	// more closes than opens: drop trailing extras
	diff := closeCount - open
	out := sql
	for diff > 0 {
		idx := strings.LastIndex(out, ")")
		if idx < 0 {
			break
		}
		out = out[:idx] + out[idx+1:]
		diff--
	}
	return out, true
}

func normalizeIdentifierCase(sql string, knownTables map[string]bool) (string, int) {
	n := 0
	out := identifierRe.ReplaceAllStringFunc(sql, func(ident string) string {
		last := stripAlias(ident)
		if knownTables[strings.ToLower(last)] && last != strings.ToLower(last) {
			n++
			return strings.ToLower(ident)
		}
		return ident
	})
	return out, n
}
