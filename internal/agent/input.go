package agent

// Input is the nominal record type replacing the source's dynamic
// "AgentInput" bag (see SPEC_FULL.md / DESIGN NOTES). It carries the known
// fields AgentFacade needs and a single Extra map for forward-compatible
// extensions, per spec.md §9's re-architecting guidance.
type Input struct {
	UserPrompt    string
	Placeholder   *ExecutionContext // carries the placeholder + pool + collaborators

	// The four possible sources of a pre-existing SQL string, preserved
	// distinctly (rather than collapsed into one field) because spec.md
	// §4.7 step 1 requires trying them in this exact order.
	CurrentSQL              string
	ContextCurrentSQL       string
	TaskDrivenContextSQL    string
	DataSourceSQLToTest     string

	Extra map[string]any
}

// ExtractCurrentSQL returns the first non-empty SQL source, per spec.md
// §4.7 step 1's precedence order.
func (in Input) ExtractCurrentSQL() string {
	for _, candidate := range []string{in.CurrentSQL, in.ContextCurrentSQL, in.TaskDrivenContextSQL, in.DataSourceSQLToTest} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}
