// Package validator implements the Validator component (spec.md §4.5):
// checks whether the current ResourcePool/history state satisfies the
// placeholder goal.
package validator

import (
	"github.com/reportforge/reportengine/internal/agent"
	"github.com/reportforge/reportengine/internal/resourcepool"
)

// Validator checks goal satisfaction for both PTAV generation and
// validate-only repair.
type Validator struct{}

// New creates a Validator.
func New() *Validator { return &Validator{} }

// Check implements the generation-mode rule: sql:current exists AND the
// last sql.validate observation returned valid=true AND (optionally) the
// last sql.execute dry-run returned row_count >= 0.
func (v *Validator) Check(pool *resourcepool.Pool, history []agent.Observation) agent.ValidationResult {
	if !pool.Has(resourcepool.KeySQLCurrent) {
		return agent.ValidationResult{GoalAchieved: false, Reason: "no sql:current in pool"}
	}

	lastValidate := lastObservation(history, "sql.validate")
	if lastValidate == nil {
		return agent.ValidationResult{GoalAchieved: false, Reason: "no sql.validate observation yet"}
	}
	if !lastValidate.Success {
		return agent.ValidationResult{GoalAchieved: false, Reason: "sql.validate failed: " + lastValidate.Error}
	}
	if valid, _ := lastValidate.Result["valid"].(bool); !valid {
		return agent.ValidationResult{GoalAchieved: false, Reason: "sql.validate returned invalid"}
	}

	if lastExecute := lastObservation(history, "sql.execute"); lastExecute != nil {
		if !lastExecute.Success {
			return agent.ValidationResult{GoalAchieved: false, Reason: "sql.execute dry-run failed: " + lastExecute.Error}
		}
		if rc, ok := lastExecute.Result["row_count"].(int); ok && rc < 0 {
			return agent.ValidationResult{GoalAchieved: false, Reason: "sql.execute returned negative row_count"}
		}
	}

	return agent.ValidationResult{GoalAchieved: true, Reason: "sql validated"}
}

// CheckValidateOnly implements the validate-only-mode rule: only the last
// sql.validate observation matters, unless execution was also requested
// (i.e. a sql.execute observation is present, in which case it must also
// have succeeded).
func (v *Validator) CheckValidateOnly(history []agent.Observation) agent.ValidationResult {
	lastValidate := lastObservation(history, "sql.validate")
	if lastValidate == nil {
		return agent.ValidationResult{GoalAchieved: false, Reason: "no sql.validate observation"}
	}
	if !lastValidate.Success {
		return agent.ValidationResult{GoalAchieved: false, Reason: "sql.validate failed: " + lastValidate.Error}
	}
	valid, _ := lastValidate.Result["valid"].(bool)
	if !valid {
		issues, _ := lastValidate.Result["issues"].([]any)
		return agent.ValidationResult{GoalAchieved: false, Reason: joinIssues(issues)}
	}

	if lastExecute := lastObservation(history, "sql.execute"); lastExecute != nil && !lastExecute.Success {
		return agent.ValidationResult{GoalAchieved: false, Reason: "sql.execute dry-run failed: " + lastExecute.Error}
	}
	return agent.ValidationResult{GoalAchieved: true, Reason: "validated"}
}

func lastObservation(history []agent.Observation, tool string) *agent.Observation {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Tool == tool {
			return &history[i]
		}
	}
	return nil
}

func joinIssues(issues []any) string {
	if len(issues) == 0 {
		return "sql.validate returned invalid"
	}
	s := ""
	for i, issue := range issues {
		if i > 0 {
			s += "; "
		}
		if str, ok := issue.(string); ok {
			s += str
		}
	}
	return s
}
