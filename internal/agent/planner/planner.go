// Package planner implements the Planner component (spec.md §4.3): calling
// LLMClient with the current context to produce a structured next-step
// Plan, with one parse-repair attempt on malformed JSON.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/reportforge/reportengine/internal/agent"
	"github.com/reportforge/reportengine/internal/tools"
)

// ErrPlanParse is returned when the LLM's response cannot be coerced into a
// valid Plan even after the parse-repair attempt.
var ErrPlanParse = fmt.Errorf("planner: could not parse a valid plan from the LLM response")

// historyWindow bounds how many prior observations are included in the
// prompt, per spec.md §4.3 ("bounded to last N, N≈5").
const historyWindow = 5

// Planner calls the LLM with the placeholder goal, known facts, tool
// descriptors, and bounded history, returning a structured Plan.
type Planner struct {
	LLM   agent.LLMClient
	Tools *tools.Registry
}

// New creates a Planner.
func New(llm agent.LLMClient, toolRegistry *tools.Registry) *Planner {
	return &Planner{LLM: llm, Tools: toolRegistry}
}

// Plan calls the LLM and returns a structured next step.
func (p *Planner) Plan(ctx context.Context, goal string, poolSnapshot map[string]any, history []agent.Observation) (agent.Plan, error) {
	prompt := buildPrompt(goal, poolSnapshot, p.Tools.Describe(), boundHistory(history))

	result, err := p.LLM.Complete(ctx, []agent.ConversationMessage{
		{Role: agent.RoleSystem, Content: systemPrompt},
		{Role: agent.RoleUser, Content: prompt},
	}, agent.CompleteOptions{ResponseFormat: agent.ResponseFormatJSONObject, Temperature: 0.2, MaxTokens: 2048})
	if err != nil {
		return agent.Plan{}, fmt.Errorf("planner: llm call failed: %w", err)
	}

	plan, err := parsePlan(result.Content)
	if err != nil {
		// one parse-repair attempt: strip code fences, extract first {...} block
		repaired, ok := repairJSON(result.Content)
		if !ok {
			return agent.Plan{}, ErrPlanParse
		}
		plan, err = parsePlan(repaired)
		if err != nil {
			return agent.Plan{}, ErrPlanParse
		}
	}
	return plan, nil
}

func boundHistory(history []agent.Observation) []agent.Observation {
	if len(history) <= historyWindow {
		return history
	}
	return history[len(history)-historyWindow:]
}

func parsePlan(raw string) (agent.Plan, error) {
	var plan agent.Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return agent.Plan{}, err
	}
	if len(plan.Steps) == 0 && plan.Reasoning == "" {
		return agent.Plan{}, fmt.Errorf("planner: empty plan")
	}
	return plan, nil
}

// repairJSON strips common LLM formatting noise (markdown code fences) and
// extracts the first balanced {...} block.
func repairJSON(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

const systemPrompt = "You are a SQL-generating agent. Always respond with a single JSON object matching " +
	`{"reasoning": string, "steps": [{"tool": string, "input": object}]}` +
	". Never include prose outside the JSON object."

func buildPrompt(goal string, pool map[string]any, descriptors []tools.Descriptor, history []agent.Observation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal:\n%s\n\n", goal)

	fmt.Fprintf(&b, "Known facts:\n")
	if len(pool) == 0 {
		fmt.Fprintf(&b, "(none yet)\n")
	}
	for k, v := range pool {
		fmt.Fprintf(&b, "- %s: %v\n", k, v)
	}

	fmt.Fprintf(&b, "\nAvailable tools:\n")
	for _, d := range descriptors {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}

	fmt.Fprintf(&b, "\nConstraints:\n")
	fmt.Fprintf(&b, "- Use unquoted placeholders for time markers ({{start_date}}, {{end_date}}).\n")
	fmt.Fprintf(&b, "- Match identifiers exactly against known schema tables/columns.\n")
	fmt.Fprintf(&b, "- Target dialect: ANSI SQL unless the schema snapshot indicates otherwise.\n")

	if len(history) > 0 {
		fmt.Fprintf(&b, "\nRecent observations:\n")
		for _, o := range history {
			status := "ok"
			if !o.Success {
				status = "failed: " + o.Error
			}
			fmt.Fprintf(&b, "- %s (%s)\n", o.Tool, status)
		}
	}

	fmt.Fprintf(&b, "\nRespond with JSON only: {\"reasoning\": string, \"steps\": [{\"tool\": string, \"input\": object}]}\n")
	return b.String()
}
