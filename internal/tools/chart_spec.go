package tools

import (
	"context"
	"regexp"
	"strings"
)

// ChartSpec implements chart.spec: derives a chart type, series, categories,
// and title from a set of rows and the placeholder's natural-language
// description.
type ChartSpec struct{}

func (t *ChartSpec) Name() string        { return "chart.spec" }
func (t *ChartSpec) Description() string { return "Derive a chart specification (type, series, categories) from rows." }
func (t *ChartSpec) InputSchema() map[string]string {
	return map[string]string{"rows": "[]object", "placeholder_description": "string"}
}

var trendWords = regexp.MustCompile(`(?i)trend|over time|monthly|yearly|daily|growth`)
var shareWords = regexp.MustCompile(`(?i)share|proportion|breakdown|distribution|占比|比例`)

func (t *ChartSpec) Execute(_ context.Context, input map[string]any) (map[string]any, error) {
	rows, _ := input["rows"].([]any)
	description, _ := input["placeholder_description"].(string)

	chartType := "bar"
	switch {
	case shareWords.MatchString(description):
		chartType = "pie"
	case trendWords.MatchString(description):
		chartType = "line"
	}

	var categories []any
	var series []any
	var categoryKey, valueKey string
	keysPicked := false

	for _, raw := range rows {
		row, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if !keysPicked {
			categoryKey, valueKey = pickKeys(row)
			keysPicked = true
		}
		if categoryKey != "" {
			categories = append(categories, row[categoryKey])
		}
		if valueKey != "" {
			series = append(series, row[valueKey])
		}
	}

	return map[string]any{
		"chart_type": chartType,
		"series":     series,
		"categories": categories,
		"title":      strings.TrimSpace(description),
	}, nil
}

// pickKeys heuristically identifies the label column (a non-numeric field)
// and the value column (a numeric field) of a record. When a record has
// several fields of one kind, which one is picked follows Go map iteration
// order and is not fixed.
func pickKeys(row map[string]any) (categoryKey, valueKey string) {
	for k, v := range row {
		switch v.(type) {
		case float64, int, int64:
			if valueKey == "" {
				valueKey = k
			}
		default:
			if categoryKey == "" {
				categoryKey = k
			}
		}
	}
	return
}
