package tools

import (
	"context"
	"fmt"
	"time"
)

// TimeWindow implements time.window: a pure function of its inputs (no
// external I/O), per spec.md §4.1 and the purity law in spec.md §8.
type TimeWindow struct{}

func (t *TimeWindow) Name() string { return "time.window" }
func (t *TimeWindow) Description() string {
	return "Resolve a start/end date window for a granularity (daily, weekly, monthly, yearly)."
}
func (t *TimeWindow) InputSchema() map[string]string {
	return map[string]string{"granularity": "string", "now": "string?", "offset": "int?"}
}

func (t *TimeWindow) Execute(_ context.Context, input map[string]any) (map[string]any, error) {
	granularity, _ := input["granularity"].(string)

	now := time.Now().UTC()
	if s, ok := input["now"].(string); ok && s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			parsed, err = time.Parse("2006-01-02", s)
			if err != nil {
				return nil, fmt.Errorf("time.window: invalid now %q: %w", s, err)
			}
		}
		now = parsed.UTC()
	}

	offset := 0
	if o, ok := input["offset"].(float64); ok {
		offset = int(o)
	} else if o, ok := input["offset"].(int); ok {
		offset = o
	}

	start, end, label, err := resolveWindow(granularity, now, offset)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"start_date": start.Format("2006-01-02"),
		"end_date":   end.Format("2006-01-02"),
		"label":      label,
	}, nil
}

func resolveWindow(granularity string, now time.Time, offset int) (time.Time, time.Time, string, error) {
	switch granularity {
	case "daily":
		day := now.AddDate(0, 0, offset)
		start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
		return start, start, start.Format("2006-01-02"), nil
	case "weekly":
		day := now.AddDate(0, 0, offset*7)
		weekday := int(day.Weekday())
		if weekday == 0 {
			weekday = 7 // ISO week starts Monday
		}
		start := day.AddDate(0, 0, -(weekday - 1))
		start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 0, 6)
		return start, end, fmt.Sprintf("week of %s", start.Format("2006-01-02")), nil
	case "monthly":
		month := now.AddDate(0, offset, 0)
		start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, -1)
		return start, end, start.Format("2006-01"), nil
	case "yearly":
		year := now.AddDate(offset, 0, 0)
		start := time.Date(year.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(year.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
		return start, end, fmt.Sprintf("%d", year.Year()), nil
	default:
		return time.Time{}, time.Time{}, "", fmt.Errorf("time.window: unknown granularity %q", granularity)
	}
}
