package notify

import (
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/reportforge/reportengine/internal/models"
)

const maxBlockTextLength = 2900

var statusEmoji = map[models.ExecutionStatus]string{
	models.StatusCompleted: ":white_check_mark:",
	models.StatusFailed:    ":x:",
	models.StatusCancelled: ":no_entry_sign:",
}

var statusLabel = map[models.ExecutionStatus]string{
	models.StatusCompleted: "Report Ready",
	models.StatusFailed:    "Report Execution Failed",
	models.StatusCancelled: "Report Execution Cancelled",
}

// BuildSummaryMessage builds the Block Kit body for a Finalize-phase
// notification: status, failed-placeholder count, and a link to the
// delivered artifact when one exists.
func BuildSummaryMessage(exec models.TaskExecution, taskName, reportURL string) []goslack.Block {
	emoji := statusEmoji[exec.Status]
	if emoji == "" {
		emoji = ":question:"
	}
	label := statusLabel[exec.Status]
	if label == "" {
		label = "Report Execution " + string(exec.Status)
	}

	headerText := fmt.Sprintf("%s *%s* — %s", emoji, label, taskName)

	var blocks []goslack.Block
	blocks = append(blocks, goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
		nil, nil,
	))

	if len(exec.Result.FailedPlaceholders) > 0 {
		text := fmt.Sprintf("*Failed placeholders (%d):*\n%s",
			len(exec.Result.FailedPlaceholders),
			truncate(joinList(exec.Result.FailedPlaceholders), maxBlockTextLength))
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		))
	}

	if exec.Error != "" {
		text := fmt.Sprintf("*Error:*\n%s", truncate(exec.Error, maxBlockTextLength))
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		))
	}

	if reportURL != "" {
		btn := goslack.NewButtonBlockElement("", "",
			goslack.NewTextBlockObject(goslack.PlainTextType, "View Report", false, false))
		btn.URL = reportURL
		blocks = append(blocks, goslack.NewActionBlock("", btn))
	}

	return blocks
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

func joinList(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ", "
		}
		out += item
	}
	return out
}
