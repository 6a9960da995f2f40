// Package notify implements the best-effort Finalize-phase Slack
// notification supplemented in SPEC_FULL.md §4, adapted from the teacher's
// pkg/slack client/message pattern: a thin slack-go wrapper plus Block Kit
// message builders, generalized from session-analysis summaries to report
// execution summaries.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/reportforge/reportengine/internal/models"
)

// Client is a thin wrapper around the slack-go SDK.
type Client struct {
	api       *goslack.Client
	channelID string
	log       *slog.Logger
}

// NewClient creates a Slack client posting to channelID with the given bot
// token.
func NewClient(token, channelID string) *Client {
	return &Client{
		api:       goslack.New(token),
		channelID: channelID,
		log:       slog.Default().With("component", "notify.slack"),
	}
}

// PostMessage sends blocks to the configured channel, bounded by timeout.
func (c *Client) PostMessage(ctx context.Context, blocks []goslack.Block, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, _, err := c.api.PostMessageContext(ctx, c.channelID, goslack.MsgOptionBlocks(blocks...))
	if err != nil {
		return fmt.Errorf("notify: chat.postMessage failed: %w", err)
	}
	return nil
}

// NotifyFinalize posts a best-effort completion/failure summary for an
// execution at the end of Phase 8 (Finalize), per SPEC_FULL.md §4. Failures
// are logged, never returned, since a notification outage must not fail the
// pipeline (spec.md's collaborator boundary keeps Slack optional).
func (c *Client) NotifyFinalize(ctx context.Context, exec models.TaskExecution, taskName, reportURL string, timeout time.Duration) {
	blocks := BuildSummaryMessage(exec, taskName, reportURL)
	if err := c.PostMessage(ctx, blocks, timeout); err != nil {
		c.log.Warn("notify: finalize notification failed", "execution_id", exec.ID, "error", err)
	}
}
