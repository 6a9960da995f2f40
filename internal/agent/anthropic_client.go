package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
)

// AnthropicLLMClient implements LLMClient on top of anthropic-sdk-go,
// substituting for the teacher's gRPC sidecar transport (see DESIGN.md for
// why the sidecar approach was dropped). Grounded on
// goadesign-goa-ai/features/model/anthropic/client.go's request/response
// translation, collapsed to the spec's single non-streaming Complete call.
type AnthropicLLMClient struct {
	client     sdk.Client
	model      string
	maxRetries int
}

// NewAnthropicLLMClient builds a client resolving its API key from the
// environment variable named apiKeyEnv.
func NewAnthropicLLMClient(apiKeyEnv, model string, maxRetries int) (*AnthropicLLMClient, error) {
	key := os.Getenv(apiKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("anthropic: environment variable %s is empty", apiKeyEnv)
	}
	c := sdk.NewClient(option.WithAPIKey(key))
	return &AnthropicLLMClient{client: c, model: model, maxRetries: maxRetries}, nil
}

// Complete sends messages to the configured model and returns the
// concatenated text of all its text blocks plus usage. System-role messages are hoisted into the request's
// top-level System field, matching Anthropic's message API shape.
func (c *AnthropicLLMClient) Complete(ctx context.Context, messages []ConversationMessage, opts CompleteOptions) (CompleteResult, error) {
	timeout := 120 * time.Second
	if opts.Timeout > 0 {
		timeout = time.Duration(opts.Timeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := c.prepareRequest(messages, opts)

	var resp *sdk.Message
	op := func() error {
		r, err := c.client.Messages.New(ctx, req)
		if err != nil {
			if isRateLimited(err) {
				return err // retried by backoff
			}
			return backoff.Permanent(translateError(err))
		}
		resp = r
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(maxInt(c.maxRetries, 0)))
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return CompleteResult{}, perm.Err
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return CompleteResult{}, ErrLLMTimeout
		}
		return CompleteResult{}, fmt.Errorf("%w: %v", ErrLLMRateLimit, err)
	}

	return translateResponse(resp), nil
}

// Close releases client resources. The SDK's http.Client has no explicit
// close; present for interface symmetry with teacher's GRPCLLMClient.Close.
func (c *AnthropicLLMClient) Close() error { return nil }

func (c *AnthropicLLMClient) prepareRequest(messages []ConversationMessage, opts CompleteOptions) sdk.MessageNewParams {
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	var system string
	var sdkMessages []sdk.MessageParam
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case RoleAssistant:
			sdkMessages = append(sdkMessages, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			sdkMessages = append(sdkMessages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}

	req := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: maxTokens,
		Messages:  sdkMessages,
	}
	if system != "" {
		req.System = []sdk.TextBlockParam{{Text: system}}
	}
	if opts.Temperature > 0 {
		req.Temperature = sdk.Float(opts.Temperature)
	}
	return req
}

func translateResponse(resp *sdk.Message) CompleteResult {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return CompleteResult{
		Content: sb.String(),
		Usage: Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
			TotalTokens:  int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
}

func translateError(err error) error {
	return fmt.Errorf("%w: %v", ErrLLMProviderError, err)
}

func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate_limit") || strings.Contains(msg, "429") || strings.Contains(msg, "overloaded")
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
