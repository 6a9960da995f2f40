// Package agent implements the PTAV agent's external collaborator
// boundary (LLMClient) and the shared execution context threaded through
// Planner, StepExecutor, Validator, and PTAVOrchestrator.
package agent

import (
	"context"
	"errors"
)

// Conversation message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationMessage is one turn in the conversation sent to the LLM.
type ConversationMessage struct {
	Role    string
	Content string
}

// ResponseFormat constrains how the LLM must shape its reply.
type ResponseFormat string

const (
	ResponseFormatText       ResponseFormat = "text"
	ResponseFormatJSONObject ResponseFormat = "json_object"
)

// CompleteOptions carries the per-call knobs named in spec.md §6.
type CompleteOptions struct {
	ResponseFormat ResponseFormat
	Temperature    float64
	MaxTokens      int
	Timeout        int // seconds; 0 means the client's configured default
}

// Usage reports token consumption for one Complete call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// CompleteResult is the Go-side return value of LLMClient.Complete.
type CompleteResult struct {
	Content string
	Usage   Usage
}

// LLMClient is the external collaborator boundary consumed by Planner and
// (optionally) DocumentAssembler's content-optimization pass. Implementations
// live outside the pipeline's mandatory contract — the core never imports a
// provider SDK directly except through this interface.
type LLMClient interface {
	Complete(ctx context.Context, messages []ConversationMessage, options CompleteOptions) (CompleteResult, error)
	Close() error
}

// Sentinel error kinds from spec.md §6.
var (
	ErrLLMTimeout      = errors.New("llm timeout")
	ErrLLMRateLimit    = errors.New("llm rate limited")
	ErrLLMInvalidJSON  = errors.New("llm returned invalid json")
	ErrLLMProviderError = errors.New("llm provider error")
)
