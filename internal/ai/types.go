package ai

import (
	"context"
	"fmt"
)

// Message is one provider-neutral conversation turn.
type Message struct {
	Role       string
	Content    string
	ImageData  string // data URL attached to user turns
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a function invocation requested by the model. The ID is
// provider-assigned and must round-trip unchanged into the matching
// tool-result message.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool declares one callable function to the model.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Result is the inspected first choice of a chat completion.
type Result struct {
	Content   string
	ToolCalls []ToolCall
}

type Provider interface {
	Chat(ctx context.Context, messages []Message, tools []Tool) (*Result, error)
}

// ProviderError carries the HTTP status and any diagnostic body the
// provider returned, so callers can surface it.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
}
