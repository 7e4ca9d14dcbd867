// Package llm is the boundary to the language-model capability. The rest of
// the system speaks only through Client; provider wiring stays here.
package llm

import "context"

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
	ChatRoleTool      = "tool"
)

// ChatMessage is an internal message representation that can include system prompts.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

type Request struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type Response struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// Client completes a chat request against a language model.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ImageReader extracts visible text from an image. An image with no legible
// text yields an empty string, not an error.
type ImageReader interface {
	ReadImageText(ctx context.Context, imageBytes []byte, mimeType string) (string, error)
}
