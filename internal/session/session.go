// Package session drives the intake interview: it owns the per-case message
// history and partial records, routes each turn between asking, extracting
// and ending, and applies persisted results back into its working state.
package session

import (
	"strings"

	"github.com/atulwalsh/legal-intake-ai/internal/intake"
	"github.com/atulwalsh/legal-intake-ai/internal/llm"
)

// Message roles. Human turns map to the capability's user role.
const (
	RoleHuman     = "human"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// Message is one conversational turn. The sequence is append-only; a message
// is never mutated after it is added.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// State names for the per-turn machine.
type State string

const (
	StateConversing      State = "conversing"
	StateRoutingDecision State = "routing_decision"
	StateExtractingCase  State = "extracting_case"
	StateExtractingUser  State = "extracting_user"
	StateTerminated      State = "terminated"
)

// Route is the typed signal the conversational step returns. Anything the
// step cannot classify degrades to RouteAsk.
type Route string

const (
	RouteAsk         Route = "ask"
	RouteExtractCase Route = "extract_case"
	RouteExtractUser Route = "extract_user"
	RouteTerminate   Route = "terminate"
)

// SessionState is the orchestrator's working memory for one case.
type SessionState struct {
	CaseID         string             `json:"case_id"`
	CaseDocumentID string             `json:"case_document_id"`
	UserDocumentID string             `json:"user_document_id,omitempty"`
	State          State              `json:"state"`
	Case           *intake.CaseRecord `json:"case,omitempty"`
	User           *intake.UserInfo   `json:"user,omitempty"`
	Messages       []Message          `json:"messages"`
	ReadOnly       bool               `json:"read_only,omitempty"`
}

var terminationTokens = map[string]bool{
	"quit":      true,
	"exit":      true,
	"terminate": true,
}

// isTerminationToken matches the fixed token set, case-insensitively and
// ignoring surrounding whitespace.
func isTerminationToken(text string) bool {
	return terminationTokens[strings.ToLower(strings.TrimSpace(text))]
}

// chatHistory converts human and assistant turns for the capability call.
// Tool and system turns never reach the model this way.
func chatHistory(messages []Message) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleHuman:
			out = append(out, llm.ChatMessage{Role: llm.ChatRoleUser, Content: msg.Content})
		case RoleAssistant:
			out = append(out, llm.ChatMessage{Role: llm.ChatRoleAssistant, Content: msg.Content})
		}
	}
	return out
}
