package models

import (
	"encoding/json"
	"strings"
)

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"

	// roleModel is the backend's name for the assistant side.
	roleModel = "model"
)

// Valid reports whether r is one of the two allowed roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ParseRole maps a wire role onto Role. "model" is accepted as an alias for
// the assistant.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(RoleUser):
		return RoleUser, true
	case string(RoleAssistant), roleModel:
		return RoleAssistant, true
	}
	return "", false
}

// UnmarshalJSON normalises incoming roles; unknown values are kept verbatim
// so callers can reject them with Valid.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if parsed, ok := ParseRole(s); ok {
		*r = parsed
		return nil
	}
	*r = Role(s)
	return nil
}

// Message is one turn half. Values are never mutated after creation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ChatRequest is the body of POST /chat on both the relay and the backend.
type ChatRequest struct {
	Messages []Message `json:"messages"`
}

// ChatResponse is the reshaped relay reply. Recommendations and Analysis are
// passed through untouched and encode as null when absent.
type ChatResponse struct {
	Response        string          `json:"response"`
	Recommendations json.RawMessage `json:"recommendations"`
	Analysis        json.RawMessage `json:"analysis"`
}

// HasRecommendations reports whether the reply carries a non-null list.
func (r *ChatResponse) HasRecommendations() bool {
	return isPresent(r.Recommendations)
}

// HasAnalysis reports whether the reply carries a non-null analysis object.
func (r *ChatResponse) HasAnalysis() bool {
	return isPresent(r.Analysis)
}

func isPresent(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null"
}

// ErrorResponse is the relay's failure body. Response is set for upstream
// failures so clients can render it like a normal reply.
type ErrorResponse struct {
	Error    string `json:"error"`
	Response string `json:"response,omitempty"`
}
