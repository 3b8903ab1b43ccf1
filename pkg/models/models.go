package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// User represents an account that owns tasks and conversations
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"` // Never expose password hash in JSON
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Task represents a single todo item owned by a user
type Task struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"-" db:"user_id"`
	Title     string    `json:"title" db:"title"`
	Completed bool      `json:"completed" db:"completed"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Conversation represents a chat session between a user and the assistant
type Conversation struct {
	ID           uuid.UUID `json:"id" db:"id"`
	UserID       uuid.UUID `json:"-" db:"user_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	LastActivity time.Time `json:"last_activity" db:"last_activity"`
}

// Message roles. Tool-role entries are synthesized inside the orchestration
// loop and never replayed from storage, but the role is persisted as-is.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a single entry in a conversation. Messages are immutable
// once created and ordered by creation time within their conversation.
type Message struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	ConversationID uuid.UUID  `json:"-" db:"conversation_id"`
	Role           string     `json:"role" db:"role"`
	Content        string     `json:"content" db:"content"`
	ToolCalls      []ToolCall `json:"tool_calls,omitempty" db:"tool_calls"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// ToolCall records one capability invocation performed during an exchange.
// It is only ever embedded in an assistant message, never stored standalone.
type ToolCall struct {
	Tool   string          `json:"tool"`
	Input  json.RawMessage `json:"input"`
	Output json.RawMessage `json:"output"`
	Status string          `json:"status"` // "success" or "error"
}
