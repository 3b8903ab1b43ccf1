package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskpilot/pkg/models"
)

// ErrConversationNotFound is returned when a conversation does not exist or
// belongs to a different user.
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationSummary is the listing shape for conversation browsing
type ConversationSummary struct {
	ID           uuid.UUID `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
	Preview      *string   `json:"preview"`
}

// Store is the conversation persistence contract the chat service consumes
type Store interface {
	CreateConversation(ctx context.Context, userID uuid.UUID) (*models.Conversation, error)
	GetConversation(ctx context.Context, id, userID uuid.UUID) (*models.Conversation, error)
	Touch(ctx context.Context, id uuid.UUID) error
	AppendMessage(ctx context.Context, conversationID uuid.UUID, role, content string, toolCalls []models.ToolCall) (*models.Message, error)
	Recent(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error)
	Messages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error)
	SaveExchange(ctx context.Context, conversationID uuid.UUID, userContent, assistantContent string, toolCalls []models.ToolCall) error
	ListConversations(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ConversationSummary, int, error)
}

// Storage implements Store over Postgres
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new storage instance
func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// CreateConversation creates a new conversation for a user
func (s *Storage) CreateConversation(ctx context.Context, userID uuid.UUID) (*models.Conversation, error) {
	conv := &models.Conversation{
		ID:     uuid.New(),
		UserID: userID,
	}

	query := `
	INSERT INTO conversations (id, user_id, created_at, last_activity)
	VALUES ($1, $2, NOW(), NOW())
	RETURNING created_at, last_activity
	`

	err := s.db.QueryRowContext(ctx, query, conv.ID, conv.UserID).
		Scan(&conv.CreatedAt, &conv.LastActivity)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return conv, nil
}

// GetConversation returns a conversation by id, scoped to the owner
func (s *Storage) GetConversation(ctx context.Context, id, userID uuid.UUID) (*models.Conversation, error) {
	query := `
	SELECT id, user_id, created_at, last_activity
	FROM conversations
	WHERE id = $1 AND user_id = $2
	`

	var conv models.Conversation
	err := s.db.QueryRowContext(ctx, query, id, userID).
		Scan(&conv.ID, &conv.UserID, &conv.CreatedAt, &conv.LastActivity)
	if err == sql.ErrNoRows {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return &conv, nil
}

// Touch advances the conversation's last-activity timestamp
func (s *Storage) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET last_activity = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

// AppendMessage appends one message to a conversation
func (s *Storage) AppendMessage(ctx context.Context, conversationID uuid.UUID, role, content string, toolCalls []models.ToolCall) (*models.Message, error) {
	return appendMessage(ctx, s.db, conversationID, role, content, toolCalls)
}

// queryer covers *sql.DB and *sql.Tx
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func appendMessage(ctx context.Context, q queryer, conversationID uuid.UUID, role, content string, toolCalls []models.ToolCall) (*models.Message, error) {
	msg := &models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		ToolCalls:      toolCalls,
	}

	var toolCallsJSON interface{}
	if len(toolCalls) > 0 {
		raw, err := json.Marshal(toolCalls)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tool calls: %w", err)
		}
		toolCallsJSON = raw
	}

	query := `
	INSERT INTO messages (id, conversation_id, role, content, tool_calls, created_at)
	VALUES ($1, $2, $3, $4, $5, NOW())
	RETURNING created_at
	`

	err := q.QueryRowContext(ctx, query, msg.ID, msg.ConversationID, msg.Role, msg.Content, toolCallsJSON).
		Scan(&msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	return msg, nil
}

// SaveExchange persists the user and assistant messages of one completed
// exchange plus the activity bump as a single transaction, so a crash never
// leaves half a conversation turn behind.
func (s *Storage) SaveExchange(ctx context.Context, conversationID uuid.UUID, userContent, assistantContent string, toolCalls []models.ToolCall) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := appendMessage(ctx, tx, conversationID, models.RoleUser, userContent, nil); err != nil {
		return err
	}

	if _, err := appendMessage(ctx, tx, conversationID, models.RoleAssistant, assistantContent, toolCalls); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET last_activity = NOW() WHERE id = $1`, conversationID); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit exchange: %w", err)
	}

	return nil
}

// Recent returns the most recent messages of a conversation up to limit,
// reordered oldest-first for context building.
func (s *Storage) Recent(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	query := `
	SELECT id, conversation_id, role, content, tool_calls, created_at
	FROM messages
	WHERE conversation_id = $1
	ORDER BY created_at DESC
	LIMIT $2
	`

	messages, err := s.queryMessages(ctx, query, conversationID, limit)
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// Messages returns a conversation's messages oldest-first up to limit
func (s *Storage) Messages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	query := `
	SELECT id, conversation_id, role, content, tool_calls, created_at
	FROM messages
	WHERE conversation_id = $1
	ORDER BY created_at ASC
	LIMIT $2
	`

	return s.queryMessages(ctx, query, conversationID, limit)
}

func (s *Storage) queryMessages(ctx context.Context, query string, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var toolCallsJSON []byte
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content,
			&toolCallsJSON, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if len(toolCallsJSON) > 0 {
			if err := json.Unmarshal(toolCallsJSON, &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("failed to decode tool calls: %w", err)
			}
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	return messages, nil
}

// ListConversations returns the user's conversations ordered by last
// activity, newest first, with message counts and a first-user-message
// preview, plus the total count for pagination.
func (s *Storage) ListConversations(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ConversationSummary, int, error) {
	query := `
	SELECT c.id, c.created_at, c.last_activity,
	       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id),
	       (SELECT m.content FROM messages m
	        WHERE m.conversation_id = c.id AND m.role = 'user'
	        ORDER BY m.created_at ASC LIMIT 1)
	FROM conversations c
	WHERE c.user_id = $1
	ORDER BY c.last_activity DESC
	LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	summaries := []ConversationSummary{}
	for rows.Next() {
		var summary ConversationSummary
		var preview sql.NullString
		if err := rows.Scan(&summary.ID, &summary.CreatedAt, &summary.LastActivity,
			&summary.MessageCount, &preview); err != nil {
			return nil, 0, fmt.Errorf("failed to scan conversation: %w", err)
		}
		if preview.Valid {
			summary.Preview = &preview.String
		}
		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read conversations: %w", err)
	}

	var total int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE user_id = $1`, userID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	return summaries, total, nil
}
