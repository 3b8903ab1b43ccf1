package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/taskpilot/internal/agent"
	"github.com/taskpilot/internal/llm"
	"github.com/taskpilot/internal/tasks"
	"github.com/taskpilot/pkg/models"
)

// Reply is the caller-facing response shape for one exchange
type Reply struct {
	Response       string            `json:"response"`
	ConversationID uuid.UUID         `json:"conversation_id"`
	ToolCalls      []models.ToolCall `json:"tool_calls"`
}

// ConversationDetail is a conversation with its message history
type ConversationDetail struct {
	ID           uuid.UUID        `json:"id"`
	CreatedAt    time.Time        `json:"created_at"`
	LastActivity time.Time        `json:"last_activity"`
	Messages     []models.Message `json:"messages"`
}

// ConversationList is a paginated conversation listing
type ConversationList struct {
	Conversations []ConversationSummary `json:"conversations"`
	Total         int                   `json:"total"`
}

// Service orchestrates one chat exchange: conversation resolution, history
// loading, the agent run, and persistence. Constructed once at startup;
// each call builds a fresh per-request registry bound to the caller.
type Service struct {
	store        Store
	taskStore    tasks.Store
	gateway      llm.Gateway
	maxRounds    int
	historyLimit int
}

// NewService creates a chat service
func NewService(store Store, taskStore tasks.Store, gateway llm.Gateway, maxRounds, historyLimit int) *Service {
	return &Service{
		store:        store,
		taskStore:    taskStore,
		gateway:      gateway,
		maxRounds:    maxRounds,
		historyLimit: historyLimit,
	}
}

// ProcessMessage handles one user message. When conversationID is nil a new
// conversation is created. Nothing is persisted unless the agent run
// completes; a gateway failure aborts the exchange with
// agent.ErrAssistantUnavailable and leaves no partial record.
func (s *Service) ProcessMessage(ctx context.Context, userID uuid.UUID, message string, conversationID *uuid.UUID) (*Reply, error) {
	conv, err := s.resolveConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	history, err := s.store.Recent(ctx, conv.ID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	// Fresh registry per request with the caller's identity bound in
	registry, err := agent.NewRegistry(agent.NewTaskTools(userID, s.taskStore)...)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}

	outcome, err := agent.New(s.gateway, registry, s.maxRounds).Run(ctx, message, history)
	if err != nil {
		log.Error().Err(err).
			Str("conversation_id", conv.ID.String()).
			Msg("Agent run failed")
		return nil, err
	}

	if err := s.store.SaveExchange(ctx, conv.ID, message, outcome.Response, outcome.Ledger); err != nil {
		return nil, fmt.Errorf("failed to persist exchange: %w", err)
	}

	log.Info().
		Str("conversation_id", conv.ID.String()).
		Int("tool_calls", len(outcome.Ledger)).
		Msg("Chat exchange completed")

	return &Reply{
		Response:       outcome.Response,
		ConversationID: conv.ID,
		ToolCalls:      outcome.Ledger,
	}, nil
}

func (s *Service) resolveConversation(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID) (*models.Conversation, error) {
	if conversationID != nil {
		return s.store.GetConversation(ctx, *conversationID, userID)
	}
	return s.store.CreateConversation(ctx, userID)
}

// ListConversations returns the user's conversations, most recently active
// first.
func (s *Service) ListConversations(ctx context.Context, userID uuid.UUID, limit, offset int) (*ConversationList, error) {
	summaries, total, err := s.store.ListConversations(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &ConversationList{Conversations: summaries, Total: total}, nil
}

// GetConversation returns a conversation with its messages oldest-first
func (s *Service) GetConversation(ctx context.Context, userID, conversationID uuid.UUID, messageLimit int) (*ConversationDetail, error) {
	conv, err := s.store.GetConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	messages, err := s.store.Messages(ctx, conv.ID, messageLimit)
	if err != nil {
		return nil, err
	}

	return &ConversationDetail{
		ID:           conv.ID,
		CreatedAt:    conv.CreatedAt,
		LastActivity: conv.LastActivity,
		Messages:     messages,
	}, nil
}
