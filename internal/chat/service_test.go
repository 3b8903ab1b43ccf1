package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/taskpilot/internal/agent"
	"github.com/taskpilot/internal/llm"
	"github.com/taskpilot/internal/tasks"
	"github.com/taskpilot/pkg/models"
)

// memStore is an in-memory Store for service tests
type memStore struct {
	conversations map[uuid.UUID]*models.Conversation
	messages      map[uuid.UUID][]models.Message
	saveErr       error
}

func newMemStore() *memStore {
	return &memStore{
		conversations: make(map[uuid.UUID]*models.Conversation),
		messages:      make(map[uuid.UUID][]models.Message),
	}
}

func (m *memStore) CreateConversation(ctx context.Context, userID uuid.UUID) (*models.Conversation, error) {
	conv := &models.Conversation{
		ID:           uuid.New(),
		UserID:       userID,
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
	}
	m.conversations[conv.ID] = conv
	return conv, nil
}

func (m *memStore) GetConversation(ctx context.Context, id, userID uuid.UUID) (*models.Conversation, error) {
	conv, ok := m.conversations[id]
	if !ok || conv.UserID != userID {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

func (m *memStore) Touch(ctx context.Context, id uuid.UUID) error {
	if conv, ok := m.conversations[id]; ok {
		conv.LastActivity = time.Now()
	}
	return nil
}

func (m *memStore) AppendMessage(ctx context.Context, conversationID uuid.UUID, role, content string, toolCalls []models.ToolCall) (*models.Message, error) {
	msg := models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		ToolCalls:      toolCalls,
		CreatedAt:      time.Now(),
	}
	m.messages[conversationID] = append(m.messages[conversationID], msg)
	return &msg, nil
}

func (m *memStore) Recent(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	all := m.messages[conversationID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (m *memStore) Messages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	all := m.messages[conversationID]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *memStore) SaveExchange(ctx context.Context, conversationID uuid.UUID, userContent, assistantContent string, toolCalls []models.ToolCall) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.AppendMessage(ctx, conversationID, models.RoleUser, userContent, nil)
	m.AppendMessage(ctx, conversationID, models.RoleAssistant, assistantContent, toolCalls)
	return m.Touch(ctx, conversationID)
}

func (m *memStore) ListConversations(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ConversationSummary, int, error) {
	var summaries []ConversationSummary
	for _, conv := range m.conversations {
		if conv.UserID != userID {
			continue
		}
		summaries = append(summaries, ConversationSummary{
			ID:           conv.ID,
			CreatedAt:    conv.CreatedAt,
			LastActivity: conv.LastActivity,
			MessageCount: len(m.messages[conv.ID]),
		})
	}
	return summaries, len(summaries), nil
}

// memTasks is a minimal in-memory task store
type memTasks struct {
	tasks map[uuid.UUID]*models.Task
}

func newMemTasks() *memTasks {
	return &memTasks{tasks: make(map[uuid.UUID]*models.Task)}
}

func (m *memTasks) Create(ctx context.Context, userID uuid.UUID, title string) (*models.Task, error) {
	task := &models.Task{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.tasks[task.ID] = task
	return task, nil
}

func (m *memTasks) List(ctx context.Context, userID uuid.UUID, filter tasks.Filter) ([]models.Task, error) {
	var result []models.Task
	for _, task := range m.tasks {
		if task.UserID != userID {
			continue
		}
		if filter == tasks.FilterCompleted && !task.Completed {
			continue
		}
		if filter == tasks.FilterIncomplete && task.Completed {
			continue
		}
		result = append(result, *task)
	}
	return result, nil
}

func (m *memTasks) Get(ctx context.Context, id, userID uuid.UUID) (*models.Task, error) {
	task, ok := m.tasks[id]
	if !ok || task.UserID != userID {
		return nil, tasks.ErrNotFound
	}
	return task, nil
}

func (m *memTasks) UpdateTitle(ctx context.Context, id, userID uuid.UUID, title string) (*models.Task, error) {
	task, err := m.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	task.Title = title
	return task, nil
}

func (m *memTasks) Delete(ctx context.Context, id, userID uuid.UUID) error {
	if _, err := m.Get(ctx, id, userID); err != nil {
		return err
	}
	delete(m.tasks, id)
	return nil
}

func (m *memTasks) SetCompleted(ctx context.Context, id, userID uuid.UUID, completed bool) (*models.Task, error) {
	task, err := m.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	task.Completed = completed
	return task, nil
}

// fakeGateway replays a fixed sequence of model turns, repeating the last
// one when the script runs out.
type fakeGateway struct {
	script []gatewayTurn
	calls  int
	seen   [][]llms.MessageContent
}

type gatewayTurn struct {
	text      string
	toolCalls []llms.ToolCall
	err       error
}

func (g *fakeGateway) Complete(ctx context.Context, messages []llms.MessageContent, tools []llms.Tool) (*llm.Completion, error) {
	g.seen = append(g.seen, messages)
	g.calls++

	idx := g.calls - 1
	if idx >= len(g.script) {
		idx = len(g.script) - 1
	}
	turn := g.script[idx]
	if turn.err != nil {
		return nil, turn.err
	}
	return &llm.Completion{Text: turn.text, ToolCalls: turn.toolCalls}, nil
}

func call(id, name, args string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestProcessMessage_NewConversation(t *testing.T) {
	store := newMemStore()
	taskStore := newMemTasks()
	owner := uuid.New()

	gateway := &fakeGateway{script: []gatewayTurn{
		{toolCalls: []llms.ToolCall{call("c1", "add_task", `{"title": "buy milk"}`)}},
		{text: "Added \"buy milk\" to your list."},
	}}

	service := NewService(store, taskStore, gateway, 5, 20)

	reply, err := service.ProcessMessage(context.Background(), owner, "add buy milk", nil)
	require.NoError(t, err)

	assert.Equal(t, "Added \"buy milk\" to your list.", reply.Response)
	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, "add_task", reply.ToolCalls[0].Tool)
	assert.Equal(t, "success", reply.ToolCalls[0].Status)

	// A conversation was created and both messages persisted
	messages := store.messages[reply.ConversationID]
	require.Len(t, messages, 2)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Equal(t, "add buy milk", messages[0].Content)
	assert.Equal(t, models.RoleAssistant, messages[1].Role)
	require.Len(t, messages[1].ToolCalls, 1)

	// The task really exists
	items, err := taskStore.List(context.Background(), owner, tasks.FilterAll)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "buy milk", items[0].Title)
}

func TestProcessMessage_ExistingConversationHistory(t *testing.T) {
	store := newMemStore()
	owner := uuid.New()
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, owner)
	require.NoError(t, err)
	store.AppendMessage(ctx, conv.ID, models.RoleUser, "hello", nil)
	store.AppendMessage(ctx, conv.ID, models.RoleAssistant, "Hi! How can I help?", nil)

	gateway := &fakeGateway{script: []gatewayTurn{{text: "You said hello."}}}
	service := NewService(store, newMemTasks(), gateway, 5, 20)

	reply, err := service.ProcessMessage(ctx, owner, "what did I say?", &conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, reply.ConversationID)

	// system + 2 history entries + new message
	require.Len(t, gateway.seen, 1)
	assert.Len(t, gateway.seen[0], 4)

	// history grew to four persisted messages
	assert.Len(t, store.messages[conv.ID], 4)
}

func TestProcessMessage_ForeignConversation(t *testing.T) {
	store := newMemStore()
	stranger := uuid.New()
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, stranger)
	require.NoError(t, err)

	gateway := &fakeGateway{script: []gatewayTurn{{text: "hi"}}}
	service := NewService(store, newMemTasks(), gateway, 5, 20)

	_, err = service.ProcessMessage(ctx, uuid.New(), "hello", &conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
	assert.Equal(t, 0, gateway.calls, "no model call for a conversation the caller cannot see")
}

func TestProcessMessage_GatewayFailureLeavesNothing(t *testing.T) {
	store := newMemStore()
	owner := uuid.New()

	gateway := &fakeGateway{script: []gatewayTurn{{err: errors.New("upstream timeout")}}}
	service := NewService(store, newMemTasks(), gateway, 5, 20)

	_, err := service.ProcessMessage(context.Background(), owner, "hello", nil)
	assert.ErrorIs(t, err, agent.ErrAssistantUnavailable)

	// No messages were persisted anywhere
	for id, messages := range store.messages {
		assert.Empty(t, messages, "conversation %s should have no messages", id)
	}
}

func TestProcessMessage_HistoryLimitRespected(t *testing.T) {
	store := newMemStore()
	owner := uuid.New()
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, owner)
	require.NoError(t, err)
	for i := 0; i < 30; i++ {
		store.AppendMessage(ctx, conv.ID, models.RoleUser, fmt.Sprintf("message %d", i), nil)
	}

	gateway := &fakeGateway{script: []gatewayTurn{{text: "ok"}}}
	service := NewService(store, newMemTasks(), gateway, 5, 20)

	_, err = service.ProcessMessage(ctx, owner, "latest", &conv.ID)
	require.NoError(t, err)

	// system + 20 most recent + new message
	require.Len(t, gateway.seen, 1)
	assert.Len(t, gateway.seen[0], 22)
}

func TestGetConversation(t *testing.T) {
	store := newMemStore()
	owner := uuid.New()
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, owner)
	require.NoError(t, err)
	store.AppendMessage(ctx, conv.ID, models.RoleUser, "hi", nil)
	store.AppendMessage(ctx, conv.ID, models.RoleAssistant, "hello", nil)

	service := NewService(store, newMemTasks(), &fakeGateway{}, 5, 20)

	detail, err := service.GetConversation(ctx, owner, conv.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, detail.ID)
	require.Len(t, detail.Messages, 2)

	var contents []string
	for _, msg := range detail.Messages {
		contents = append(contents, msg.Content)
	}
	if diff := cmp.Diff([]string{"hi", "hello"}, contents); diff != "" {
		t.Errorf("messages out of order (-want +got):\n%s", diff)
	}

	_, err = service.GetConversation(ctx, uuid.New(), conv.ID, 100)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}
