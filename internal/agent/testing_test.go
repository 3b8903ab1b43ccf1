package agent

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"github.com/taskpilot/internal/llm"
	"github.com/taskpilot/internal/tasks"
	"github.com/taskpilot/pkg/models"
)

// fakeStore is an in-memory tasks.Store for tool and loop tests
type fakeStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]models.Task
	fail  error // when set, every call fails with this error
}

func newFakeStore() *fakeStore {
	return &fakeStore{items: make(map[uuid.UUID]models.Task)}
}

func (f *fakeStore) Create(ctx context.Context, userID uuid.UUID, title string) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	task := models.Task{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.items[task.ID] = task
	return &task, nil
}

func (f *fakeStore) List(ctx context.Context, userID uuid.UUID, filter tasks.Filter) ([]models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	var result []models.Task
	for _, task := range f.items {
		if task.UserID != userID {
			continue
		}
		if filter == tasks.FilterCompleted && !task.Completed {
			continue
		}
		if filter == tasks.FilterIncomplete && task.Completed {
			continue
		}
		result = append(result, task)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (f *fakeStore) Get(ctx context.Context, id, userID uuid.UUID) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	task, ok := f.items[id]
	if !ok || task.UserID != userID {
		return nil, tasks.ErrNotFound
	}
	return &task, nil
}

func (f *fakeStore) UpdateTitle(ctx context.Context, id, userID uuid.UUID, title string) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	task, ok := f.items[id]
	if !ok || task.UserID != userID {
		return nil, tasks.ErrNotFound
	}
	task.Title = title
	task.UpdatedAt = time.Now()
	f.items[id] = task
	return &task, nil
}

func (f *fakeStore) Delete(ctx context.Context, id, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	task, ok := f.items[id]
	if !ok || task.UserID != userID {
		return tasks.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeStore) SetCompleted(ctx context.Context, id, userID uuid.UUID, completed bool) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	task, ok := f.items[id]
	if !ok || task.UserID != userID {
		return nil, tasks.ErrNotFound
	}
	task.Completed = completed
	task.UpdatedAt = time.Now()
	f.items[id] = task
	return &task, nil
}

// fakeGateway replays a scripted sequence of completions and records every
// message sequence it was called with
type fakeGateway struct {
	script []scriptedTurn
	calls  int
	seen   [][]llms.MessageContent
}

type scriptedTurn struct {
	completion *llm.Completion
	err        error
}

func (g *fakeGateway) Complete(ctx context.Context, messages []llms.MessageContent, tools []llms.Tool) (*llm.Completion, error) {
	g.seen = append(g.seen, messages)
	turn := g.script[len(g.script)-1] // repeat the last turn once exhausted
	if g.calls < len(g.script) {
		turn = g.script[g.calls]
	}
	g.calls++
	return turn.completion, turn.err
}

func textTurn(text string) scriptedTurn {
	return scriptedTurn{completion: &llm.Completion{Text: text}}
}

func toolTurn(text string, calls ...llms.ToolCall) scriptedTurn {
	return scriptedTurn{completion: &llm.Completion{Text: text, ToolCalls: calls}}
}

func toolCall(id, name, args string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}
