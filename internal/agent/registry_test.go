package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, store *fakeStore, owner uuid.UUID) *Registry {
	t.Helper()
	registry, err := NewRegistry(NewTaskTools(owner, store)...)
	require.NoError(t, err)
	return registry
}

func TestRegistry_Catalog(t *testing.T) {
	registry := newTestRegistry(t, newFakeStore(), uuid.New())

	catalog := registry.Catalog()
	require.Len(t, catalog, 5)

	names := make([]string, 0, len(catalog))
	for _, tool := range catalog {
		assert.Equal(t, "function", tool.Type)
		require.NotNil(t, tool.Function)
		assert.NotEmpty(t, tool.Function.Description)
		assert.NotNil(t, tool.Function.Parameters)
		names = append(names, tool.Function.Name)
	}

	assert.Equal(t, []string{"add_task", "list_tasks", "update_task", "delete_task", "complete_task"}, names)
}

func TestRegistry_Resolve(t *testing.T) {
	registry := newTestRegistry(t, newFakeStore(), uuid.New())

	tool, ok := registry.Resolve("add_task")
	assert.True(t, ok)
	assert.Equal(t, "add_task", tool.Name())

	_, ok = registry.Resolve("launch_rocket")
	assert.False(t, ok)
}

func TestRegistry_ExecuteUnknownTool(t *testing.T) {
	registry := newTestRegistry(t, newFakeStore(), uuid.New())

	_, err := registry.Execute(context.Background(), "launch_rocket", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestRegistry_DuplicateName(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	tools := NewTaskTools(owner, store)

	_, err := NewRegistry(append(tools, tools[0])...)
	assert.Error(t, err)
}

type panickingTool struct{}

func (panickingTool) Name() string                        { return "panic_tool" }
func (panickingTool) Description() string                 { return "always panics" }
func (panickingTool) Parameters() map[string]interface{} { return map[string]interface{}{"type": "object"} }
func (panickingTool) Call(ctx context.Context, args json.RawMessage) Result {
	panic("boom")
}

func TestRegistry_ExecuteRecoversPanic(t *testing.T) {
	registry, err := NewRegistry(panickingTool{})
	require.NoError(t, err)

	result, err := registry.Execute(context.Background(), "panic_tool", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, CategoryExecutionError, result.Error)
}

func TestResult_MarshalFlattens(t *testing.T) {
	result := Success(map[string]interface{}{"task_id": "abc", "title": "buy milk"})

	raw, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "success", decoded["status"])
	assert.Equal(t, "abc", decoded["task_id"])
	assert.Equal(t, "buy milk", decoded["title"])
	assert.NotContains(t, decoded, "error")
	assert.NotContains(t, decoded, "message")

	failure := Failure(CategoryNotFound, "Task not found")
	raw, err = json.Marshal(failure)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "error", decoded["status"])
	assert.Equal(t, "not_found", decoded["error"])
	assert.Equal(t, "Task not found", decoded["message"])
}
