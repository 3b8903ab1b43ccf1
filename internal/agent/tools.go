package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/taskpilot/internal/tasks"
)

// NewTaskTools builds the five task capabilities bound to one owner and one
// storage handle. The returned tools are what a per-request registry is
// constructed from.
func NewTaskTools(owner uuid.UUID, store tasks.Store) []Tool {
	return []Tool{
		&addTaskTool{owner: owner, store: store},
		&listTasksTool{owner: owner, store: store},
		&updateTaskTool{owner: owner, store: store},
		&deleteTaskTool{owner: owner, store: store},
		&completeTaskTool{owner: owner, store: store},
	}
}

// parseTaskID validates a model-supplied task identifier
func parseTaskID(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func storeFailure(toolName string, err error) Result {
	if errors.Is(err, tasks.ErrNotFound) {
		return Failure(CategoryNotFound, "Task not found")
	}
	log.Error().Err(err).Str("tool", toolName).Msg("Tool storage operation failed")
	return Failure(CategoryExecutionError, "Tool execution failed")
}

// add_task

type addTaskTool struct {
	owner uuid.UUID
	store tasks.Store
}

func (t *addTaskTool) Name() string { return "add_task" }

func (t *addTaskTool) Description() string {
	return "Create a new task for the authenticated user"
}

func (t *addTaskTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"title": map[string]interface{}{
				"type":        "string",
				"description": "The task title/description (1-500 characters)",
			},
		},
		"required": []string{"title"},
	}
}

func (t *addTaskTool) Call(ctx context.Context, args json.RawMessage) Result {
	var in struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Failure(CategoryInvalidInput, "Invalid arguments for add_task")
	}

	if err := tasks.ValidateTitle(in.Title); err != nil {
		return Failure(CategoryInvalidInput, capitalize(err.Error()))
	}

	task, err := t.store.Create(ctx, t.owner, strings.TrimSpace(in.Title))
	if err != nil {
		return storeFailure(t.Name(), err)
	}

	return Success(map[string]interface{}{
		"task_id":    task.ID.String(),
		"title":      task.Title,
		"created_at": task.CreatedAt.Format(time.RFC3339),
	})
}

// list_tasks

type listTasksTool struct {
	owner uuid.UUID
	store tasks.Store
}

func (t *listTasksTool) Name() string { return "list_tasks" }

func (t *listTasksTool) Description() string {
	return "Retrieve tasks for the authenticated user with optional filtering"
}

func (t *listTasksTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"filter": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"all", "completed", "incomplete"},
				"description": "Filter tasks by completion status (default: all)",
			},
		},
		"required": []string{},
	}
}

func (t *listTasksTool) Call(ctx context.Context, args json.RawMessage) Result {
	var in struct {
		Filter string `json:"filter"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Failure(CategoryInvalidInput, "Invalid arguments for list_tasks")
	}

	filter, err := tasks.ParseFilter(in.Filter)
	if err != nil {
		return Failure(CategoryInvalidInput, "Filter must be one of: all, completed, incomplete")
	}

	items, err := t.store.List(ctx, t.owner, filter)
	if err != nil {
		return storeFailure(t.Name(), err)
	}

	list := make([]map[string]interface{}, 0, len(items))
	for _, task := range items {
		list = append(list, map[string]interface{}{
			"id":           task.ID.String(),
			"title":        task.Title,
			"is_completed": task.Completed,
			"created_at":   task.CreatedAt.Format(time.RFC3339),
		})
	}

	return Success(map[string]interface{}{
		"tasks": list,
		"count": len(list),
	})
}

// update_task

type updateTaskTool struct {
	owner uuid.UUID
	store tasks.Store
}

func (t *updateTaskTool) Name() string { return "update_task" }

func (t *updateTaskTool) Description() string {
	return "Modify an existing task's title"
}

func (t *updateTaskTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task_id": map[string]interface{}{
				"type":        "string",
				"description": "ID of the task to update",
			},
			"title": map[string]interface{}{
				"type":        "string",
				"description": "New title for the task (1-500 characters)",
			},
		},
		"required": []string{"task_id", "title"},
	}
}

func (t *updateTaskTool) Call(ctx context.Context, args json.RawMessage) Result {
	var in struct {
		TaskID string `json:"task_id"`
		Title  string `json:"title"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Failure(CategoryInvalidInput, "Invalid arguments for update_task")
	}

	if err := tasks.ValidateTitle(in.Title); err != nil {
		return Failure(CategoryInvalidInput, capitalize(err.Error()))
	}

	id, ok := parseTaskID(in.TaskID)
	if !ok {
		return Failure(CategoryInvalidInput, "Invalid task ID format")
	}

	existing, err := t.store.Get(ctx, id, t.owner)
	if err != nil {
		return storeFailure(t.Name(), err)
	}
	oldTitle := existing.Title

	updated, err := t.store.UpdateTitle(ctx, id, t.owner, strings.TrimSpace(in.Title))
	if err != nil {
		return storeFailure(t.Name(), err)
	}

	return Success(map[string]interface{}{
		"task_id":   updated.ID.String(),
		"old_title": oldTitle,
		"new_title": updated.Title,
	})
}

// delete_task

type deleteTaskTool struct {
	owner uuid.UUID
	store tasks.Store
}

func (t *deleteTaskTool) Name() string { return "delete_task" }

func (t *deleteTaskTool) Description() string {
	return "Remove a task from the user's list"
}

func (t *deleteTaskTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task_id": map[string]interface{}{
				"type":        "string",
				"description": "ID of the task to delete",
			},
		},
		"required": []string{"task_id"},
	}
}

func (t *deleteTaskTool) Call(ctx context.Context, args json.RawMessage) Result {
	var in struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Failure(CategoryInvalidInput, "Invalid arguments for delete_task")
	}

	id, ok := parseTaskID(in.TaskID)
	if !ok {
		return Failure(CategoryInvalidInput, "Invalid task ID format")
	}

	existing, err := t.store.Get(ctx, id, t.owner)
	if err != nil {
		return storeFailure(t.Name(), err)
	}

	if err := t.store.Delete(ctx, id, t.owner); err != nil {
		return storeFailure(t.Name(), err)
	}

	return Success(map[string]interface{}{
		"task_id": id.String(),
		"title":   existing.Title,
	})
}

// complete_task

type completeTaskTool struct {
	owner uuid.UUID
	store tasks.Store
}

func (t *completeTaskTool) Name() string { return "complete_task" }

func (t *completeTaskTool) Description() string {
	return "Toggle a task's completion status"
}

func (t *completeTaskTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task_id": map[string]interface{}{
				"type":        "string",
				"description": "ID of the task to complete/uncomplete",
			},
			"is_completed": map[string]interface{}{
				"type":        "boolean",
				"description": "Target completion state (true=complete, false=incomplete)",
			},
		},
		"required": []string{"task_id", "is_completed"},
	}
}

func (t *completeTaskTool) Call(ctx context.Context, args json.RawMessage) Result {
	var in struct {
		TaskID      string `json:"task_id"`
		IsCompleted *bool  `json:"is_completed"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Failure(CategoryInvalidInput, "Invalid arguments for complete_task")
	}

	if in.IsCompleted == nil {
		return Failure(CategoryInvalidInput, "is_completed is required")
	}

	id, ok := parseTaskID(in.TaskID)
	if !ok {
		return Failure(CategoryInvalidInput, "Invalid task ID format")
	}

	existing, err := t.store.Get(ctx, id, t.owner)
	if err != nil {
		return storeFailure(t.Name(), err)
	}

	// Already in the requested state: informational success, no mutation
	if existing.Completed == *in.IsCompleted {
		state := "incomplete"
		if existing.Completed {
			state = "complete"
		}
		return SuccessMessage("Task is already "+state, map[string]interface{}{
			"task_id":      id.String(),
			"title":        existing.Title,
			"is_completed": existing.Completed,
		})
	}

	updated, err := t.store.SetCompleted(ctx, id, t.owner, *in.IsCompleted)
	if err != nil {
		return storeFailure(t.Name(), err)
	}

	return Success(map[string]interface{}{
		"task_id":      updated.ID.String(),
		"title":        updated.Title,
		"is_completed": updated.Completed,
	})
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
