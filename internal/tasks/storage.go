package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/taskpilot/pkg/models"
)

// ErrNotFound is returned when a task does not exist or is owned by a
// different user. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("task not found")

// Filter restricts a task listing by completion state
type Filter string

const (
	FilterAll        Filter = "all"
	FilterCompleted  Filter = "completed"
	FilterIncomplete Filter = "incomplete"
)

// ParseFilter validates a filter value. The empty string means all.
func ParseFilter(s string) (Filter, error) {
	switch Filter(s) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterCompleted:
		return FilterCompleted, nil
	case FilterIncomplete:
		return FilterIncomplete, nil
	default:
		return "", fmt.Errorf("invalid filter: %s", s)
	}
}

// Store is the task storage contract. Every lookup is scoped by
// (id, owner) so a caller can never observe another owner's tasks.
type Store interface {
	Create(ctx context.Context, userID uuid.UUID, title string) (*models.Task, error)
	List(ctx context.Context, userID uuid.UUID, filter Filter) ([]models.Task, error)
	Get(ctx context.Context, id, userID uuid.UUID) (*models.Task, error)
	UpdateTitle(ctx context.Context, id, userID uuid.UUID, title string) (*models.Task, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
	SetCompleted(ctx context.Context, id, userID uuid.UUID, completed bool) (*models.Task, error)
}

// Storage implements Store over Postgres
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new storage instance
func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// Create inserts a new task for the user
func (s *Storage) Create(ctx context.Context, userID uuid.UUID, title string) (*models.Task, error) {
	task := &models.Task{
		ID:     uuid.New(),
		UserID: userID,
		Title:  title,
	}

	query := `
	INSERT INTO tasks (id, user_id, title, completed, created_at, updated_at)
	VALUES ($1, $2, $3, FALSE, NOW(), NOW())
	RETURNING created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query, task.ID, task.UserID, task.Title).
		Scan(&task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return task, nil
}

// List returns the user's tasks newest-first, restricted by filter
func (s *Storage) List(ctx context.Context, userID uuid.UUID, filter Filter) ([]models.Task, error) {
	query := `
	SELECT id, user_id, title, completed, created_at, updated_at
	FROM tasks
	WHERE user_id = $1
	`

	switch filter {
	case FilterCompleted:
		query += " AND completed = TRUE"
	case FilterIncomplete:
		query += " AND completed = FALSE"
	}

	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var result []models.Task
	for rows.Next() {
		var task models.Task
		if err := rows.Scan(&task.ID, &task.UserID, &task.Title, &task.Completed,
			&task.CreatedAt, &task.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		result = append(result, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}

	return result, nil
}

// Get returns a task by id, scoped to the owner
func (s *Storage) Get(ctx context.Context, id, userID uuid.UUID) (*models.Task, error) {
	query := `
	SELECT id, user_id, title, completed, created_at, updated_at
	FROM tasks
	WHERE id = $1 AND user_id = $2
	`

	var task models.Task
	err := s.db.QueryRowContext(ctx, query, id, userID).
		Scan(&task.ID, &task.UserID, &task.Title, &task.Completed, &task.CreatedAt, &task.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return &task, nil
}

// UpdateTitle changes a task's title, scoped to the owner
func (s *Storage) UpdateTitle(ctx context.Context, id, userID uuid.UUID, title string) (*models.Task, error) {
	query := `
	UPDATE tasks
	SET title = $3, updated_at = NOW()
	WHERE id = $1 AND user_id = $2
	RETURNING id, user_id, title, completed, created_at, updated_at
	`

	var task models.Task
	err := s.db.QueryRowContext(ctx, query, id, userID, title).
		Scan(&task.ID, &task.UserID, &task.Title, &task.Completed, &task.CreatedAt, &task.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	return &task, nil
}

// Delete removes a task, scoped to the owner
func (s *Storage) Delete(ctx context.Context, id, userID uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deletion: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// SetCompleted sets a task's completion flag, scoped to the owner
func (s *Storage) SetCompleted(ctx context.Context, id, userID uuid.UUID, completed bool) (*models.Task, error) {
	query := `
	UPDATE tasks
	SET completed = $3, updated_at = NOW()
	WHERE id = $1 AND user_id = $2
	RETURNING id, user_id, title, completed, created_at, updated_at
	`

	var task models.Task
	err := s.db.QueryRowContext(ctx, query, id, userID, completed).
		Scan(&task.ID, &task.UserID, &task.Title, &task.Completed, &task.CreatedAt, &task.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set completion: %w", err)
	}

	return &task, nil
}

// ValidateTitle enforces the title rules shared by the CRUD surface and the
// agent tools: non-empty after trimming, at most 500 characters.
func ValidateTitle(title string) error {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return errors.New("title cannot be empty")
	}
	if len([]rune(trimmed)) > 500 {
		return errors.New("title must be 500 characters or less")
	}
	return nil
}
