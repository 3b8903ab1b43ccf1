package tasks

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/taskpilot/internal/api/auth"
	"github.com/taskpilot/pkg/models"
)

// Handlers serves the task CRUD endpoints
type Handlers struct {
	store Store
}

// NewHandlers creates task handlers backed by a store
func NewHandlers(store Store) *Handlers {
	return &Handlers{store: store}
}

// Register mounts the task routes on a group that already carries auth
func (h *Handlers) Register(g *echo.Group) {
	g.GET("/todos", h.List)
	g.POST("/todos", h.Create)
	g.GET("/todos/:id", h.Get)
	g.PATCH("/todos/:id", h.Update)
	g.DELETE("/todos/:id", h.Delete)
}

// CreateRequest is the body for creating a task
type CreateRequest struct {
	Title string `json:"title"`
}

// UpdateRequest is the body for a partial task update. Nil fields are left
// untouched.
type UpdateRequest struct {
	Title     *string `json:"title"`
	Completed *bool   `json:"completed"`
}

// ListResponse wraps a task listing with its count
type ListResponse struct {
	Tasks []models.Task `json:"tasks"`
	Count int           `json:"count"`
}

// List returns the caller's tasks, newest first. The optional ?filter=
// query restricts by completion state (all, completed, incomplete).
func (h *Handlers) List(c echo.Context) error {
	userID := auth.MustGetUserID(c)

	filter, err := ParseFilter(c.QueryParam("filter"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Filter must be one of: all, completed, incomplete",
		})
	}

	items, err := h.store.List(c.Request().Context(), userID, filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list tasks")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Database error",
		})
	}
	if items == nil {
		items = []models.Task{}
	}

	return c.JSON(http.StatusOK, &ListResponse{Tasks: items, Count: len(items)})
}

// Create adds a task for the caller
func (h *Handlers) Create(c echo.Context) error {
	userID := auth.MustGetUserID(c)

	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}

	if err := ValidateTitle(req.Title); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	task, err := h.store.Create(c.Request().Context(), userID, strings.TrimSpace(req.Title))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create task")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Database error",
		})
	}

	return c.JSON(http.StatusCreated, task)
}

// Get returns one task by id
func (h *Handlers) Get(c echo.Context) error {
	userID := auth.MustGetUserID(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return taskNotFound(c)
	}

	task, err := h.store.Get(c.Request().Context(), id, userID)
	if errors.Is(err, ErrNotFound) {
		return taskNotFound(c)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to get task")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Database error",
		})
	}

	return c.JSON(http.StatusOK, task)
}

// Update applies a partial update to a task
func (h *Handlers) Update(c echo.Context) error {
	userID := auth.MustGetUserID(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return taskNotFound(c)
	}

	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}
	if req.Title == nil && req.Completed == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Nothing to update",
		})
	}

	ctx := c.Request().Context()
	var task *models.Task

	if req.Title != nil {
		if err := ValidateTitle(*req.Title); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
		}
		task, err = h.store.UpdateTitle(ctx, id, userID, strings.TrimSpace(*req.Title))
		if err != nil {
			return h.updateError(c, err)
		}
	}

	if req.Completed != nil {
		task, err = h.store.SetCompleted(ctx, id, userID, *req.Completed)
		if err != nil {
			return h.updateError(c, err)
		}
	}

	return c.JSON(http.StatusOK, task)
}

// Delete removes a task
func (h *Handlers) Delete(c echo.Context) error {
	userID := auth.MustGetUserID(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return taskNotFound(c)
	}

	err = h.store.Delete(c.Request().Context(), id, userID)
	if errors.Is(err, ErrNotFound) {
		return taskNotFound(c)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to delete task")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Database error",
		})
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) updateError(c echo.Context, err error) error {
	if errors.Is(err, ErrNotFound) {
		return taskNotFound(c)
	}
	log.Error().Err(err).Msg("Failed to update task")
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error": "Database error",
	})
}

// Absent and unauthorized tasks answer identically
func taskNotFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, map[string]string{
		"error": "Task not found",
	})
}
