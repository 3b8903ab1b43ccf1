package chat

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/taskpilot/internal/agent"
	"github.com/taskpilot/internal/api/auth"
)

const maxMessageLength = 5000

// Handlers serves the chat and conversation browsing endpoints
type Handlers struct {
	service *Service

	limiterMu sync.Mutex
	limiters  map[uuid.UUID]*rate.Limiter
	perMinute int
}

// NewHandlers creates chat handlers. perMinute caps chat requests per user;
// zero disables limiting.
func NewHandlers(service *Service, perMinute int) *Handlers {
	return &Handlers{
		service:   service,
		limiters:  make(map[uuid.UUID]*rate.Limiter),
		perMinute: perMinute,
	}
}

// Register mounts the chat routes on a group that already carries auth
func (h *Handlers) Register(g *echo.Group) {
	g.POST("/chat", h.Chat)
	g.GET("/conversations", h.ListConversations)
	g.GET("/conversations/:id", h.GetConversation)
}

// ChatRequest is the body for one chat exchange
type ChatRequest struct {
	Message        string     `json:"message"`
	ConversationID *uuid.UUID `json:"conversation_id"`
}

// Chat runs one conversational exchange: the message goes through the
// agent, any task tools it requests are executed, and the completed
// exchange is persisted before the reply is returned.
func (h *Handlers) Chat(c echo.Context) error {
	userID := auth.MustGetUserID(c)

	if h.perMinute > 0 && !h.limiter(userID).Allow() {
		return c.JSON(http.StatusTooManyRequests, map[string]string{
			"error": "Too many chat requests, slow down",
		})
	}

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Message cannot be empty",
		})
	}
	if len([]rune(message)) > maxMessageLength {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Message must be 5000 characters or less",
		})
	}

	reply, err := h.service.ProcessMessage(c.Request().Context(), userID, message, req.ConversationID)
	if errors.Is(err, ErrConversationNotFound) {
		return conversationNotFound(c)
	}
	if errors.Is(err, agent.ErrAssistantUnavailable) {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "The assistant is temporarily unavailable, try again shortly",
		})
	}
	if err != nil {
		log.Error().Err(err).Msg("Chat exchange failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to process message",
		})
	}

	return c.JSON(http.StatusOK, reply)
}

// ListConversations returns the caller's conversations, most recently
// active first. Supports ?limit= and ?offset=.
func (h *Handlers) ListConversations(c echo.Context) error {
	userID := auth.MustGetUserID(c)

	limit := queryInt(c, "limit", 20, 100)
	offset := queryInt(c, "offset", 0, 1<<30)

	list, err := h.service.ListConversations(c.Request().Context(), userID, limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list conversations")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Database error",
		})
	}

	return c.JSON(http.StatusOK, list)
}

// GetConversation returns one conversation with its messages oldest-first
func (h *Handlers) GetConversation(c echo.Context) error {
	userID := auth.MustGetUserID(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return conversationNotFound(c)
	}

	limit := queryInt(c, "limit", 200, 1000)

	detail, err := h.service.GetConversation(c.Request().Context(), userID, id, limit)
	if errors.Is(err, ErrConversationNotFound) {
		return conversationNotFound(c)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to get conversation")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Database error",
		})
	}

	return c.JSON(http.StatusOK, detail)
}

func (h *Handlers) limiter(userID uuid.UUID) *rate.Limiter {
	h.limiterMu.Lock()
	defer h.limiterMu.Unlock()

	limiter, ok := h.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(h.perMinute)/60.0), h.perMinute)
		h.limiters[userID] = limiter
	}
	return limiter
}

func queryInt(c echo.Context, name string, fallback, max int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

// Absent and unauthorized conversations answer identically
func conversationNotFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, map[string]string{
		"error": "Conversation not found",
	})
}
