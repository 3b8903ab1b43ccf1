package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/taskpilot/internal/api/auth"
	"github.com/taskpilot/internal/chat"
	"github.com/taskpilot/internal/config"
	"github.com/taskpilot/internal/database"
	"github.com/taskpilot/internal/llm"
	"github.com/taskpilot/internal/tasks"
)

// Server represents the API server
type Server struct {
	echo *echo.Echo
	port int
	db   *sql.DB
}

// NewServer creates a new API server: it connects to the database, runs
// schema migration, builds the model connector, and mounts all routes.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	db, err := database.NewDB(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	gateway, err := llm.NewConnector(ctx, llm.Options{
		Provider:    llm.Provider(cfg.AI.Provider),
		APIKey:      cfg.AI.APIKey,
		BaseURL:     cfg.AI.BaseURL,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create model connector: %w", err)
	}

	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo: e,
		port: cfg.Server.Port,
		db:   db,
	}

	server.setupRoutes(cfg, gateway)

	return server, nil
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes(cfg *config.Config, gateway llm.Gateway) {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	tokenService := auth.NewTokenService(cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.TokenHours)*time.Hour)
	authHandlers := auth.NewAuthHandlers(tokenService, s.db, cfg.Auth.BcryptCost)

	taskStore := tasks.NewStorage(s.db)
	chatStore := chat.NewStorage(s.db)
	chatService := chat.NewService(chatStore, taskStore, gateway,
		cfg.Agent.MaxRounds, cfg.Agent.HistoryLimit)

	v1 := s.echo.Group("/api/v1")

	// Public auth endpoints
	v1.POST("/auth/signup", authHandlers.Signup)
	v1.POST("/auth/signin", authHandlers.Signin)

	// Everything else requires a valid token
	protected := v1.Group("", auth.RequireAuth(tokenService))
	protected.GET("/auth/me", authHandlers.Me)

	tasks.NewHandlers(taskStore).Register(protected)
	chat.NewHandlers(chatService, cfg.Agent.ChatPerMin).Register(protected)
}

// Start begins the API server and blocks until interrupted, then shuts
// down gracefully.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Shutting down the server")
		}
	}()

	log.Info().Int("port", s.port).Msg("API server started")

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	defer s.db.Close()
	return s.echo.Shutdown(ctx)
}
