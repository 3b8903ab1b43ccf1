package auth

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/taskpilot/pkg/models"
)

// AuthHandlers contains the authentication handler methods
type AuthHandlers struct {
	tokenService *TokenService
	db           *sql.DB
	bcryptCost   int
}

// NewAuthHandlers creates a new authentication handlers instance
func NewAuthHandlers(tokenService *TokenService, db *sql.DB, bcryptCost int) *AuthHandlers {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthHandlers{
		tokenService: tokenService,
		db:           db,
		bcryptCost:   bcryptCost,
	}
}

// SignupRequest represents the signup request body
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SigninRequest represents the signin request body
type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserInfo represents basic user information (no sensitive data)
type UserInfo struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthResponse is the body returned by signup and signin
type AuthResponse struct {
	User      *UserInfo `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Signup registers a new account and signs the caller in
func (h *AuthHandlers) Signup(c echo.Context) error {
	var req SignupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "A valid email is required",
		})
	}
	if len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Password must be at least 8 characters",
		})
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.bcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to hash password",
		})
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        req.Email,
		PasswordHash: string(hashedPassword),
	}

	err = h.db.QueryRow(`
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING created_at
	`, user.ID, user.Email, user.PasswordHash).Scan(&user.CreatedAt)

	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return c.JSON(http.StatusConflict, map[string]string{
			"error": "An account with this email already exists",
		})
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to create user")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Database error",
		})
	}

	return h.respondWithToken(c, http.StatusCreated, user)
}

// Signin authenticates with email/password
func (h *AuthHandlers) Signin(c echo.Context) error {
	var req SigninRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	user := &models.User{}
	err := h.db.QueryRow(`
		SELECT id, email, password_hash, created_at
		FROM users WHERE email = $1
	`, req.Email).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Invalid email or password",
		})
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to look up user")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Database error",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Invalid email or password",
		})
	}

	return h.respondWithToken(c, http.StatusOK, user)
}

// Me returns information about the currently authenticated user
func (h *AuthHandlers) Me(c echo.Context) error {
	userID := MustGetUserID(c)

	user := &models.User{}
	err := h.db.QueryRow(`
		SELECT id, email, created_at
		FROM users WHERE id = $1
	`, userID).Scan(&user.ID, &user.Email, &user.CreatedAt)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Database error",
		})
	}

	return c.JSON(http.StatusOK, &UserInfo{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	})
}

func (h *AuthHandlers) respondWithToken(c echo.Context, status int, user *models.User) error {
	token, expiresAt, err := h.tokenService.CreateToken(user)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create token")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to create session",
		})
	}

	return c.JSON(status, &AuthResponse{
		User: &UserInfo{
			ID:        user.ID,
			Email:     user.Email,
			CreatedAt: user.CreatedAt,
		},
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
