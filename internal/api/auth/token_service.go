package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/taskpilot/pkg/models"
)

// TokenService handles JWT token creation and validation. Tokens are
// validated purely by signature; there is no server-side token state.
type TokenService struct {
	secretKey     []byte
	TokenDuration time.Duration
}

// JWTClaims represents the claims in our JWT tokens
type JWTClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// NewTokenService creates a new token service
func NewTokenService(secretKey string, tokenDuration time.Duration) *TokenService {
	if tokenDuration <= 0 {
		tokenDuration = 24 * time.Hour
	}
	return &TokenService{
		secretKey:     []byte(secretKey),
		TokenDuration: tokenDuration,
	}
}

// CreateToken creates a signed access token for a user
func (ts *TokenService) CreateToken(user *models.User) (string, time.Time, error) {
	expiresAt := time.Now().Add(ts.TokenDuration)

	claims := JWTClaims{
		UserID: user.ID.String(),
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   user.ID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// ValidateToken checks a token's signature and expiry and returns the user
// identity it carries.
func (ts *TokenService) ValidateToken(tokenString string) (uuid.UUID, string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.secretKey, nil
	})
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return uuid.Nil, "", fmt.Errorf("invalid token claims")
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid user id in token: %w", err)
	}

	return userID, claims.Email, nil
}
