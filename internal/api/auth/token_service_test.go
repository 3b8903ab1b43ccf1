package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskpilot/pkg/models"
)

func TestTokenRoundTrip(t *testing.T) {
	ts := NewTokenService("test-secret", time.Hour)

	user := &models.User{
		ID:    uuid.New(),
		Email: "alice@example.com",
	}

	token, expiresAt, err := ts.CreateToken(user)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	userID, email, err := ts.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)
	assert.Equal(t, "alice@example.com", email)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	ts := NewTokenService("test-secret", time.Hour)
	other := NewTokenService("different-secret", time.Hour)

	token, _, err := ts.CreateToken(&models.User{ID: uuid.New(), Email: "a@b.c"})
	require.NoError(t, err)

	_, _, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Expired(t *testing.T) {
	ts := NewTokenService("test-secret", time.Hour)
	ts.TokenDuration = -time.Minute // force an already-expired token

	token, _, err := ts.CreateToken(&models.User{ID: uuid.New(), Email: "a@b.c"})
	require.NoError(t, err)

	_, _, err = ts.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Garbage(t *testing.T) {
	ts := NewTokenService("test-secret", time.Hour)

	_, _, err := ts.ValidateToken("not-a-token")
	assert.Error(t, err)
}
