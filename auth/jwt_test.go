package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidateToken(t *testing.T) {
	manager := NewTokenManager("test-secret", time.Hour)
	userID := uuid.New()

	token, expiresAt, err := manager.IssueToken(userID, "user@example.com")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := manager.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", claims.Email)

	parsed, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, userID, parsed)
}

func TestValidateToken_BearerPrefix(t *testing.T) {
	manager := NewTokenManager("test-secret", time.Hour)
	token, _, err := manager.IssueToken(uuid.New(), "user@example.com")
	require.NoError(t, err)

	_, err = manager.ValidateToken("Bearer " + token)
	assert.NoError(t, err)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	issuer := NewTokenManager("secret-a", time.Hour)
	validator := NewTokenManager("secret-b", time.Hour)

	token, _, err := issuer.IssueToken(uuid.New(), "user@example.com")
	require.NoError(t, err)

	_, err = validator.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Expired(t *testing.T) {
	manager := NewTokenManager("test-secret", -time.Minute)
	token, _, err := manager.IssueToken(uuid.New(), "user@example.com")
	require.NoError(t, err)

	_, err = manager.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Garbage(t *testing.T) {
	manager := NewTokenManager("test-secret", time.Hour)
	_, err := manager.ValidateToken("not-a-token")
	assert.Error(t, err)
}
