package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)

	token, err := m.Generate("player-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	playerID, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "player-1", playerID)
}

func TestTokenManager_RejectsBadToken(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)

	_, err := m.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_RejectsWrongSecret(t *testing.T) {
	m1 := NewTokenManager("secret-one", time.Hour)
	m2 := NewTokenManager("secret-two", time.Hour)

	token, err := m1.Generate("player-1")
	require.NoError(t, err)

	_, err = m2.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_RejectsExpiredToken(t *testing.T) {
	m := NewTokenManager("test-secret", time.Minute)

	token, err := m.Generate("player-1")
	require.NoError(t, err)

	// Shift the verifier's clock past the expiry
	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err = m.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
