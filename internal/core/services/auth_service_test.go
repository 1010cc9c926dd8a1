package services_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/poll-ledger/internal/core/domain"
	"github.com/vncsmyrnk/poll-ledger/internal/core/services"
)

func TestTokenServiceRoundTrip(t *testing.T) {
	tokens, err := services.NewTokenService("test-secret")
	require.NoError(t, err)
	userID := uuid.New()

	token, err := tokens.Issue(userID, "user@example.com", 15*time.Minute)
	require.NoError(t, err)

	identity, err := tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, userID, identity.UserID)
	assert.Equal(t, "user@example.com", identity.Email)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), identity.ExpiresAt, 5*time.Second)
}

func TestTokenServiceRejects(t *testing.T) {
	tokens, err := services.NewTokenService("test-secret")
	require.NoError(t, err)
	other, err := services.NewTokenService("other-secret")
	require.NoError(t, err)

	expired, err := tokens.Issue(uuid.New(), "", -time.Minute)
	require.NoError(t, err)
	forged, err := other.Issue(uuid.New(), "", time.Minute)
	require.NoError(t, err)
	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "not-a-uuid",
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": uuid.NewString(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":       "",
		"garbage":     "abc.def.ghi",
		"expired":     expired,
		"forged":      forged,
		"bad subject": badSubject,
		"no expiry":   noExpiry,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tokens.Parse(token)
			assert.ErrorIs(t, err, domain.ErrUnauthorized)
		})
	}
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	_, err := services.NewTokenService("")
	assert.Error(t, err)
}
