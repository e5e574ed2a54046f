package gotrue

import (
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, subject, email string, expiry time.Time) string {
	t.Helper()

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: []byte("0123456789abcdef0123456789abcdef")}, nil)
	require.NoError(t, err)

	token, err := jwt.Signed(signer).
		Claims(jwt.Claims{Subject: subject, Expiry: jwt.NewNumericDate(expiry)}).
		Claims(map[string]any{"email": email, "role": "authenticated"}).
		Serialize()
	require.NoError(t, err)

	return token
}

func TestDecodeClaims(t *testing.T) {
	expiry := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	claims, err := decodeClaims(signedToken(t, "user-1", "ada@example.com", expiry))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.True(t, expiry.Equal(claims.ExpiresAt))

	_, err = decodeClaims("not-a-jwt")
	assert.Error(t, err)
}

func TestSessionFrom(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	expiry := now.Add(30 * time.Minute)
	c := &Client{clock: clockwork.NewFakeClockAt(now)}

	t.Run("Claims fill a response without user and expiry", func(t *testing.T) {
		s, apiErr := c.sessionFrom(tokenResponse{AccessToken: signedToken(t, "user-1", "ada@example.com", expiry)})
		require.Nil(t, apiErr)
		assert.Equal(t, "user-1", s.User.ID)
		assert.Equal(t, "ada@example.com", s.User.Email)
		assert.True(t, expiry.Equal(s.ExpiresAt))
	})

	t.Run("Absolute expiry wins over the relative one", func(t *testing.T) {
		s, apiErr := c.sessionFrom(tokenResponse{
			AccessToken: "opaque",
			ExpiresAt:   expiry.Unix(),
			ExpiresIn:   60,
			User:        &userResponse{ID: "user-1"},
		})
		require.Nil(t, apiErr)
		assert.True(t, expiry.Equal(s.ExpiresAt))
	})

	t.Run("Email confirmation time is used as confirmation", func(t *testing.T) {
		s, apiErr := c.sessionFrom(tokenResponse{
			AccessToken: "opaque",
			User:        &userResponse{ID: "user-1", EmailConfirmedAt: &now},
		})
		require.Nil(t, apiErr)
		require.NotNil(t, s.User.ConfirmedAt)
		assert.True(t, now.Equal(*s.User.ConfirmedAt))
		assert.True(t, s.ExpiresAt.IsZero())
	})

	t.Run("Missing access token", func(t *testing.T) {
		_, apiErr := c.sessionFrom(tokenResponse{User: &userResponse{ID: "user-1"}})
		require.NotNil(t, apiErr)
	})
}
