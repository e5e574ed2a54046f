package gotruevalkey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoretech/backoffice/internal/dbtest/valkeytest"
	"github.com/autoretech/backoffice/internal/identity"
)

func TestNewStore(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   string
	}{
		{name: "Keeps the prefix", prefix: "backoffice", want: "backoffice"},
		{name: "Trims a trailing colon", prefix: "backoffice:", want: "backoffice"},
		{name: "Trims only the last colon", prefix: "back:office:", want: "back:office"},
		{name: "Empty prefix", prefix: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(nil, tt.prefix)
			assert.Equal(t, tt.want, s.prefix)
		})
	}

	assert.Equal(t, "backoffice:session:abc", newStore(nil, "backoffice").key(objectTypeSession, "abc"))
}

func TestStorage(t *testing.T) {
	ctx := t.Context()
	valkeyClient, _, terminate := valkeytest.Start(ctx)
	defer terminate(ctx)

	confirmed := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	session := &identity.Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenType:    "bearer",
		ExpiresAt:    confirmed.Add(time.Hour),
		User:         identity.User{ID: "user-1", Email: "ada@example.com", ConfirmedAt: &confirmed},
	}

	t.Run("Empty storage", func(t *testing.T) {
		storage := NewStorage(valkeyClient, "test", "empty", time.Hour)

		got, err := storage.LoadSession(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)

		verifier, err := storage.LoadVerifier(ctx)
		require.NoError(t, err)
		assert.Empty(t, verifier)
	})

	t.Run("Session round trip", func(t *testing.T) {
		storage := NewStorage(valkeyClient, "test", "instance-1", time.Hour)

		require.NoError(t, storage.SaveSession(ctx, session))

		got, err := storage.LoadSession(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, session.AccessToken, got.AccessToken)
		assert.Equal(t, session.User.Email, got.User.Email)
		assert.True(t, session.ExpiresAt.Equal(got.ExpiresAt))

		other := NewStorage(valkeyClient, "test", "instance-2", time.Hour)
		got, err = other.LoadSession(ctx)
		require.NoError(t, err)
		assert.Nil(t, got, "instances share a session")

		require.NoError(t, storage.RemoveSession(ctx))
		got, err = storage.LoadSession(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Saving nil removes the session", func(t *testing.T) {
		storage := NewStorage(valkeyClient, "test", "instance-3", 0)
		require.NoError(t, storage.SaveSession(ctx, session))
		require.NoError(t, storage.SaveSession(ctx, nil))

		got, err := storage.LoadSession(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Verifier round trip", func(t *testing.T) {
		storage := NewStorage(valkeyClient, "test", "instance-4", time.Hour)

		require.NoError(t, storage.SaveVerifier(ctx, "verifier-1"))
		verifier, err := storage.LoadVerifier(ctx)
		require.NoError(t, err)
		assert.Equal(t, "verifier-1", verifier)

		require.NoError(t, storage.RemoveVerifier(ctx))
		verifier, err = storage.LoadVerifier(ctx)
		require.NoError(t, err)
		assert.Empty(t, verifier)
	})

	t.Run("Keys expire", func(t *testing.T) {
		storage := NewStorage(valkeyClient, "test", "instance-5", 2*time.Second)
		require.NoError(t, storage.SaveSession(ctx, session))

		ttl, err := valkeyClient.Do(ctx, valkeyClient.B().Ttl().Key("test:session:instance-5").Build()).AsInt64()
		require.NoError(t, err)
		assert.Positive(t, ttl)
		assert.LessOrEqual(t, ttl, int64(2))
	})
}
