package auth

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoretech/backoffice/internal/identity"
)

func testSession(email string) *identity.Session {
	return &identity.Session{AccessToken: "access-" + email, User: identity.User{ID: "user-" + email, Email: email}}
}

func TestNewStore(t *testing.T) {
	s := NewStore(true)
	defer s.Close()

	st := s.Snapshot()
	assert.True(t, st.Loading)
	assert.True(t, st.IsConfigured)
	assert.Nil(t, st.Session)
	assert.Nil(t, st.User)

	select {
	case <-s.Loaded():
		t.Fatal("store reports loaded before any update")
	default:
	}
}

func TestStore_Updates(t *testing.T) {
	t.Run("Initial fetch without session does not clobber a subscription event", func(t *testing.T) {
		s := NewStore(true)
		defer s.Close()

		s.replaceSession(testSession("alice@example.com"))
		s.finishInitialFetch(nil)

		st := s.Snapshot()
		require.NotNil(t, st.User)
		assert.Equal(t, "alice@example.com", st.User.Email)
		assert.False(t, st.Loading)
	})

	t.Run("Subscription event after the initial fetch wins", func(t *testing.T) {
		s := NewStore(true)
		defer s.Close()

		s.finishInitialFetch(testSession("alice@example.com"))
		s.replaceSession(nil)

		st := s.Snapshot()
		assert.Nil(t, st.Session)
		assert.Nil(t, st.User)
		assert.False(t, st.Loading)
	})

	t.Run("Loaded closes once loading ends", func(t *testing.T) {
		s := NewStore(false)
		defer s.Close()

		s.markLoaded()
		<-s.Loaded()
		s.markLoaded()

		assert.False(t, s.Snapshot().Loading)
		assert.False(t, s.Snapshot().IsConfigured)
	})

	t.Run("Snapshots are copies", func(t *testing.T) {
		s := NewStore(true)
		defer s.Close()

		s.replaceSession(testSession("alice@example.com"))

		snap := s.Snapshot()
		snap.Session.User.Email = "mallory@example.com"

		assert.Equal(t, "alice@example.com", s.Snapshot().User.Email)
		assert.Same(t, &snap.Session.User, snap.User)
	})

	t.Run("Concurrent writers keep user and session together", func(t *testing.T) {
		s := NewStore(true)
		defer s.Close()

		var wg sync.WaitGroup
		for i := range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if i%2 == 0 {
					s.replaceSession(testSession("alice@example.com"))
				} else {
					s.replaceSession(nil)
				}
				st := s.Snapshot()
				assert.Equal(t, st.Session == nil, st.User == nil)
			}()
		}
		wg.Wait()
	})

	t.Run("Updates after close are dropped", func(t *testing.T) {
		s := NewStore(true)
		s.Close()
		s.Close()

		s.replaceSession(testSession("alice@example.com"))
		assert.Nil(t, s.Snapshot().User)
	})
}
