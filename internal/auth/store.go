package auth

import (
	"sync"

	"github.com/autoretech/backoffice/internal/identity"
)

// State is a snapshot of the authentication state of one instance.
// User is non-nil exactly when Session is non-nil.
type State struct {
	Session      *identity.Session
	User         *identity.User
	Loading      bool
	IsConfigured bool
}

type update struct {
	fn   func(*State)
	done chan struct{}
}

// Store owns a State and applies updates to it one at a time, strictly in the
// order they arrive, on its own goroutine. Readers get copies.
type Store struct {
	mu    sync.RWMutex
	state State

	updates chan update
	stop    chan struct{}
	stopped chan struct{}

	loaded     chan struct{}
	loadedOnce sync.Once
	closeOnce  sync.Once
}

func NewStore(isConfigured bool) *Store {
	s := &Store{
		state:   State{Loading: true, IsConfigured: isConfigured},
		updates: make(chan update, 16),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		loaded:  make(chan struct{}),
	}
	go s.run()

	return s
}

func (s *Store) run() {
	defer close(s.stopped)

	for {
		select {
		case u := <-s.updates:
			s.mu.Lock()
			u.fn(&s.state)
			loading := s.state.Loading
			s.mu.Unlock()

			if !loading {
				s.loadedOnce.Do(func() { close(s.loaded) })
			}
			close(u.done)
		case <-s.stop:
			return
		}
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.state
	snap.Session = s.state.Session.Clone()
	if snap.Session != nil {
		snap.User = &snap.Session.User
	}

	return snap
}

// Loaded is closed once Loading has become false.
func (s *Store) Loaded() <-chan struct{} {
	return s.loaded
}

// Close stops the update goroutine. Updates dispatched afterwards are dropped.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.stopped
	})
}

// apply queues fn and waits until it has been applied or the store is closed.
func (s *Store) apply(fn func(*State)) {
	u := update{fn: fn, done: make(chan struct{})}

	select {
	case s.updates <- u:
	case <-s.stopped:
		return
	}

	select {
	case <-u.done:
	case <-s.stopped:
	}
}

// replaceSession overwrites the session with the payload of an auth state change.
func (s *Store) replaceSession(session *identity.Session) {
	session = session.Clone()
	s.apply(func(st *State) {
		setSession(st, session)
		st.Loading = false
	})
}

// finishInitialFetch records the result of the initial session fetch. A nil
// session leaves whatever a subscription event has already written.
func (s *Store) finishInitialFetch(session *identity.Session) {
	session = session.Clone()
	s.apply(func(st *State) {
		if session != nil {
			setSession(st, session)
		}
		st.Loading = false
	})
}

func (s *Store) markLoaded() {
	s.apply(func(st *State) { st.Loading = false })
}

func setSession(st *State, session *identity.Session) {
	st.Session = session
	st.User = nil
	if session != nil {
		st.User = &session.User
	}
}
