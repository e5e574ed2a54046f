// Package auth holds the session manager of a workspace instance and the route
// guard that decides what a protected page shows.
package auth

import (
	"context"
	"sync"

	slogctx "github.com/veqryn/slog-context"

	"github.com/autoretech/backoffice/internal/identity"
	"github.com/autoretech/backoffice/internal/serviceerr"
)

var notConfigured = Notification{
	Title:       "Authentication Not Configured",
	Description: "Set the identity service URL and API key to enable signing in.",
	Variant:     VariantDestructive,
}

type Option func(*Manager)

func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithRedirectURL sets the target of the link in the sign-up confirmation e-mail.
func WithRedirectURL(u string) Option {
	return func(m *Manager) { m.redirectURL = u }
}

// Manager is the single source of truth about who is signed in to one instance
// and whether there is a usable identity backend at all.
//
// Sign-in and sign-out do not write the state themselves: the change arrives
// through the subscription to the backend, possibly after the call returned.
type Manager struct {
	backend     identity.Client
	settings    identity.Settings
	store       *Store
	notifier    Notifier
	redirectURL string

	initOnce sync.Once

	subMu  sync.Mutex
	sub    identity.Subscription
	closed bool

	// inFlight rejects overlapping sign-in, sign-up and sign-out calls.
	inFlight sync.Mutex
}

// NewManager returns a manager for backend. backend may be nil when settings
// is not configured; it is never called in that case.
func NewManager(backend identity.Client, settings identity.Settings, opts ...Option) *Manager {
	m := &Manager{
		backend:  backend,
		settings: settings,
		store:    NewStore(settings.Configured),
		notifier: discardNotifier{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

func (m *Manager) State() State {
	return m.store.Snapshot()
}

// Loaded is closed once the state stopped loading.
func (m *Manager) Loaded() <-chan struct{} {
	return m.store.Loaded()
}

// Mount schedules Initialize without waiting for it and subscribes to the
// backend right away.
func (m *Manager) Mount(ctx context.Context) {
	go m.Initialize(context.WithoutCancel(ctx))
	m.Subscribe()
}

// Initialize fetches the current session once per manager. Later calls return
// immediately.
func (m *Manager) Initialize(ctx context.Context) {
	m.initOnce.Do(func() {
		if !m.settings.Configured {
			m.store.markLoaded()
			return
		}

		res := m.backend.GetSession(ctx)
		if !res.IsOk() {
			slogctx.Error(ctx, "Failed to get the current session", "error", res.Err())
			m.store.markLoaded()
			return
		}

		m.store.finishInitialFetch(res.Value())
	})
}

// Subscribe registers the manager with the backend's auth state changes. The
// subscription is kept until Close and is created at most once.
func (m *Manager) Subscribe() identity.Subscription {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	if m.closed || m.backend == nil {
		return noopSubscription{}
	}
	if m.sub == nil {
		m.sub = m.backend.OnAuthStateChange(m.onAuthStateChange)
	}

	return m.sub
}

func (m *Manager) onAuthStateChange(event identity.Event, session *identity.Session) {
	if session != nil {
		slogctx.Debug(context.Background(), "Auth state changed", "event", event, "user_id", session.User.ID)
	} else {
		slogctx.Debug(context.Background(), "Auth state changed", "event", event)
	}

	m.store.replaceSession(session)
}

func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	if !m.settings.Configured {
		m.notifier.Notify(notConfigured)
		return serviceerr.ErrAuthNotConfigured
	}

	if !m.inFlight.TryLock() {
		return serviceerr.ErrOperationInFlight
	}
	defer m.inFlight.Unlock()

	res := m.backend.SignInWithPassword(ctx, identity.Credentials{Email: email, Password: password})
	if err := res.Err(); err != nil {
		slogctx.Error(ctx, "Error signing in", "error", err, "kind", err.Kind)
		m.notifier.Notify(Notification{Title: "Sign In Failed", Description: err.Message, Variant: VariantDestructive})
		return err
	}

	m.notifier.Notify(Notification{Title: "Signed In", Description: "You have successfully logged in.", Variant: VariantDefault})
	return nil
}

func (m *Manager) SignUp(ctx context.Context, email, password string) error {
	if !m.settings.Configured {
		m.notifier.Notify(notConfigured)
		return serviceerr.ErrAuthNotConfigured
	}

	if !m.inFlight.TryLock() {
		return serviceerr.ErrOperationInFlight
	}
	defer m.inFlight.Unlock()

	res := m.backend.SignUp(ctx, identity.SignUpParams{Email: email, Password: password, RedirectURL: m.redirectURL})
	if err := res.Err(); err != nil {
		slogctx.Error(ctx, "Error signing up", "error", err, "kind", err.Kind)
		m.notifier.Notify(Notification{Title: "Sign Up Failed", Description: err.Message, Variant: VariantDestructive})
		return err
	}

	m.notifier.Notify(Notification{
		Title:       "Account Created",
		Description: "Please check your email to confirm your account.",
		Variant:     VariantDefault,
	})
	return nil
}

// SignOut is a no-op when the backend is not configured.
func (m *Manager) SignOut(ctx context.Context) error {
	if !m.settings.Configured {
		return nil
	}

	if !m.inFlight.TryLock() {
		return serviceerr.ErrOperationInFlight
	}
	defer m.inFlight.Unlock()

	res := m.backend.SignOut(ctx)
	if err := res.Err(); err != nil {
		slogctx.Error(ctx, "Error signing out", "error", err, "kind", err.Kind)
		m.notifier.Notify(Notification{Title: "Sign Out Failed", Description: err.Message, Variant: VariantDestructive})
		return err
	}

	return nil
}

// Close releases the backend subscription exactly once and stops the store.
func (m *Manager) Close() {
	m.subMu.Lock()
	sub := m.sub
	alreadyClosed := m.closed
	m.sub = nil
	m.closed = true
	m.subMu.Unlock()

	if alreadyClosed {
		return
	}

	if sub != nil {
		sub.Unsubscribe()
	}
	m.store.Close()
}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}
