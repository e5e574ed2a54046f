// Package identity describes the contract between the back-office and the
// external identity backend: the session and user shapes it issues, the auth
// state-change events it emits and the client operations the session manager
// consumes.
//
// Every client operation returns a [Result], so call sites have to look at the
// failure branch explicitly.
package identity

import (
	"context"
	"time"
)

// User is an authenticated identity as reported by the backend.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
	LastSignInAt *time.Time `json:"last_sign_in_at,omitempty"`
}

// Session is the token bundle issued by the backend. The back-office only ever
// holds a cached copy of it.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// ExpiresWithin reports whether the access token expires before now+margin.
// A zero ExpiresAt never expires.
func (s *Session) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}

	return !now.Add(margin).Before(s.ExpiresAt)
}

// Clone returns a deep copy of s, or nil for a nil session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	cp := *s
	if s.User.ConfirmedAt != nil {
		t := *s.User.ConfirmedAt
		cp.User.ConfirmedAt = &t
	}
	if s.User.LastSignInAt != nil {
		t := *s.User.LastSignInAt
		cp.User.LastSignInAt = &t
	}

	return &cp
}

// Event names an auth state change.
type Event string

const (
	EventInitialSession   Event = "INITIAL_SESSION"
	EventSignedIn         Event = "SIGNED_IN"
	EventSignedOut        Event = "SIGNED_OUT"
	EventTokenRefreshed   Event = "TOKEN_REFRESHED"
	EventUserUpdated      Event = "USER_UPDATED"
	EventPasswordRecovery Event = "PASSWORD_RECOVERY"
)

type Credentials struct {
	Email    string
	Password string
}

type SignUpParams struct {
	Email    string
	Password string
	// RedirectURL is where the confirmation e-mail link sends the user.
	RedirectURL string
}

// Listener receives auth state changes. session is nil after a sign-out.
type Listener func(event Event, session *Session)

// Subscription is the handle returned by [Client.OnAuthStateChange].
// Unsubscribe is safe to call more than once.
type Subscription interface {
	Unsubscribe()
}

// Client is the identity backend as seen by the session manager.
type Client interface {
	// GetSession returns the current session, or a nil session when nobody is
	// signed in.
	GetSession(ctx context.Context) Result[*Session]
	// SignUp registers a new account. The session is nil when the backend
	// requires an e-mail confirmation first.
	SignUp(ctx context.Context, params SignUpParams) Result[*Session]
	SignInWithPassword(ctx context.Context, credentials Credentials) Result[*Session]
	SignOut(ctx context.Context) Result[None]
	OnAuthStateChange(listener Listener) Subscription
}

// CodeExchanger is implemented by clients that complete the PKCE leg of an
// e-mail confirmation link.
type CodeExchanger interface {
	ExchangeCodeForSession(ctx context.Context, code string) Result[*Session]
}
