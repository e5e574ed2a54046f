// Package identitymock provides an in-memory identity.Client for tests.
package identitymock

import (
	"context"
	"sync"
	"time"

	"github.com/autoretech/backoffice/internal/identity"
)

type Op string

const (
	OpGetSession        Op = "GetSession"
	OpSignUp            Op = "SignUp"
	OpSignIn            Op = "SignInWithPassword"
	OpSignOut           Op = "SignOut"
	OpOnAuthStateChange Op = "OnAuthStateChange"
)

type Option func(*Client)

// WithUser registers an account that SignInWithPassword accepts.
func WithUser(email, password string) Option {
	return func(c *Client) { c.users[email] = password }
}

// WithSession makes session the current session.
func WithSession(session *identity.Session) Option {
	return func(c *Client) { c.session = session.Clone() }
}

func WithGetSessionError(err *identity.Error) Option {
	return func(c *Client) { c.getSessionErr = err }
}

func WithSignInError(err *identity.Error) Option {
	return func(c *Client) { c.signInErr = err }
}

func WithSignUpError(err *identity.Error) Option {
	return func(c *Client) { c.signUpErr = err }
}

func WithSignOutError(err *identity.Error) Option {
	return func(c *Client) { c.signOutErr = err }
}

// WithAutoConfirm makes SignUp sign the new account in straight away.
func WithAutoConfirm() Option {
	return func(c *Client) { c.autoConfirm = true }
}

// WithHook runs hook at the start of every call to op, before any lock is taken.
func WithHook(op Op, hook func(ctx context.Context)) Option {
	return func(c *Client) { c.hooks[op] = hook }
}

// WithDeferredEvents queues the events of SignIn, SignUp and SignOut until
// Flush is called.
func WithDeferredEvents() Option {
	return func(c *Client) { c.deferEvents = true }
}

type pendingEvent struct {
	event   identity.Event
	session *identity.Session
}

type Client struct {
	mu sync.Mutex

	users         map[string]string
	session       *identity.Session
	getSessionErr *identity.Error
	signInErr     *identity.Error
	signUpErr     *identity.Error
	signOutErr    *identity.Error
	autoConfirm   bool
	deferEvents   bool
	hooks         map[Op]func(ctx context.Context)

	listeners map[int]identity.Listener
	nextID    int
	pending   []pendingEvent
	calls     map[Op]int
	signUps   []identity.SignUpParams
}

var _ identity.Client = (*Client)(nil)

func NewClient(opts ...Option) *Client {
	c := &Client{
		users:     make(map[string]string),
		hooks:     make(map[Op]func(ctx context.Context)),
		listeners: make(map[int]identity.Listener),
		calls:     make(map[Op]int),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// NewSession returns a session for email valid for an hour.
func NewSession(email string) *identity.Session {
	return &identity.Session{
		AccessToken:  "access-" + email,
		RefreshToken: "refresh-" + email,
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(time.Hour).Truncate(time.Second),
		User:         identity.User{ID: "user-" + email, Email: email},
	}
}

func (c *Client) GetSession(ctx context.Context) identity.Result[*identity.Session] {
	c.enter(ctx, OpGetSession)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.getSessionErr != nil {
		return identity.Fail[*identity.Session](c.getSessionErr)
	}

	return identity.Ok(c.session.Clone())
}

func (c *Client) SignUp(ctx context.Context, params identity.SignUpParams) identity.Result[*identity.Session] {
	c.enter(ctx, OpSignUp)

	c.mu.Lock()
	c.signUps = append(c.signUps, params)

	if c.signUpErr != nil {
		c.mu.Unlock()
		return identity.Fail[*identity.Session](c.signUpErr)
	}
	if _, exists := c.users[params.Email]; exists {
		c.mu.Unlock()
		return identity.Fail[*identity.Session](identity.NewError(identity.ErrorKindUserAlreadyExists, "User already registered"))
	}
	c.users[params.Email] = params.Password

	if !c.autoConfirm {
		c.mu.Unlock()
		return identity.Ok[*identity.Session](nil)
	}

	c.session = NewSession(params.Email)
	session := c.session.Clone()
	deliver := c.queue(identity.EventSignedIn, session)
	c.mu.Unlock()

	deliver()
	return identity.Ok(session)
}

func (c *Client) SignInWithPassword(ctx context.Context, credentials identity.Credentials) identity.Result[*identity.Session] {
	c.enter(ctx, OpSignIn)

	c.mu.Lock()
	if c.signInErr != nil {
		c.mu.Unlock()
		return identity.Fail[*identity.Session](c.signInErr)
	}

	password, ok := c.users[credentials.Email]
	if !ok || password != credentials.Password {
		c.mu.Unlock()
		return identity.Fail[*identity.Session](&identity.Error{
			Kind:    identity.ErrorKindInvalidCredentials,
			Message: "Invalid login credentials",
			Status:  400,
		})
	}

	c.session = NewSession(credentials.Email)
	session := c.session.Clone()
	deliver := c.queue(identity.EventSignedIn, session)
	c.mu.Unlock()

	deliver()
	return identity.Ok(session)
}

func (c *Client) SignOut(ctx context.Context) identity.Result[identity.None] {
	c.enter(ctx, OpSignOut)

	c.mu.Lock()
	if c.signOutErr != nil {
		c.mu.Unlock()
		return identity.Fail[identity.None](c.signOutErr)
	}

	c.session = nil
	deliver := c.queue(identity.EventSignedOut, nil)
	c.mu.Unlock()

	deliver()
	return identity.Ok(identity.None{})
}

// OnAuthStateChange registers listener and hands it the current session as
// INITIAL_SESSION.
func (c *Client) OnAuthStateChange(listener identity.Listener) identity.Subscription {
	c.enter(context.Background(), OpOnAuthStateChange)

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = listener
	initial := c.session.Clone()
	c.mu.Unlock()

	listener(identity.EventInitialSession, initial)

	return &subscription{client: c, id: id}
}

// Emit delivers event to every listener as if the backend had raised it.
func (c *Client) Emit(event identity.Event, session *identity.Session) {
	c.mu.Lock()
	if event == identity.EventSignedOut {
		c.session = nil
	} else if session != nil {
		c.session = session.Clone()
	}
	listeners := c.snapshotListeners()
	c.mu.Unlock()

	for _, l := range listeners {
		l(event, session.Clone())
	}
}

// Flush delivers the events held back by WithDeferredEvents.
func (c *Client) Flush() {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	listeners := c.snapshotListeners()
	c.mu.Unlock()

	for _, p := range pending {
		for _, l := range listeners {
			l(p.event, p.session.Clone())
		}
	}
}

// Calls reports how many times op was called.
func (c *Client) Calls(op Op) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls[op]
}

// BackendCalls reports the number of calls that would reach the network.
func (c *Client) BackendCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls[OpGetSession] + c.calls[OpSignUp] + c.calls[OpSignIn] + c.calls[OpSignOut]
}

func (c *Client) Listeners() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.listeners)
}

func (c *Client) SignUps() []identity.SignUpParams {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]identity.SignUpParams(nil), c.signUps...)
}

func (c *Client) enter(ctx context.Context, op Op) {
	c.mu.Lock()
	c.calls[op]++
	hook := c.hooks[op]
	c.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}
}

// queue must be called with c.mu held. The returned func delivers the event
// unless events are deferred.
func (c *Client) queue(event identity.Event, session *identity.Session) func() {
	if c.deferEvents {
		c.pending = append(c.pending, pendingEvent{event: event, session: session.Clone()})
		return func() {}
	}

	listeners := c.snapshotListeners()
	return func() {
		for _, l := range listeners {
			l(event, session.Clone())
		}
	}
}

func (c *Client) snapshotListeners() []identity.Listener {
	out := make([]identity.Listener, 0, len(c.listeners))
	for id := 1; id <= c.nextID; id++ {
		if l, ok := c.listeners[id]; ok {
			out = append(out, l)
		}
	}

	return out
}

type subscription struct {
	client *Client
	id     int
	once   sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.client.mu.Lock()
		defer s.client.mu.Unlock()

		delete(s.client.listeners, s.id)
	})
}
