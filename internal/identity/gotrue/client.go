// Package gotrue implements [identity.Client] against the REST API of a
// Supabase GoTrue identity service.
//
// A Client belongs to one workspace instance: it keeps that instance's session
// in a [Storage], refreshes it when it is about to expire and notifies the
// registered listeners of every change in the order the changes happened.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	slogctx "github.com/veqryn/slog-context"

	"github.com/autoretech/backoffice/internal/identity"
	"github.com/autoretech/backoffice/internal/pkce"
)

const (
	authPath             = "/auth/v1"
	clientInfo           = "backoffice-go/1.0"
	defaultRefreshMargin = 90 * time.Second
)

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

func WithStorage(storage Storage) Option {
	return func(c *Client) { c.storage = storage }
}

// WithRefreshMargin sets how long before expiry GetSession refreshes the session.
func WithRefreshMargin(margin time.Duration) Option {
	return func(c *Client) { c.refreshMargin = margin }
}

type Client struct {
	endpoint      *url.URL
	apiKey        string
	httpClient    *http.Client
	clock         clockwork.Clock
	storage       Storage
	pkce          pkce.Source
	refreshMargin time.Duration
	listeners     *emitter

	// mu serialises every read-modify-write of the stored session.
	mu sync.Mutex
	// deliverMu is taken before mu is released so that events reach the
	// listeners in the order the session changed.
	deliverMu sync.Mutex
}

var (
	_ identity.Client        = (*Client)(nil)
	_ identity.CodeExchanger = (*Client)(nil)
)

func NewClient(settings identity.Settings, opts ...Option) (*Client, error) {
	base, err := url.Parse(settings.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing identity service URL: %w", err)
	}

	c := &Client{
		endpoint:      base.JoinPath(authPath),
		apiKey:        settings.APIKey,
		httpClient:    http.DefaultClient,
		clock:         clockwork.NewRealClock(),
		storage:       NewMemoryStorage(),
		refreshMargin: defaultRefreshMargin,
		listeners:     newEmitter(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c, nil
}

// change is an auth state change produced by a mutation.
type change struct {
	event   identity.Event
	session *identity.Session
}

// mutate runs fn with the session lock held and delivers the change fn
// returns, if any, before a later mutation can deliver its own.
func (c *Client) mutate(fn func() *change) {
	c.mu.Lock()
	ch := fn()
	c.deliverMu.Lock()
	c.mu.Unlock()
	defer c.deliverMu.Unlock()

	if ch != nil {
		c.listeners.emit(ch.event, ch.session)
	}
}

// GetSession returns the stored session. A session about to expire is refreshed
// first; a refresh rejected by the backend signs the instance out.
func (c *Client) GetSession(ctx context.Context) identity.Result[*identity.Session] {
	var res identity.Result[*identity.Session]
	c.mutate(func() *change {
		current, err := c.storage.LoadSession(ctx)
		if err != nil {
			res = identity.Fail[*identity.Session](storageError(err))
			return nil
		}

		if current == nil || !current.ExpiresWithin(c.clock.Now(), c.refreshMargin) {
			res = identity.Ok(current)
			return nil
		}

		refreshed, apiErr := c.refresh(ctx, current.RefreshToken)
		if apiErr != nil {
			res = identity.Fail[*identity.Session](apiErr)
			if apiErr.Kind == identity.ErrorKindNetwork {
				// the backend may still accept the token once reachable again
				return nil
			}

			c.discard(ctx)
			return &change{event: identity.EventSignedOut}
		}

		if err := c.storage.SaveSession(ctx, refreshed); err != nil {
			res = identity.Fail[*identity.Session](storageError(err))
			return nil
		}

		slogctx.Debug(ctx, "Refreshed the identity session", "user_id", refreshed.User.ID)
		res = identity.Ok(refreshed)
		return &change{event: identity.EventTokenRefreshed, session: refreshed}
	})

	return res
}

func (c *Client) SignUp(ctx context.Context, params identity.SignUpParams) identity.Result[*identity.Session] {
	var res identity.Result[*identity.Session]
	c.mutate(func() *change {
		proof := c.pkce.PKCE()
		if err := c.storage.SaveVerifier(ctx, proof.Verifier); err != nil {
			res = identity.Fail[*identity.Session](storageError(err))
			return nil
		}

		query := url.Values{}
		if params.RedirectURL != "" {
			query.Set("redirect_to", params.RedirectURL)
		}

		body := signUpRequest{
			Email:               params.Email,
			Password:            params.Password,
			CodeChallenge:       proof.Challenge,
			CodeChallengeMethod: strings.ToLower(proof.Method),
		}

		var resp signUpResponse
		if apiErr := c.do(ctx, http.MethodPost, "signup", query, body, "", &resp); apiErr != nil {
			res = identity.Fail[*identity.Session](apiErr)
			return nil
		}

		// no tokens means the backend waits for the e-mail confirmation
		if resp.AccessToken == "" {
			res = identity.Ok[*identity.Session](nil)
			return nil
		}

		return c.establish(ctx, resp.tokenResponse, &res)
	})

	return res
}

func (c *Client) SignInWithPassword(ctx context.Context, credentials identity.Credentials) identity.Result[*identity.Session] {
	var res identity.Result[*identity.Session]
	c.mutate(func() *change {
		body := passwordGrantRequest{Email: credentials.Email, Password: credentials.Password}

		var resp tokenResponse
		if apiErr := c.do(ctx, http.MethodPost, "token", url.Values{"grant_type": {"password"}}, body, "", &resp); apiErr != nil {
			res = identity.Fail[*identity.Session](apiErr)
			return nil
		}

		return c.establish(ctx, resp, &res)
	})

	return res
}

// SignOut revokes the session at the backend and forgets it locally. A session
// the backend no longer knows is forgotten all the same.
func (c *Client) SignOut(ctx context.Context) identity.Result[identity.None] {
	var res identity.Result[identity.None]
	c.mutate(func() *change {
		current, err := c.storage.LoadSession(ctx)
		if err != nil {
			res = identity.Fail[identity.None](storageError(err))
			return nil
		}

		if current != nil {
			apiErr := c.do(ctx, http.MethodPost, "logout", url.Values{"scope": {"global"}}, nil, current.AccessToken, nil)
			if apiErr != nil && !sessionAlreadyGone(apiErr) {
				res = identity.Fail[identity.None](apiErr)
				return nil
			}
		}

		c.discard(ctx)
		res = identity.Ok(identity.None{})
		return &change{event: identity.EventSignedOut}
	})

	return res
}

// ExchangeCodeForSession completes an e-mail confirmation link using the PKCE
// verifier stored by SignUp.
func (c *Client) ExchangeCodeForSession(ctx context.Context, code string) identity.Result[*identity.Session] {
	var res identity.Result[*identity.Session]
	c.mutate(func() *change {
		verifier, err := c.storage.LoadVerifier(ctx)
		if err != nil {
			res = identity.Fail[*identity.Session](storageError(err))
			return nil
		}
		if verifier == "" {
			res = identity.Fail[*identity.Session](identity.NewError(identity.ErrorKindSessionMissing,
				"The confirmation link has to be opened in the browser that was used to sign up."))
			return nil
		}

		body := pkceGrantRequest{AuthCode: code, CodeVerifier: verifier}

		var resp tokenResponse
		if apiErr := c.do(ctx, http.MethodPost, "token", url.Values{"grant_type": {"pkce"}}, body, "", &resp); apiErr != nil {
			res = identity.Fail[*identity.Session](apiErr)
			return nil
		}

		if err := c.storage.RemoveVerifier(ctx); err != nil {
			slogctx.Warn(ctx, "Failed to remove the PKCE verifier", "error", err)
		}

		return c.establish(ctx, resp, &res)
	})

	return res
}

// OnAuthStateChange registers listener and immediately hands it the stored
// session as an INITIAL_SESSION event.
func (c *Client) OnAuthStateChange(listener identity.Listener) identity.Subscription {
	c.mu.Lock()
	sub := c.listeners.add(listener)

	initial, err := c.storage.LoadSession(context.Background())
	if err != nil {
		slog.Warn("Failed to load the stored session for a new listener", "error", err)
		initial = nil
	}

	c.deliverMu.Lock()
	c.mu.Unlock()
	defer c.deliverMu.Unlock()

	if sub.active() {
		listener(identity.EventInitialSession, initial.Clone())
	}

	return sub
}

// establish stores the session carried by resp and reports it as SIGNED_IN.
func (c *Client) establish(ctx context.Context, resp tokenResponse, res *identity.Result[*identity.Session]) *change {
	s, apiErr := c.sessionFrom(resp)
	if apiErr != nil {
		*res = identity.Fail[*identity.Session](apiErr)
		return nil
	}

	if err := c.storage.SaveSession(ctx, s); err != nil {
		*res = identity.Fail[*identity.Session](storageError(err))
		return nil
	}

	*res = identity.Ok(s)
	return &change{event: identity.EventSignedIn, session: s}
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*identity.Session, *identity.Error) {
	if refreshToken == "" {
		return nil, identity.NewError(identity.ErrorKindSessionMissing, "Auth session missing!")
	}

	var resp tokenResponse
	body := refreshGrantRequest{RefreshToken: refreshToken}
	if apiErr := c.do(ctx, http.MethodPost, "token", url.Values{"grant_type": {"refresh_token"}}, body, "", &resp); apiErr != nil {
		return nil, apiErr
	}

	return c.sessionFrom(resp)
}

func (c *Client) discard(ctx context.Context) {
	if err := c.storage.RemoveSession(ctx); err != nil {
		slogctx.Warn(ctx, "Failed to remove the stored session", "error", err)
	}
	if err := c.storage.RemoveVerifier(ctx); err != nil {
		slogctx.Warn(ctx, "Failed to remove the PKCE verifier", "error", err)
	}
}

func (c *Client) sessionFrom(resp tokenResponse) (*identity.Session, *identity.Error) {
	if resp.AccessToken == "" {
		return nil, identity.NewError(identity.ErrorKindUnexpectedResponse, "The identity service returned no access token.")
	}

	s := &identity.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
	}

	claims, claimsErr := decodeClaims(resp.AccessToken)

	switch {
	case resp.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(resp.ExpiresAt, 0)
	case resp.ExpiresIn > 0:
		s.ExpiresAt = c.clock.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	case claimsErr == nil:
		s.ExpiresAt = claims.ExpiresAt
	}

	switch {
	case resp.User != nil:
		s.User = resp.User.toUser()
	case claimsErr == nil:
		s.User = identity.User{ID: claims.Subject, Email: claims.Email}
	}

	if s.User.ID == "" {
		return nil, identity.NewError(identity.ErrorKindUnexpectedResponse, "The identity service returned a session without a user.")
	}

	return s, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, bearer string, out any) *identity.Error {
	u := c.endpoint.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &identity.Error{Kind: identity.ErrorKindUnexpectedResponse, Message: "Unable to encode the request.", Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return &identity.Error{Kind: identity.ErrorKindUnknown, Message: "Unable to build the request.", Err: err}
	}

	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-Info", clientInfo)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &identity.Error{Kind: identity.ErrorKindNetwork, Message: "Unable to reach the identity service.", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &identity.Error{
			Kind:    identity.ErrorKindUnexpectedResponse,
			Message: "Unexpected response from the identity service.",
			Status:  resp.StatusCode,
			Err:     err,
		}
	}

	return nil
}

func decodeAPIError(resp *http.Response) *identity.Error {
	var body apiError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &body)

	code := body.ErrorCode
	if code == "" {
		code = body.ErrorName
	}

	message := firstNonEmpty(body.Msg, body.ErrorDescription, body.Message, body.ErrorName, http.StatusText(resp.StatusCode))

	return &identity.Error{
		Kind:    identity.KindFromCode(code, resp.StatusCode),
		Message: message,
		Status:  resp.StatusCode,
	}
}

func sessionAlreadyGone(err *identity.Error) bool {
	switch err.Status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	default:
		return false
	}
}

func storageError(err error) *identity.Error {
	return &identity.Error{Kind: identity.ErrorKindStorage, Message: "Unable to access the stored session.", Err: err}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
