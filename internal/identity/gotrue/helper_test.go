package gotrue_test

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/autoretech/backoffice/internal/identity"
	"github.com/autoretech/backoffice/internal/identity/gotrue"
)

const testAPIKey = "anon-key"

var testEpoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type recordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   map[string]string
}

// fakeGoTrue is a minimal in-process GoTrue server.
type fakeGoTrue struct {
	mu sync.Mutex

	users         map[string]string
	refreshTokens map[string]string
	challenges    map[string]string
	issued        int
	requests      []recordedRequest

	autoConfirm   bool
	omitUser      bool
	refreshStatus int
	logoutStatus  int
}

func newFakeGoTrue(t *testing.T) (*fakeGoTrue, *httptest.Server) {
	t.Helper()

	f := &fakeGoTrue{
		users:         map[string]string{"ada@example.com": "correct-horse"},
		refreshTokens: make(map[string]string),
		challenges:    make(map[string]string),
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	return f, srv
}

func (f *fakeGoTrue) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	body := map[string]string{}
	raw, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(raw, &body)

	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
	})

	switch r.URL.Path {
	case "/auth/v1/token":
		f.token(w, r.URL.Query().Get("grant_type"), body)
	case "/auth/v1/signup":
		f.signUp(w, body)
	case "/auth/v1/logout":
		if f.logoutStatus != 0 {
			writeAPIError(w, f.logoutStatus, "session_not_found", "Session from session_id claim in JWT does not exist")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeGoTrue) token(w http.ResponseWriter, grant string, body map[string]string) {
	switch grant {
	case "password":
		password, ok := f.users[body["email"]]
		if !ok || password != body["password"] {
			writeAPIError(w, http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
			return
		}
		f.writeSession(w, body["email"])
	case "refresh_token":
		email, ok := f.refreshTokens[body["refresh_token"]]
		if f.refreshStatus != 0 || !ok {
			status := f.refreshStatus
			if status == 0 {
				status = http.StatusBadRequest
			}
			writeAPIError(w, status, "refresh_token_not_found", "Invalid Refresh Token: Refresh Token Not Found")
			return
		}
		delete(f.refreshTokens, body["refresh_token"])
		f.writeSession(w, email)
	case "pkce":
		for email, challenge := range f.challenges {
			if body["auth_code"] != "code-"+email {
				continue
			}
			sum := sha256.Sum256([]byte(body["code_verifier"]))
			if base64.RawURLEncoding.EncodeToString(sum[:]) != challenge {
				writeAPIError(w, http.StatusBadRequest, "bad_code_verifier", "code challenge does not match previously saved code verifier")
				return
			}
			delete(f.challenges, email)
			f.writeSession(w, email)
			return
		}
		writeAPIError(w, http.StatusNotFound, "flow_state_not_found", "invalid flow state, no valid flow state found")
	default:
		writeAPIError(w, http.StatusBadRequest, "validation_failed", "unsupported_grant_type")
	}
}

func (f *fakeGoTrue) signUp(w http.ResponseWriter, body map[string]string) {
	email := body["email"]
	if _, exists := f.users[email]; exists {
		writeAPIError(w, http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
		return
	}
	f.users[email] = body["password"]

	if f.autoConfirm {
		f.writeSession(w, email)
		return
	}

	f.challenges[email] = body["code_challenge"]
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"id": "user-" + email, "email": email})
}

func (f *fakeGoTrue) writeSession(w http.ResponseWriter, email string) {
	f.issued++
	refresh := fmt.Sprintf("refresh-%d", f.issued)
	f.refreshTokens[refresh] = email

	resp := map[string]any{
		"access_token":  fmt.Sprintf("access-%d", f.issued),
		"token_type":    "bearer",
		"expires_in":    3600,
		"refresh_token": refresh,
	}
	if !f.omitUser {
		resp["user"] = map[string]any{"id": "user-" + email, "email": email}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeGoTrue) Requests(path string) []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []recordedRequest
	for _, r := range f.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}

	return out
}

func writeAPIError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": status, "error_code": code, "msg": msg})
}

type recordedEvent struct {
	Event   identity.Event
	Session *identity.Session
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) Listen(event identity.Event, session *identity.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, recordedEvent{Event: event, Session: session})
}

func (r *eventRecorder) Events() []identity.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]identity.Event, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Event)
	}

	return out
}

func (r *eventRecorder) Last() recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.events[len(r.events)-1]
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...gotrue.Option) (*gotrue.Client, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(testEpoch)
	opts = append([]gotrue.Option{gotrue.WithClock(clock), gotrue.WithHTTPClient(srv.Client())}, opts...)

	client, err := gotrue.NewClient(identity.NewSettings(srv.URL, testAPIKey), opts...)
	require.NoError(t, err)

	return client, clock
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
