package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/require"

	"github.com/autoretech/backoffice/internal/config"
	"github.com/autoretech/backoffice/internal/identity"
	"github.com/autoretech/backoffice/internal/identity/identitymock"
	"github.com/autoretech/backoffice/internal/journal"
	"github.com/autoretech/backoffice/internal/workspace"
)

const (
	aliceEmail    = "alice@example.com"
	alicePassword = "hunter22"
	userAgent     = "Mozilla/5.0 (X11; Linux x86_64)"
)

var (
	configured   = identity.NewSettings("https://abc.supabase.co", "anon-key")
	unconfigured = identity.NewSettings(identity.PlaceholderURL, identity.PlaceholderAPIKey)
	csrfKey      = []byte("0123456789abcdef0123456789abcdef")
	csrfPattern  = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)
)

func testConfig() *config.Config {
	return &config.Config{
		BaseConfig: commoncfg.BaseConfig{
			Application: commoncfg.Application{
				Name: "test-app",
			},
		},
		HTTP: config.HTTPServer{
			Address:         "localhost:0",
			ShutdownTimeout: time.Second,
		},
		Workspace: config.Workspace{
			SettleTimeout: 2 * time.Second,
			CallbackDelay: 3 * time.Second,
			CSRFMaxAge:    time.Hour,
		},
		Journal: config.Journal{Recent: 20},
	}
}

type clients struct {
	opts []identitymock.Option

	mu   sync.Mutex
	byID map[string]*identitymock.Client
}

func (c *clients) factory(id string) (identity.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.byID == nil {
		c.byID = make(map[string]*identitymock.Client)
	}
	client := identitymock.NewClient(c.opts...)
	c.byID[id] = client

	return client, nil
}

func (c *clients) get(id string) *identitymock.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.byID[id]
}

type testEnv struct {
	handler  http.Handler
	clients  *clients
	registry *workspace.Registry
}

type envOption func(*envConfig)

type envConfig struct {
	settings   identity.Settings
	clientOpts []identitymock.Option
	regOpts    []workspace.Option
	journal    journal.Repository
}

func withSettings(s identity.Settings) envOption {
	return func(c *envConfig) { c.settings = s }
}

func withClientOptions(opts ...identitymock.Option) envOption {
	return func(c *envConfig) { c.clientOpts = append(c.clientOpts, opts...) }
}

func withRegistryOptions(opts ...workspace.Option) envOption {
	return func(c *envConfig) { c.regOpts = append(c.regOpts, opts...) }
}

func withJournal(repo journal.Repository) envOption {
	return func(c *envConfig) { c.journal = repo }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	ec := &envConfig{settings: configured}
	for _, opt := range opts {
		opt(ec)
	}

	cs := &clients{opts: ec.clientOpts}
	reg := workspace.NewRegistry(ec.settings, cs.factory, ec.regOpts...)
	t.Cleanup(reg.Close)

	handler, err := newHandler(testConfig(), Deps{
		Registry: reg,
		Journal:  ec.journal,
		CSRFKey:  csrfKey,
	})
	require.NoError(t, err)

	return &testEnv{handler: handler, clients: cs, registry: reg}
}

// browser keeps the instance cookie between requests like a real one would.
type browser struct {
	t      *testing.T
	env    *testEnv
	cookie *http.Cookie
	token  string
}

func (e *testEnv) browser(t *testing.T) *browser {
	return &browser{t: t, env: e}
}

func (b *browser) do(method, path string, form url.Values) *httptest.ResponseRecorder {
	b.t.Helper()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("User-Agent", userAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if b.cookie != nil {
		req.AddCookie(b.cookie)
	}

	rec := httptest.NewRecorder()
	b.env.handler.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		b.cookie = c
	}
	if m := csrfPattern.FindStringSubmatch(rec.Body.String()); m != nil {
		b.token = m[1]
	}

	return rec
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	b.t.Helper()
	return b.do(http.MethodGet, path, nil)
}

// post submits form with the CSRF token of the last rendered page.
func (b *browser) post(path string, form url.Values) *httptest.ResponseRecorder {
	b.t.Helper()

	if form == nil {
		form = url.Values{}
	}
	if !form.Has(formCSRFToken) {
		form.Set(formCSRFToken, b.token)
	}

	return b.do(http.MethodPost, path, form)
}

func (b *browser) client() *identitymock.Client {
	b.t.Helper()
	require.NotNil(b.t, b.cookie, "no instance yet")

	return b.env.clients.get(b.cookie.Value)
}

// signIn opens the login page and signs in as alice.
func (b *browser) signIn() {
	b.t.Helper()

	b.get(pathLogin)
	rec := b.post(pathLogin, url.Values{formEmail: {aliceEmail}, formPassword: {alicePassword}})
	require.Equal(b.t, http.StatusSeeOther, rec.Code, rec.Body.String())
}
