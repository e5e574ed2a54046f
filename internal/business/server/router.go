package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"

	"github.com/autoretech/backoffice/internal/auth"
	"github.com/autoretech/backoffice/internal/config"
	"github.com/autoretech/backoffice/internal/journal"
	"github.com/autoretech/backoffice/internal/middleware/origin"
	"github.com/autoretech/backoffice/internal/workspace"
	"github.com/autoretech/backoffice/pkg/fingerprint"
)

const (
	pathHome     = "/"
	pathLogin    = "/auth/login"
	pathSignUp   = "/auth/signup"
	pathCallback = "/auth/callback"
	pathLogout   = "/auth/logout"
	pathSettings = "/settings"
)

// Deps are the collaborators of the web server.
type Deps struct {
	Registry *workspace.Registry
	// Journal is nil when the journal is disabled.
	Journal journal.Repository
	CSRFKey []byte
	Clock   clockwork.Clock
}

type protectedPage struct {
	name  string
	path  string
	label string
}

var protectedPages = []protectedPage{
	{name: "dashboard", path: pathHome, label: "Dashboard"},
	{name: "vehicles", path: "/vehicles", label: "Vehicles"},
	{name: "customers", path: "/customers", label: "Customers"},
	{name: "transactions", path: "/transactions", label: "Transactions"},
	{name: "demand", path: "/demand", label: "Demand"},
	{name: "marketing", path: "/marketing", label: "Marketing"},
	{name: "settings", path: pathSettings, label: "Settings"},
}

func newHandler(cfg *config.Config, deps Deps) (http.Handler, error) {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	h := &handlers{
		journal:        deps.Journal,
		csrfKey:        deps.CSRFKey,
		csrfMaxAge:     cfg.Workspace.CSRFMaxAge,
		callbackDelay:  cfg.Workspace.CallbackDelay,
		settle:         cfg.Workspace.SettleTimeout,
		recent:         cfg.Journal.Recent,
		clock:          deps.Clock,
		journalEnabled: deps.Journal != nil,
	}

	v, err := newViews(h.prepare)
	if err != nil {
		return nil, err
	}
	h.views = v

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(v.NotFound)
	r.Use(newTraceMiddleware(cfg))

	r.HandleFunc(pathLogin, h.loginPage).Methods(http.MethodGet).Name("login")
	r.HandleFunc(pathLogin, h.login).Methods(http.MethodPost).Name("login.submit")
	r.HandleFunc(pathSignUp, h.signUpPage).Methods(http.MethodGet).Name("signup")
	r.HandleFunc(pathSignUp, h.signUp).Methods(http.MethodPost).Name("signup.submit")
	r.HandleFunc(pathCallback, h.callback).Methods(http.MethodGet).Name("callback")
	r.HandleFunc(pathLogout, h.logout).Methods(http.MethodPost).Name("logout")

	guard := auth.Guard(v, pathLogin, cfg.Workspace.SettleTimeout)
	for _, p := range protectedPages {
		handler := h.page(p)
		if p.path == pathSettings {
			handler = h.settings(p)
		}

		r.Handle(p.path, guard(handler)).Methods(http.MethodGet).Name(p.name)
	}

	var handler http.Handler = r
	handler = deps.Registry.Middleware(handler)
	handler = origin.Middleware(handler)
	handler = fingerprint.Middleware(handler)

	return handler, nil
}

func navFor(path string) []navItem {
	nav := make([]navItem, 0, len(protectedPages))
	for _, p := range protectedPages {
		nav = append(nav, navItem{Path: p.path, Label: p.label, Active: p.path == path})
	}

	return nav
}
