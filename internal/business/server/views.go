package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/autoretech/backoffice/internal/auth"
	"github.com/autoretech/backoffice/internal/identity"
	"github.com/autoretech/backoffice/internal/journal"
	"github.com/autoretech/backoffice/internal/serviceerr"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	viewLogin         = "login"
	viewSignUp        = "signup"
	viewPage          = "page"
	viewSettings      = "settings"
	viewLoading       = "loading"
	viewConfigError   = "config_error"
	viewCallbackError = "callback_error"
	viewNotFound      = "not_found"

	loadingRefresh = 1
)

var viewNames = []string{
	viewLogin, viewSignUp, viewPage, viewSettings,
	viewLoading, viewConfigError, viewCallbackError, viewNotFound,
}

type navItem struct {
	Path   string
	Label  string
	Active bool
}

// pageData is what every template renders from.
type pageData struct {
	Title      string
	User       *identity.User
	Configured bool
	Notices    []auth.Notification
	CSRFToken  string
	Nav        []navItem

	Refresh    int
	RefreshURL string

	Email string
	Error string

	JournalEnabled bool
	Entries        []journal.Entry
}

var templateFuncs = template.FuncMap{
	"formatTime": func(v any) string {
		switch t := v.(type) {
		case time.Time:
			return t.UTC().Format("2006-01-02 15:04 MST")
		case *time.Time:
			if t == nil {
				return ""
			}
			return t.UTC().Format("2006-01-02 15:04 MST")
		default:
			return ""
		}
	},
	"eventLabel": func(e identity.Event) string {
		return strings.ReplaceAll(strings.ToLower(string(e)), "_", " ")
	},
}

type views struct {
	pages map[string]*template.Template
	// prepare fills the per-request fields of data before rendering.
	prepare func(r *http.Request, data *pageData)
}

var _ auth.Views = (*views)(nil)

func newViews(prepare func(r *http.Request, data *pageData)) (*views, error) {
	v := &views{
		pages:   make(map[string]*template.Template, len(viewNames)),
		prepare: prepare,
	}

	for _, name := range viewNames {
		t, err := template.New("layout.html").
			Funcs(templateFuncs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}

		v.pages[name] = t
	}

	return v, nil
}

func (v *views) render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	ctx := r.Context()

	t, ok := v.pages[name]
	if !ok {
		slogctx.Error(ctx, "Unknown view", "view", name)
		http.Error(w, serviceerr.ErrUnknown.Error(), serviceerr.ErrUnknown.HTTPStatus())
		return
	}

	if v.prepare != nil {
		v.prepare(r, &data)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		slogctx.Error(ctx, "Failed to render a view", "view", name, "error", err)
		http.Error(w, serviceerr.ErrUnknown.Error(), serviceerr.ErrUnknown.HTTPStatus())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (v *views) Loading(w http.ResponseWriter, r *http.Request) {
	v.render(w, r, http.StatusOK, viewLoading, pageData{
		Title:      "Loading",
		Refresh:    loadingRefresh,
		RefreshURL: r.URL.RequestURI(),
	})
}

func (v *views) ConfigError(w http.ResponseWriter, r *http.Request) {
	v.render(w, r, serviceerr.ErrAuthNotConfigured.HTTPStatus(), viewConfigError, pageData{
		Title: "Configuration required",
	})
}

func (v *views) NotFound(w http.ResponseWriter, r *http.Request) {
	slogctx.Warn(r.Context(), "User attempted to access a non-existent route", "path", r.URL.Path)
	v.render(w, r, http.StatusNotFound, viewNotFound, pageData{Title: "Not found"})
}
