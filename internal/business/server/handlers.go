package server

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	slogctx "github.com/veqryn/slog-context"

	"github.com/autoretech/backoffice/internal/auth"
	"github.com/autoretech/backoffice/internal/identity"
	"github.com/autoretech/backoffice/internal/journal"
	"github.com/autoretech/backoffice/internal/serviceerr"
	"github.com/autoretech/backoffice/internal/workspace"
	"github.com/autoretech/backoffice/pkg/csrf"
)

const (
	opSignIn   = "sign_in"
	opSignUp   = "sign_up"
	opSignOut  = "sign_out"
	opCallback = "callback"

	outcomeOK = "ok"

	formCSRFToken = "csrf_token"
	formEmail     = "email"
	formPassword  = "password"
)

type handlers struct {
	views *views

	journal        journal.Repository
	journalEnabled bool
	recent         int

	csrfKey       []byte
	csrfMaxAge    time.Duration
	callbackDelay time.Duration
	settle        time.Duration
	clock         clockwork.Clock
}

// prepare fills what every page shows from the instance of the request.
func (h *handlers) prepare(r *http.Request, data *pageData) {
	inst, ok := workspace.FromContext(r.Context())
	if !ok {
		return
	}

	state := inst.Manager.State()
	data.Configured = state.IsConfigured
	if data.User == nil {
		data.User = state.User
	}
	if data.User != nil && data.Nav == nil {
		data.Nav = navFor(r.URL.Path)
	}

	data.Notices = append(data.Notices, inst.Notices.Drain()...)
	data.CSRFToken = csrf.NewToken(inst.ID, h.csrfKey, h.clock.Now())
}

func (h *handlers) instance(w http.ResponseWriter, r *http.Request) (*workspace.Instance, bool) {
	inst, ok := workspace.FromContext(r.Context())
	if !ok {
		slogctx.Error(r.Context(), "No workspace instance in the request context")
		http.Error(w, serviceerr.ErrUnknown.Error(), serviceerr.ErrUnknown.HTTPStatus())
	}

	return inst, ok
}

// settled returns the state of inst once its initial fetch finished, waiting
// at most for the settle timeout.
func (h *handlers) settled(ctx context.Context, inst *workspace.Instance) auth.State {
	state := inst.Manager.State()
	if state.Loading && state.IsConfigured && h.settle > 0 {
		state = auth.WaitLoaded(ctx, inst.Manager, h.settle)
	}

	return state
}

func (h *handlers) loginPage(w http.ResponseWriter, r *http.Request) {
	h.credentialsPage(w, r, viewLogin, "Sign in")
}

func (h *handlers) signUpPage(w http.ResponseWriter, r *http.Request) {
	h.credentialsPage(w, r, viewSignUp, "Sign up")
}

// credentialsPage renders the sign-in or sign-up form, or sends users that
// are already signed in to the dashboard.
func (h *handlers) credentialsPage(w http.ResponseWriter, r *http.Request, view, title string) {
	inst, ok := h.instance(w, r)
	if !ok {
		return
	}

	if state := h.settled(r.Context(), inst); state.User != nil {
		http.Redirect(w, r, pathHome, http.StatusFound)
		return
	}

	h.views.render(w, r, http.StatusOK, view, pageData{Title: title})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	h.submitCredentials(w, r, opSignIn, viewLogin, "Sign in", "Sign In Failed",
		func(ctx context.Context, m *auth.Manager, email, password string) error {
			return m.SignIn(ctx, email, password)
		},
		pathHome,
	)
}

func (h *handlers) signUp(w http.ResponseWriter, r *http.Request) {
	h.submitCredentials(w, r, opSignUp, viewSignUp, "Sign up", "Sign Up Failed",
		func(ctx context.Context, m *auth.Manager, email, password string) error {
			return m.SignUp(ctx, email, password)
		},
		pathLogin,
	)
}

type credentialsOp func(ctx context.Context, m *auth.Manager, email, password string) error

// submitCredentials handles a posted sign-in or sign-up form. Failures render
// the form again with the entered e-mail; success redirects to next.
func (h *handlers) submitCredentials(
	w http.ResponseWriter, r *http.Request,
	op, view, title, failureTitle string,
	call credentialsOp,
	next string,
) {
	ctx := r.Context()

	inst, ok := h.instance(w, r)
	if !ok {
		return
	}

	email := strings.TrimSpace(r.PostFormValue(formEmail))
	password := r.PostFormValue(formPassword)
	data := pageData{Title: title, Email: email}

	if !h.validCSRF(r, inst) {
		recordAuth(ctx, op, string(serviceerr.CodeInvalidCSRFToken))
		inst.Notices.Notify(auth.Notification{
			Title:       failureTitle,
			Description: "The form has expired. Please try again.",
			Variant:     auth.VariantDestructive,
		})
		h.views.render(w, r, serviceerr.ErrInvalidCSRFToken.HTTPStatus(), view, data)
		return
	}

	if email == "" || password == "" {
		recordAuth(ctx, op, string(serviceerr.CodeInvalidRequest))
		inst.Notices.Notify(auth.Notification{
			Title:       failureTitle,
			Description: "Email and password are required.",
			Variant:     auth.VariantDestructive,
		})
		h.views.render(w, r, serviceerr.ErrInvalidRequest.HTTPStatus(), view, data)
		return
	}

	if inst.Manager.State().IsConfigured && !inst.Limiter.Allow() {
		slogctx.Warn(ctx, "Too many authentication attempts", "operation", op)
		recordAuth(ctx, op, string(serviceerr.CodeTooManyRequests))
		inst.Notices.Notify(auth.Notification{
			Title:       failureTitle,
			Description: "Too many attempts. Please wait a moment and try again.",
			Variant:     auth.VariantDestructive,
		})
		h.views.render(w, r, serviceerr.ErrTooManyRequests.HTTPStatus(), view, data)
		return
	}

	if err := call(ctx, inst.Manager, email, password); err != nil {
		recordAuth(ctx, op, outcomeOf(err))
		if errors.Is(err, serviceerr.ErrOperationInFlight) {
			inst.Notices.Notify(auth.Notification{
				Title:       failureTitle,
				Description: "Another request is still in progress.",
				Variant:     auth.VariantDestructive,
			})
		}
		h.views.render(w, r, statusOf(err), view, data)
		return
	}

	recordAuth(ctx, op, outcomeOK)
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// logout signs out and always ends on the login page, whatever the outcome.
func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	inst, ok := h.instance(w, r)
	if !ok {
		return
	}

	if !h.validCSRF(r, inst) {
		recordAuth(ctx, opSignOut, string(serviceerr.CodeInvalidCSRFToken))
		http.Error(w, serviceerr.ErrInvalidCSRFToken.Error(), serviceerr.ErrInvalidCSRFToken.HTTPStatus())
		return
	}

	if err := inst.Manager.SignOut(ctx); err != nil {
		recordAuth(ctx, opSignOut, outcomeOf(err))
	} else {
		recordAuth(ctx, opSignOut, outcomeOK)
	}

	http.Redirect(w, r, pathLogin, http.StatusSeeOther)
}

// callback completes the link of a confirmation e-mail: it exchanges the
// code, if any, then fetches the session exactly once.
func (h *handlers) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	inst, ok := h.instance(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	if desc := query.Get("error_description"); desc != "" {
		slogctx.Error(ctx, "Identity service reported an error in the auth callback", "error", query.Get("error"), "description", desc)
		recordAuth(ctx, opCallback, cmp.Or(query.Get("error"), string(serviceerr.CodeUnknown)))
		h.callbackFailed(w, r, desc)
		return
	}

	if !inst.Manager.State().IsConfigured {
		recordAuth(ctx, opCallback, string(serviceerr.CodeNotConfigured))
		h.callbackFailed(w, r, serviceerr.ErrAuthNotConfigured.Description)
		return
	}

	if code := query.Get("code"); code != "" {
		if exchanger, ok := inst.Identity.(identity.CodeExchanger); ok {
			if res := exchanger.ExchangeCodeForSession(ctx, code); !res.IsOk() {
				slogctx.Error(ctx, "Error exchanging the auth code", "error", res.Err())
				recordAuth(ctx, opCallback, string(res.Err().Kind))
				h.callbackFailed(w, r, res.Err().Message)
				return
			}
		}
	}

	res := inst.Identity.GetSession(ctx)
	if !res.IsOk() {
		slogctx.Error(ctx, "Error in auth callback", "error", res.Err())
		recordAuth(ctx, opCallback, string(res.Err().Kind))
		h.callbackFailed(w, r, res.Err().Message)
		return
	}

	recordAuth(ctx, opCallback, outcomeOK)
	http.Redirect(w, r, pathHome, http.StatusFound)
}

func (h *handlers) callbackFailed(w http.ResponseWriter, r *http.Request, message string) {
	delay := max(int(h.callbackDelay/time.Second), 1)

	h.views.render(w, r, http.StatusUnauthorized, viewCallbackError, pageData{
		Title:      "Authentication failed",
		Error:      message,
		Refresh:    delay,
		RefreshURL: pathLogin,
	})
}

func (h *handlers) page(p protectedPage) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.views.render(w, r, http.StatusOK, viewPage, pageData{Title: p.label})
	})
}

func (h *handlers) settings(p protectedPage) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		inst, ok := h.instance(w, r)
		if !ok {
			return
		}

		data := pageData{Title: p.label, JournalEnabled: h.journalEnabled}

		user := inst.Manager.State().User
		if h.journal != nil && user != nil {
			entries, err := h.journal.Recent(ctx, user.ID, h.recent)
			if err != nil {
				slogctx.Error(ctx, "Failed to load recent auth events", "error", err)
			}
			data.Entries = entries
		}

		h.views.render(w, r, http.StatusOK, viewSettings, data)
	})
}

func (h *handlers) validCSRF(r *http.Request, inst *workspace.Instance) bool {
	return csrf.Validate(r.PostFormValue(formCSRFToken), inst.ID, h.csrfKey, h.clock.Now(), h.csrfMaxAge)
}

// statusOf maps the error of an auth operation to the status of the
// re-rendered form.
func statusOf(err error) int {
	var serviceErr *serviceerr.Error
	if errors.As(err, &serviceErr) {
		return serviceErr.HTTPStatus()
	}

	var identityErr *identity.Error
	if !errors.As(err, &identityErr) {
		return http.StatusInternalServerError
	}

	switch identityErr.Kind {
	case identity.ErrorKindInvalidCredentials, identity.ErrorKindEmailNotConfirmed:
		return http.StatusUnauthorized
	case identity.ErrorKindUserAlreadyExists:
		return http.StatusConflict
	case identity.ErrorKindWeakPassword:
		return http.StatusUnprocessableEntity
	case identity.ErrorKindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

func outcomeOf(err error) string {
	var serviceErr *serviceerr.Error
	if errors.As(err, &serviceErr) {
		return string(serviceErr.Err)
	}

	var identityErr *identity.Error
	if errors.As(err, &identityErr) {
		return string(identityErr.Kind)
	}

	return string(serviceerr.CodeUnknown)
}
