package auth

import (
	"context"
	"net/http"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/autoretech/backoffice/internal/serviceerr"
)

type Outcome int

const (
	OutcomeLoading Outcome = iota
	OutcomeConfigError
	OutcomeRedirect
	OutcomeContent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLoading:
		return "loading"
	case OutcomeConfigError:
		return "config_error"
	case OutcomeRedirect:
		return "redirect"
	case OutcomeContent:
		return "content"
	default:
		return "unknown"
	}
}

// Decide picks what a protected page renders for s. A missing configuration
// wins over everything else, since loading never ends in anything useful then.
func Decide(s State) Outcome {
	switch {
	case !s.IsConfigured:
		return OutcomeConfigError
	case s.Loading:
		return OutcomeLoading
	case s.User == nil:
		return OutcomeRedirect
	default:
		return OutcomeContent
	}
}

// Views renders the outcomes of the guard that are not the protected page itself.
type Views interface {
	Loading(w http.ResponseWriter, r *http.Request)
	ConfigError(w http.ResponseWriter, r *http.Request)
}

// Guard wraps protected handlers. If the instance is still loading, the guard
// waits up to settle for the initial fetch before it decides.
func Guard(views Views, loginPath string, settle time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			m, ok := ManagerFromContext(ctx)
			if !ok {
				slogctx.Error(ctx, "No session manager in the request context")
				http.Error(w, serviceerr.ErrUnknown.Error(), serviceerr.ErrUnknown.HTTPStatus())
				return
			}

			state := m.State()
			if state.Loading && state.IsConfigured && settle > 0 {
				state = WaitLoaded(ctx, m, settle)
			}

			outcome := Decide(state)
			slogctx.Debug(ctx, "Route guard decided", "path", r.URL.Path, "outcome", outcome)

			switch outcome {
			case OutcomeLoading:
				views.Loading(w, r)
			case OutcomeConfigError:
				views.ConfigError(w, r)
			case OutcomeRedirect:
				http.Redirect(w, r, loginPath, http.StatusFound)
			case OutcomeContent:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// WaitLoaded blocks until m stopped loading, settle elapsed or ctx is done,
// and returns the state at that point.
func WaitLoaded(ctx context.Context, m *Manager, settle time.Duration) State {
	timer := time.NewTimer(settle)
	defer timer.Stop()

	select {
	case <-m.Loaded():
	case <-timer.C:
	case <-ctx.Done():
	}

	return m.State()
}
