package workspace

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	slogctx "github.com/veqryn/slog-context"

	"github.com/autoretech/backoffice/internal/auth"
	"github.com/autoretech/backoffice/internal/config"
	"github.com/autoretech/backoffice/internal/identity"
	"github.com/autoretech/backoffice/internal/middleware/origin"
	"github.com/autoretech/backoffice/internal/pkce"
	"github.com/autoretech/backoffice/internal/serviceerr"
	"github.com/autoretech/backoffice/pkg/fingerprint"
)

const callbackPath = "/auth/callback"

var ErrRegistryClosed = errors.New("workspace registry is closed")

// ClientFactory returns the identity client of a new instance.
type ClientFactory func(instanceID string) (identity.Client, error)

// Hook runs for every new instance before it is mounted. The returned release
// func, if any, runs when the instance is closed.
type Hook func(ctx context.Context, inst *Instance) (release func())

// Owners remembers the fingerprint of the browser each instance id was issued
// to. Without it ids that are not live are never reused.
type Owners interface {
	Owner(ctx context.Context, id string) (fp string, found bool, err error)
	Claim(ctx context.Context, id, fp string) error
}

type Option func(*Registry)

func WithIdleTimeout(idle, cleanupInterval time.Duration) Option {
	return func(r *Registry) {
		r.idle = idle
		r.cleanup = cleanupInterval
	}
}

func WithCookie(ct config.CookieTemplate) Option {
	return func(r *Registry) { r.cookie = ct }
}

// WithRedirectURL fixes the sign-up confirmation link target. Without it the
// link points at /auth/callback on the origin of the creating request.
func WithRedirectURL(u string) Option {
	return func(r *Registry) { r.redirectURL = u }
}

// WithSignInLimit sets the rate and burst of sign-in attempts per instance.
func WithSignInLimit(limit rate.Limit, burst int) Option {
	return func(r *Registry) {
		r.limit = limit
		r.burst = burst
	}
}

func WithHook(h Hook) Option {
	return func(r *Registry) { r.hooks = append(r.hooks, h) }
}

// WithOwners lets a browser get its id back after the instance was closed,
// provided it presents the fingerprint the id was issued to.
func WithOwners(o Owners) Option {
	return func(r *Registry) { r.owners = o }
}

func WithClock(clock clockwork.Clock) Option {
	return func(r *Registry) { r.clock = clock }
}

// Registry owns the instances of all browsers. An instance is mounted when it
// is created and closed when it has been idle for too long or the registry is
// closed.
type Registry struct {
	settings    identity.Settings
	newClient   ClientFactory
	idle        time.Duration
	cleanup     time.Duration
	cookie      config.CookieTemplate
	redirectURL string
	limit       rate.Limit
	burst       int
	hooks       []Hook
	owners      Owners
	clock       clockwork.Clock
	ids         pkce.Source

	cache *cache.Cache

	mu       sync.Mutex
	closed   bool
	creating map[string]struct{}
}

func NewRegistry(settings identity.Settings, newClient ClientFactory, opts ...Option) *Registry {
	r := &Registry{
		settings:  settings,
		newClient: newClient,
		idle:      30 * time.Minute,
		cleanup:   5 * time.Minute,
		cookie:    config.CookieTemplate{Name: "backoffice_instance", Path: "/", HTTPOnly: true, SameSite: config.CookieSameSiteLax},
		limit:     rate.Every(5 * time.Second),
		burst:     5,
		clock:     clockwork.NewRealClock(),
		creating:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	r.cache = cache.New(r.idle, r.cleanup)
	r.cache.OnEvicted(func(id string, v any) {
		inst, ok := v.(*Instance)
		if !ok {
			return
		}

		slogctx.Debug(context.Background(), "Closing workspace instance", "instance_id", id)
		inst.Close()
	})

	return r
}

// Lookup returns the live instance id, provided it was created by a browser with
// the same fingerprint. A hit restarts the idle timeout.
func (r *Registry) Lookup(id, fp string) (*Instance, bool) {
	v, ok := r.cache.Get(id)
	if !ok {
		return nil, false
	}

	inst, ok := v.(*Instance)
	if !ok || inst.Fingerprint != fp {
		return nil, false
	}

	r.cache.Set(id, inst, cache.DefaultExpiration)
	return inst, true
}

// Create mounts a new instance for fp. A well-formed id that is not live any
// more is reused when the owners record it for fp, so that a persisted session
// survives a restart; otherwise a fresh id is generated.
func (r *Registry) Create(ctx context.Context, requested, fp string) (*Instance, error) {
	id, err := r.reserve(requested, r.ownedBy(ctx, requested, fp))
	if err != nil {
		return nil, err
	}

	inst, err := r.newInstance(ctx, id, fp)
	if err != nil {
		r.release(id)
		return nil, err
	}

	r.mu.Lock()
	delete(r.creating, id)
	if r.closed {
		r.mu.Unlock()
		inst.Close()
		return nil, ErrRegistryClosed
	}
	r.cache.Set(id, inst, cache.DefaultExpiration)
	r.mu.Unlock()

	if r.owners != nil {
		if err := r.owners.Claim(ctx, id, fp); err != nil {
			slogctx.Warn(ctx, "Failed to record the owner of a workspace instance", "instance_id", id, "error", err)
		}
	}

	slogctx.Info(ctx, "Created workspace instance", "instance_id", id, "reused", id == requested)
	return inst, nil
}

// ownedBy reports whether id was issued to fp.
func (r *Registry) ownedBy(ctx context.Context, id, fp string) bool {
	if r.owners == nil || !validID(id) {
		return false
	}

	owner, found, err := r.owners.Owner(ctx, id)
	if err != nil {
		slogctx.Warn(ctx, "Failed to look up the owner of a workspace instance", "instance_id", id, "error", err)
		return false
	}

	return found && owner == fp
}

// reserve returns the id the new instance is created under. id is kept when
// reuse is set and no other instance holds or is about to hold it.
func (r *Registry) reserve(id string, reuse bool) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return "", ErrRegistryClosed
	}

	if validID(id) {
		// an expired instance stays in the cache until the cleanup runs, so
		// close it now before its id is handed out again
		if _, live := r.cache.Get(id); !live {
			r.cache.Delete(id)
		}
	}

	if !reuse || r.taken(id) {
		id = r.ids.InstanceID()
		for r.taken(id) {
			id = r.ids.InstanceID()
		}
	}

	r.creating[id] = struct{}{}
	return id, nil
}

// taken must be called with r.mu held.
func (r *Registry) taken(id string) bool {
	if _, ok := r.creating[id]; ok {
		return true
	}

	_, live := r.cache.Get(id)
	return live
}

func (r *Registry) release(id string) {
	r.mu.Lock()
	delete(r.creating, id)
	r.mu.Unlock()
}

func (r *Registry) newInstance(ctx context.Context, id, fp string) (*Instance, error) {
	client, err := r.newClient(id)
	if err != nil {
		return nil, fmt.Errorf("creating identity client: %w", err)
	}

	notices := NewNotices(defaultMaxNotices)
	inst := &Instance{
		ID:          id,
		Fingerprint: fp,
		CreatedAt:   r.clock.Now(),
		Identity:    client,
		Notices:     notices,
		Limiter:     rate.NewLimiter(r.limit, r.burst),
		Manager: auth.NewManager(client, r.settings,
			auth.WithNotifier(notices),
			auth.WithRedirectURL(r.redirectFor(ctx)),
		),
	}

	for _, hook := range r.hooks {
		inst.OnClose(hook(ctx, inst))
	}

	inst.Manager.Mount(slogctx.With(ctx, "instance_id", id))
	return inst, nil
}

func (r *Registry) redirectFor(ctx context.Context) string {
	if r.redirectURL != "" {
		return r.redirectURL
	}

	o, err := origin.FromContext(ctx)
	if err != nil {
		return ""
	}

	return o + callbackPath
}

func (r *Registry) Len() int {
	return r.cache.ItemCount()
}

// Close closes every instance, expired ones included. Create fails afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cache.DeleteExpired()
	for id := range r.cache.Items() {
		r.cache.Delete(id)
	}
}

// Middleware attaches the instance of the browser to the request context,
// creating it and setting the instance cookie when needed.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()

		fp, err := fingerprint.FromContext(ctx)
		if err != nil {
			fp, _ = fingerprint.FromHTTPRequest(req)
		}

		var (
			inst     *Instance
			cookieID string
		)
		if c, err := req.Cookie(r.cookie.Name); err == nil {
			cookieID = c.Value
			inst, _ = r.Lookup(cookieID, fp)
		}

		if inst == nil {
			inst, err = r.Create(ctx, cookieID, fp)
			if err != nil {
				slogctx.Error(ctx, "Failed to create a workspace instance", "error", err)
				http.Error(w, serviceerr.ErrUnknown.Error(), serviceerr.ErrUnknown.HTTPStatus())
				return
			}
		}

		if inst.ID != cookieID {
			http.SetCookie(w, r.cookie.ToCookie(inst.ID))
		}

		ctx = slogctx.With(ctx, "instance_id", inst.ID)
		ctx = WithInstance(ctx, inst)
		ctx = auth.WithManager(ctx, inst.Manager)

		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

func validID(id string) bool {
	if len(id) != pkce.InstanceIDLength {
		return false
	}

	for _, c := range id {
		if !strings.ContainsRune(pkce.InstanceIDAlphabet, c) {
			return false
		}
	}

	return true
}
