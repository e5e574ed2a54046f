// Package workspace keeps one application instance per browser: its identity
// client, session manager, pending notifications and sign-in limiter.
package workspace

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/autoretech/backoffice/internal/auth"
	"github.com/autoretech/backoffice/internal/identity"
)

type Instance struct {
	ID          string
	Fingerprint string
	CreatedAt   time.Time

	Identity identity.Client
	Manager  *auth.Manager
	Notices  *Notices
	// Limiter throttles sign-in and sign-up attempts.
	Limiter *rate.Limiter

	mu        sync.Mutex
	releases  []func()
	closeOnce sync.Once
}

// OnClose registers release to run when the instance is closed.
func (i *Instance) OnClose(release func()) {
	if release == nil {
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.releases = append(i.releases, release)
}

// Close unmounts the instance. It is safe to call more than once.
func (i *Instance) Close() {
	i.closeOnce.Do(func() {
		i.Manager.Close()

		i.mu.Lock()
		releases := i.releases
		i.releases = nil
		i.mu.Unlock()

		for j := len(releases) - 1; j >= 0; j-- {
			releases[j]()
		}
	})
}

type contextKey string

const instanceKey contextKey = "instance"

func WithInstance(ctx context.Context, inst *Instance) context.Context {
	return context.WithValue(ctx, instanceKey, inst)
}

func FromContext(ctx context.Context) (*Instance, bool) {
	inst, ok := ctx.Value(instanceKey).(*Instance)
	return inst, ok && inst != nil
}
