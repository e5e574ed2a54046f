package journalmock

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/autoretech/backoffice/internal/journal"
)

type RepositoryOption func(*Repository)

func WithEntries(entries ...journal.Entry) RepositoryOption {
	return func(r *Repository) { r.entries = append(r.entries, entries...) }
}

func WithAppendError(err error) RepositoryOption {
	return func(r *Repository) { r.appendErr = err }
}

func WithRecentError(err error) RepositoryOption {
	return func(r *Repository) { r.recentErr = err }
}

func WithPruneError(err error) RepositoryOption {
	return func(r *Repository) { r.pruneErr = err }
}

type Repository struct {
	mu      sync.Mutex
	entries []journal.Entry

	appendErr, recentErr, pruneErr error
}

var _ journal.Repository = (*Repository)(nil)

func NewInMemRepository(opts ...RepositoryOption) *Repository {
	r := &Repository{}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

func (r *Repository) Append(_ context.Context, entries ...journal.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.appendErr != nil {
		return r.appendErr
	}

	r.entries = append(r.entries, entries...)
	return nil
}

func (r *Repository) Recent(_ context.Context, userID string, limit int) ([]journal.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recentErr != nil {
		return nil, r.recentErr
	}

	var out []journal.Entry
	for _, e := range r.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}

	slices.SortStableFunc(out, func(a, b journal.Entry) int {
		return b.OccurredAt.Compare(a.OccurredAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (r *Repository) Prune(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pruneErr != nil {
		return 0, r.pruneErr
	}

	kept := r.entries[:0]
	for _, e := range r.entries {
		if !e.OccurredAt.Before(before) {
			kept = append(kept, e)
		}
	}

	removed := int64(len(r.entries) - len(kept))
	r.entries = kept

	return removed, nil
}

// Entries returns everything appended so far.
func (r *Repository) Entries() []journal.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.entries)
}
