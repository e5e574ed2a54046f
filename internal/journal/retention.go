package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	slogctx "github.com/veqryn/slog-context"
)

// Retention deletes journal entries older than a fixed age.
type Retention struct {
	repo  Repository
	keep  time.Duration
	clock clockwork.Clock
}

func NewRetention(repo Repository, keep time.Duration, clock clockwork.Clock) *Retention {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Retention{repo: repo, keep: keep, clock: clock}
}

// Trigger runs one pruning pass. A non-positive retention keeps everything.
func (r *Retention) Trigger(ctx context.Context) error {
	if r.keep <= 0 {
		return nil
	}

	before := r.clock.Now().Add(-r.keep)
	removed, err := r.repo.Prune(ctx, before)
	if err != nil {
		return fmt.Errorf("pruning journal: %w", err)
	}

	slogctx.Info(ctx, "Pruned journal", "removed", removed, "before", before)
	return nil
}
