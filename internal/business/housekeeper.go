package business

import (
	"context"
	"errors"
	"fmt"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/autoretech/backoffice/internal/config"
	"github.com/autoretech/backoffice/internal/journal"
	journalsql "github.com/autoretech/backoffice/internal/journal/sql"
)

var ErrJournalDisabled = errors.New("the journal is disabled, nothing to keep house for")

// HousekeeperMain starts the house keeping jobs
func HousekeeperMain(ctx context.Context, cfg *config.Config) error {
	if !cfg.Journal.Enabled {
		return ErrJournalDisabled
	}

	db, err := newJournalPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialise the journal: %w", err)
	}
	defer db.Close()

	retention := journal.NewRetention(journalsql.NewRepository(db), cfg.Journal.Retention, nil)

	return housekeep(ctx, retention, cfg.Housekeeper.TriggerInterval)
}

type trigger interface {
	Trigger(ctx context.Context) error
}

// housekeep triggers job right away and then every interval until ctx is done.
func housekeep(ctx context.Context, job trigger, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid housekeeping interval %s", interval)
	}

	c := time.Tick(interval)
	for {
		err := job.Trigger(ctx)
		if err != nil {
			slogctx.Error(ctx, "Error during journal housekeeping", "error", err)
		}

		select {
		case <-c:
			continue
		case <-ctx.Done():
			return nil
		}
	}
}
