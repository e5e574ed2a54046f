package journalsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autoretech/backoffice/internal/identity"
	"github.com/autoretech/backoffice/internal/journal"
	"github.com/autoretech/backoffice/internal/serviceerr"
)

const pgUniqueViolation = "23505"

type Repository struct {
	db *pgxpool.Pool
}

var _ journal.Repository = (*Repository)(nil)

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) Append(ctx context.Context, entries ...journal.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	b := new(pgx.Batch)
	for _, e := range entries {
		b.Queue(`INSERT INTO auth_events (id, instance_id, user_id, email, event, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6);`,
			e.ID, e.InstanceID, e.UserID, e.Email, string(e.Event), e.OccurredAt,
		)
	}

	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		if err, ok := handlePgError(err); ok {
			return err
		}

		return fmt.Errorf("inserting into auth_events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing tx: %w", err)
	}

	return nil
}

func (r *Repository) Recent(ctx context.Context, userID string, limit int) ([]journal.Entry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, instance_id, user_id, email, event, occurred_at
FROM auth_events
WHERE user_id = $1
ORDER BY occurred_at DESC
LIMIT $2;`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("selecting from auth_events: %w", err)
	}
	defer rows.Close()

	entries := make([]journal.Entry, 0, limit)
	for rows.Next() {
		var (
			e     journal.Entry
			event string
		)
		if err := rows.Scan(&e.ID, &e.InstanceID, &e.UserID, &e.Email, &event, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scanning auth_events row: %w", err)
		}

		e.Event = identity.Event(event)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating auth_events rows: %w", err)
	}

	return entries, nil
}

func (r *Repository) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM auth_events WHERE occurred_at < $1;`, before)
	if err != nil {
		return 0, fmt.Errorf("deleting from auth_events: %w", err)
	}

	return tag.RowsAffected(), nil
}

func handlePgError(err error) (error, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err, false
	}

	switch pgErr.Code {
	case pgUniqueViolation:
		return serviceerr.ErrConflict, true
	default:
		return err, false
	}
}
