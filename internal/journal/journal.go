// Package journal records the auth state changes of every workspace instance
// so that users can review their recent sign-ins.
package journal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/autoretech/backoffice/internal/identity"
)

type Entry struct {
	ID         uuid.UUID
	InstanceID string
	UserID     string
	Email      string
	Event      identity.Event
	OccurredAt time.Time
}

type Repository interface {
	Append(ctx context.Context, entries ...Entry) error
	// Recent returns the newest entries of userID, newest first.
	Recent(ctx context.Context, userID string, limit int) ([]Entry, error)
	// Prune deletes entries older than before and reports how many were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)
}
