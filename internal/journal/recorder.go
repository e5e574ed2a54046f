package journal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	slogctx "github.com/veqryn/slog-context"

	"github.com/autoretech/backoffice/internal/identity"
	"github.com/autoretech/backoffice/internal/workspace"
)

const (
	defaultBufferSize = 256
	defaultBatchSize  = 32
)

type RecorderOption func(*Recorder)

func WithClock(clock clockwork.Clock) RecorderOption {
	return func(r *Recorder) { r.clock = clock }
}

func WithBufferSize(n int) RecorderOption {
	return func(r *Recorder) { r.bufferSize = n }
}

// Recorder turns auth state changes into journal entries and writes them from
// a single background loop, so listeners never wait for the database.
type Recorder struct {
	repo       Repository
	clock      clockwork.Clock
	bufferSize int
	entries    chan Entry
}

func NewRecorder(repo Repository, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		repo:       repo,
		clock:      clockwork.NewRealClock(),
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.entries = make(chan Entry, r.bufferSize)

	return r
}

// Hook subscribes the recorder to the identity client of inst. It matches
// workspace.Hook.
func (r *Recorder) Hook(ctx context.Context, inst *workspace.Instance) func() {
	var (
		mu   sync.Mutex
		last identity.User
	)

	sub := inst.Identity.OnAuthStateChange(func(event identity.Event, session *identity.Session) {
		mu.Lock()
		defer mu.Unlock()

		if session != nil {
			last = session.User
		}

		// the initial session is a replay, not a change
		if event == identity.EventInitialSession {
			return
		}

		r.Record(ctx, Entry{InstanceID: inst.ID, UserID: last.ID, Email: last.Email, Event: event})
	})

	return sub.Unsubscribe
}

// Record queues entry. Entries are dropped, with a warning, while the buffer
// is full.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = r.clock.Now()
	}

	select {
	case r.entries <- entry:
	default:
		slogctx.Warn(ctx, "Journal buffer full, dropping entry", "event", entry.Event, "instance_id", entry.InstanceID)
	}
}

// Run writes queued entries until ctx is done, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case entry := <-r.entries:
			r.write(ctx, r.batch(entry))
		case <-ctx.Done():
			r.flush(context.WithoutCancel(ctx))
			return nil
		}
	}
}

func (r *Recorder) batch(first Entry) []Entry {
	batch := []Entry{first}
	for len(batch) < defaultBatchSize {
		select {
		case entry := <-r.entries:
			batch = append(batch, entry)
		default:
			return batch
		}
	}

	return batch
}

func (r *Recorder) flush(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for {
		select {
		case entry := <-r.entries:
			r.write(ctx, r.batch(entry))
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, batch []Entry) {
	if err := r.repo.Append(ctx, batch...); err != nil {
		slogctx.Error(ctx, "Failed to write journal entries", "error", err, "count", len(batch))
	}
}
