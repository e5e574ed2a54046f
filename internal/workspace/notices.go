package workspace

import (
	"sync"

	"github.com/autoretech/backoffice/internal/auth"
)

const defaultMaxNotices = 5

// Notices queues the notifications of an instance until the next page render
// drains them. Only the newest notifications are kept.
type Notices struct {
	mu    sync.Mutex
	items []auth.Notification
	max   int
}

var _ auth.Notifier = (*Notices)(nil)

func NewNotices(maxItems int) *Notices {
	if maxItems <= 0 {
		maxItems = defaultMaxNotices
	}

	return &Notices{max: maxItems}
}

func (n *Notices) Notify(notification auth.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.items = append(n.items, notification)
	if over := len(n.items) - n.max; over > 0 {
		n.items = n.items[over:]
	}
}

// Drain returns the queued notifications, oldest first, and empties the queue.
func (n *Notices) Drain() []auth.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	items := n.items
	n.items = nil

	return items
}
