package gotrue

import (
	"slices"
	"sync"

	"github.com/autoretech/backoffice/internal/identity"
)

type emitter struct {
	mu        sync.Mutex
	next      uint64
	listeners map[uint64]identity.Listener
}

func newEmitter() *emitter {
	return &emitter{listeners: make(map[uint64]identity.Listener)}
}

func (e *emitter) add(listener identity.Listener) *subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.next++
	e.listeners[e.next] = listener

	return &subscription{id: e.next, emitter: e}
}

func (e *emitter) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.listeners, id)
}

func (e *emitter) has(id uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.listeners[id]
	return ok
}

func (e *emitter) len() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.listeners)
}

// emit calls every listener with its own copy of session. Listeners run
// without the emitter lock so they may unsubscribe.
func (e *emitter) emit(event identity.Event, session *identity.Session) {
	e.mu.Lock()
	ids := make([]uint64, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	slices.Sort(ids)

	for _, id := range ids {
		e.mu.Lock()
		listener, ok := e.listeners[id]
		e.mu.Unlock()
		if ok {
			listener(event, session.Clone())
		}
	}
}

type subscription struct {
	id      uint64
	emitter *emitter
	once    sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() { s.emitter.remove(s.id) })
}

func (s *subscription) active() bool {
	return s.emitter.has(s.id)
}

// ListenerCount reports the number of registered listeners.
func (c *Client) ListenerCount() int {
	return c.listeners.len()
}
