package gotrue

import (
	"context"
	"sync"

	"github.com/autoretech/backoffice/internal/identity"
)

// Storage persists the session and the pending PKCE verifier of one instance.
// Load methods return a zero value, not an error, when nothing is stored.
type Storage interface {
	LoadSession(ctx context.Context) (*identity.Session, error)
	SaveSession(ctx context.Context, session *identity.Session) error
	RemoveSession(ctx context.Context) error
	LoadVerifier(ctx context.Context) (string, error)
	SaveVerifier(ctx context.Context, verifier string) error
	RemoveVerifier(ctx context.Context) error
}

type MemoryStorage struct {
	mu       sync.Mutex
	session  *identity.Session
	verifier string
}

var _ Storage = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) LoadSession(context.Context) (*identity.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.session.Clone(), nil
}

func (m *MemoryStorage) SaveSession(_ context.Context, session *identity.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = session.Clone()
	return nil
}

func (m *MemoryStorage) RemoveSession(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = nil
	return nil
}

func (m *MemoryStorage) LoadVerifier(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.verifier, nil
}

func (m *MemoryStorage) SaveVerifier(_ context.Context, verifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.verifier = verifier
	return nil
}

func (m *MemoryStorage) RemoveVerifier(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.verifier = ""
	return nil
}
