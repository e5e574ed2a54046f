// Package gotruevalkey keeps GoTrue sessions in ValKey so that a workspace
// instance survives a restart of the web server.
package gotruevalkey

import (
	"context"
	"errors"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/autoretech/backoffice/internal/identity"
	"github.com/autoretech/backoffice/internal/identity/gotrue"
)

const (
	objectTypeSession  = "session"
	objectTypeVerifier = "verifier"
)

var (
	ErrGetSession     = errors.New("getting session from store")
	ErrStoreSession   = errors.New("setting session into storage")
	ErrDeleteSession  = errors.New("deleting session from store")
	ErrGetVerifier    = errors.New("getting verifier from store")
	ErrStoreVerifier  = errors.New("setting verifier into storage")
	ErrDeleteVerifier = errors.New("deleting verifier from store")
)

// Storage is the ValKey backed [gotrue.Storage] of a single instance.
type Storage struct {
	store      *store
	instanceID string
	ttl        time.Duration
}

var _ gotrue.Storage = (*Storage)(nil)

// NewStorage returns the storage of instanceID. Every key written expires after
// ttl; a ttl below one second keeps keys forever.
func NewStorage(valkeyClient valkey.Client, prefix, instanceID string, ttl time.Duration) *Storage {
	return &Storage{
		store:      newStore(valkeyClient, prefix),
		instanceID: instanceID,
		ttl:        ttl,
	}
}

func (s *Storage) LoadSession(ctx context.Context) (*identity.Session, error) {
	var session identity.Session
	found, err := s.store.load(ctx, objectTypeSession, s.instanceID, &session)
	if err != nil {
		return nil, errors.Join(ErrGetSession, err)
	}
	if !found {
		return nil, nil
	}

	return &session, nil
}

func (s *Storage) SaveSession(ctx context.Context, session *identity.Session) error {
	if session == nil {
		return s.RemoveSession(ctx)
	}

	if err := s.store.save(ctx, objectTypeSession, s.instanceID, session, s.ttl); err != nil {
		return errors.Join(ErrStoreSession, err)
	}

	return nil
}

func (s *Storage) RemoveSession(ctx context.Context) error {
	if err := s.store.drop(ctx, objectTypeSession, s.instanceID); err != nil {
		return errors.Join(ErrDeleteSession, err)
	}

	return nil
}

func (s *Storage) LoadVerifier(ctx context.Context) (string, error) {
	var verifier string
	if _, err := s.store.load(ctx, objectTypeVerifier, s.instanceID, &verifier); err != nil {
		return "", errors.Join(ErrGetVerifier, err)
	}

	return verifier, nil
}

func (s *Storage) SaveVerifier(ctx context.Context, verifier string) error {
	if err := s.store.save(ctx, objectTypeVerifier, s.instanceID, verifier, s.ttl); err != nil {
		return errors.Join(ErrStoreVerifier, err)
	}

	return nil
}

func (s *Storage) RemoveVerifier(ctx context.Context) error {
	if err := s.store.drop(ctx, objectTypeVerifier, s.instanceID); err != nil {
		return errors.Join(ErrDeleteVerifier, err)
	}

	return nil
}
