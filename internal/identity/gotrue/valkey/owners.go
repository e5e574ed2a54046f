package gotruevalkey

import (
	"context"
	"errors"
	"time"

	"github.com/valkey-io/valkey-go"
)

const objectTypeFingerprint = "fingerprint"

var (
	ErrGetOwner   = errors.New("getting instance owner from store")
	ErrStoreOwner = errors.New("setting instance owner into storage")
)

// Owners records the fingerprint of the browser each instance id was issued
// to, next to the sessions kept by [Storage].
type Owners struct {
	store *store
	ttl   time.Duration
}

// NewOwners returns the owner records under prefix. Records expire after ttl
// like the sessions they guard.
func NewOwners(valkeyClient valkey.Client, prefix string, ttl time.Duration) *Owners {
	return &Owners{store: newStore(valkeyClient, prefix), ttl: ttl}
}

func (o *Owners) Owner(ctx context.Context, instanceID string) (string, bool, error) {
	var fp string
	found, err := o.store.load(ctx, objectTypeFingerprint, instanceID, &fp)
	if err != nil {
		return "", false, errors.Join(ErrGetOwner, err)
	}

	return fp, found, nil
}

func (o *Owners) Claim(ctx context.Context, instanceID, fp string) error {
	if err := o.store.save(ctx, objectTypeFingerprint, instanceID, fp, o.ttl); err != nil {
		return errors.Join(ErrStoreOwner, err)
	}

	return nil
}
