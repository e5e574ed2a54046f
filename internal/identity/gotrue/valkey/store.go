package gotruevalkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"
)

// store keeps JSON values under prefix:kind:id keys.
type store struct {
	client valkey.Client
	prefix string
}

func newStore(client valkey.Client, prefix string) *store {
	return &store{client: client, prefix: strings.TrimSuffix(prefix, ":")}
}

func (s *store) key(kind, id string) string {
	return strings.Join([]string{s.prefix, kind, id}, ":")
}

// load decodes the value of kind/id into dst. A missing key leaves dst
// untouched and reports false.
func (s *store) load(ctx context.Context, kind, id string, dst any) (bool, error) {
	raw, err := s.client.Do(ctx, s.client.B().Get().Key(s.key(kind, id)).Build()).AsBytes()
	switch {
	case valkey.IsValkeyNil(err):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("executing get command: %w", err)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("unmarshaling %s: %w", kind, err)
	}

	return true, nil
}

// save writes v under kind/id. Keys expire after ttl when it is at least a second.
func (s *store) save(ctx context.Context, kind, id string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", kind, err)
	}

	cmd := s.client.B().Set().Key(s.key(kind, id)).Value(valkey.BinaryString(raw))
	var built valkey.Completed
	if secs := int64(ttl / time.Second); secs > 0 {
		built = cmd.ExSeconds(secs).Build()
	} else {
		built = cmd.Build()
	}

	if err := s.client.Do(ctx, built).Error(); err != nil {
		return fmt.Errorf("executing set command: %w", err)
	}

	return nil
}

func (s *store) drop(ctx context.Context, kind, id string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(s.key(kind, id)).Build()).Error(); err != nil {
		return fmt.Errorf("executing del command: %w", err)
	}

	return nil
}
