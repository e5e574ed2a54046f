// Package fingerprint derives a coarse client fingerprint from request headers.
// Workspace instances are bound to the fingerprint of the browser that created
// them.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrNilRequest    = errors.New("http request is nil")
	ErrNoFingerprint = errors.New("no fingerprint in context")
)

// Headers make up the fingerprint. Each is hashed as name NUL value NUL so
// that values cannot bleed into the next header.
var Headers = []string{"User-Agent", "Accept-Language"}

type ctxKey struct{}

func FromHTTPRequest(r *http.Request) (string, error) {
	if r == nil {
		return "", ErrNilRequest
	}

	var b strings.Builder
	for _, name := range Headers {
		b.WriteString(strings.ToLower(name))
		b.WriteByte(0)
		b.WriteString(r.Header.Get(name))
		b.WriteByte(0)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:]), nil
}

// Middleware stores the fingerprint of the request in its context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fp, _ := FromHTTPRequest(r)
		next.ServeHTTP(w, r.WithContext(WithFingerprint(r.Context(), fp)))
	})
}

func WithFingerprint(ctx context.Context, fp string) context.Context {
	return context.WithValue(ctx, ctxKey{}, fp)
}

func FromContext(ctx context.Context) (string, error) {
	fp, ok := ctx.Value(ctxKey{}).(string)
	if !ok {
		return "", ErrNoFingerprint
	}

	return fp, nil
}
