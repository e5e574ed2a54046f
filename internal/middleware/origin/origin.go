// Package origin provides utilities to inject and retrieve the origin
// (scheme and host) of the original request in and from the context.
package origin

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Using an unexported type prevents key collisions from other packages.
type contextKey string

const originKey contextKey = "origin"

var ErrNoOrigin = errors.New("origin not found in context")

// Middleware is an http.Handler middleware that injects the origin of the
// original *http.Request into the context for later handlers to access.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithOrigin(r.Context(), FromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func WithOrigin(ctx context.Context, o string) context.Context {
	return context.WithValue(ctx, originKey, o)
}

// FromContext retrieves the origin from the context.
func FromContext(ctx context.Context) (string, error) {
	o, ok := ctx.Value(originKey).(string)
	if !ok || o == "" {
		return "", ErrNoOrigin
	}
	return o, nil
}

// FromRequest builds the origin the browser used. Forwarded headers of a
// reverse proxy take precedence over the connection itself.
func FromRequest(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := firstValue(r.Header.Get("X-Forwarded-Proto")); proto == "http" || proto == "https" {
		scheme = proto
	}

	host := r.Host
	if fwd := firstValue(r.Header.Get("X-Forwarded-Host")); fwd != "" {
		host = fwd
	}

	return scheme + "://" + host
}

func firstValue(header string) string {
	v, _, _ := strings.Cut(header, ",")
	return strings.TrimSpace(v)
}
