package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/samber/oops"

	slogctx "github.com/veqryn/slog-context"

	"github.com/autoretech/backoffice/internal/config"
)

// createHTTPServer creates the web server using the given config
func createHTTPServer(_ context.Context, cfg *config.Config, deps Deps) (*http.Server, error) {
	handler, err := newHandler(cfg, deps)
	if err != nil {
		return nil, oops.In("HTTP Server").Wrapf(err, "creating the router")
	}

	return &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}, nil
}

// splitAddress parses addresses of the form network://address; anything else
// is a tcp address. Integration tests bind to a unix socket instead of
// looking for a free port.
func splitAddress(addr string) (network, address string) {
	network, address, found := strings.Cut(addr, "://")
	if !found || network == "" || strings.ContainsAny(network, ":/") {
		return "tcp", addr
	}

	return network, address
}

func listen(ctx context.Context, addr string) (net.Listener, error) {
	network, address := splitAddress(addr)

	if network == "unix" {
		// a socket left behind by a killed process makes bind fail
		if err := os.Remove(address); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("removing stale socket: %w", err)
		}
	}

	return new(net.ListenConfig).Listen(ctx, network, address)
}

// StartHTTPServer starts the web server using the given config and blocks
// until ctx is done or the server fails.
func StartHTTPServer(ctx context.Context, cfg *config.Config, deps Deps) error {
	if err := initMeters(ctx, cfg); err != nil {
		return err
	}

	server, err := createHTTPServer(ctx, cfg, deps)
	if err != nil {
		return err
	}

	slogctx.Info(ctx, "Starting a listener", "address", server.Addr)

	listener, err := listen(ctx, server.Addr)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed to create a listener")
	}

	serveErr := make(chan error, 1)
	go func() {
		slogctx.Info(ctx, "Serving an HTTP server", "address", listener.Addr().String())
		err := server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}

		slogctx.Info(ctx, "Stopped an HTTP server")
		serveErr <- err
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return oops.In("HTTP Server").
				WithContext(ctx).
				Wrapf(err, "Failed to serve an HTTP server")
		}

		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownRelease := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer shutdownRelease()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed shutting down HTTP server")
	}

	slogctx.Info(ctx, "Completed graceful shutdown of HTTP server")

	return nil
}
