package business

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"
	"golang.org/x/time/rate"

	slogctx "github.com/veqryn/slog-context"

	"github.com/autoretech/backoffice/internal/business/server"
	"github.com/autoretech/backoffice/internal/config"
	"github.com/autoretech/backoffice/internal/identity"
	"github.com/autoretech/backoffice/internal/identity/gotrue"
	gotruevalkey "github.com/autoretech/backoffice/internal/identity/gotrue/valkey"
	"github.com/autoretech/backoffice/internal/journal"
	journalsql "github.com/autoretech/backoffice/internal/journal/sql"
	"github.com/autoretech/backoffice/internal/workspace"
)

const minCSRFKeyLength = 32

var ErrCSRFKeyTooShort = errors.New("csrf secret is too short")

// Main starts the web server and, when enabled, the journal writer.
func Main(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	deps, recorder, closeFn, err := initWorkspace(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the workspace: %w", err)
	}
	defer closeFn()

	// errChan is used to capture the first error and shutdown the others.
	errChan := make(chan error, 2)

	// wg is used to wait for everything to shutdown.
	var wg sync.WaitGroup

	wg.Go(func() {
		errChan <- server.StartHTTPServer(ctx, cfg, deps)
	})

	if recorder != nil {
		wg.Go(func() {
			errChan <- recorder.Run(ctx)
		})
	}

	// wait for any error to initiate the shutdown
	if err := <-errChan; err != nil {
		slogctx.Error(ctx, "Shutting down", "error", err)
	}
	cancel()

	wg.Wait()

	return nil
}

// initWorkspace builds the registry of instances with everything it depends
// on. The returned func closes the instances first, then the journal and the
// stores.
func initWorkspace(ctx context.Context, cfg *config.Config) (server.Deps, *journal.Recorder, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	settings, err := cfg.Identity.Settings()
	if err != nil {
		return server.Deps{}, nil, nil, fmt.Errorf("loading identity settings: %w", err)
	}
	warnIfUnconfigured(ctx, settings)

	redirectURL, err := cfg.Identity.CallbackURL()
	if err != nil {
		return server.Deps{}, nil, nil, fmt.Errorf("building the callback url: %w", err)
	}

	csrfKey, err := loadCSRFKey(ctx, cfg.Workspace.CSRFSecret)
	if err != nil {
		return server.Deps{}, nil, nil, err
	}

	storageFor, owners, closeStorage, err := sessionStorage(ctx, cfg)
	if err != nil {
		return server.Deps{}, nil, nil, err
	}
	closers = append(closers, closeStorage)

	httpClient := &http.Client{Timeout: cfg.Identity.RequestTimeout}
	newClient := func(instanceID string) (identity.Client, error) {
		client, err := gotrue.NewClient(settings,
			gotrue.WithHTTPClient(httpClient),
			gotrue.WithStorage(storageFor(instanceID)),
		)
		if err != nil {
			return nil, err
		}

		return client, nil
	}

	opts := []workspace.Option{
		workspace.WithIdleTimeout(cfg.Workspace.IdleTimeout, cfg.Workspace.CleanupInterval),
		workspace.WithCookie(cfg.Workspace.Cookie),
		workspace.WithRedirectURL(redirectURL),
		workspace.WithSignInLimit(rate.Limit(cfg.Workspace.SignInRate), cfg.Workspace.SignInBurst),
	}
	if owners != nil {
		opts = append(opts, workspace.WithOwners(owners))
	}

	deps := server.Deps{CSRFKey: csrfKey}

	var recorder *journal.Recorder
	if cfg.Journal.Enabled {
		db, err := newJournalPool(ctx, cfg.Database)
		if err != nil {
			closeAll()
			return server.Deps{}, nil, nil, err
		}
		closers = append(closers, db.Close)

		repo := journalsql.NewRepository(db)
		recorder = journal.NewRecorder(repo, journal.WithBufferSize(cfg.Journal.Buffer))
		opts = append(opts, workspace.WithHook(recorder.Hook))
		deps.Journal = repo
	}

	deps.Registry = workspace.NewRegistry(settings, newClient, opts...)
	closers = append(closers, deps.Registry.Close)

	return deps, recorder, closeAll, nil
}

func warnIfUnconfigured(ctx context.Context, settings identity.Settings) {
	switch {
	case settings.UsesPlaceholders:
		slogctx.Warn(ctx, "Identity service is configured with placeholder values, authentication is disabled")
	case !settings.Configured:
		slogctx.Warn(ctx, "Identity service URL or API key missing, authentication is disabled")
	}
}

// sessionStorage returns the storage factory of the identity clients. Persisted
// sessions come with the owner records that guard their reuse; memory storage
// has none.
func sessionStorage(ctx context.Context, cfg *config.Config) (func(instanceID string) gotrue.Storage, workspace.Owners, func(), error) {
	switch cfg.Workspace.SessionStorage {
	case config.SessionStorageValKey:
		client, err := newValkeyClient(cfg.ValKey)
		if err != nil {
			return nil, nil, nil, err
		}

		slogctx.Info(ctx, "Persisting identity sessions in valkey", "prefix", cfg.ValKey.Prefix)
		storageFor := func(instanceID string) gotrue.Storage {
			return gotruevalkey.NewStorage(client, cfg.ValKey.Prefix, instanceID, cfg.Workspace.SessionTTL)
		}
		owners := gotruevalkey.NewOwners(client, cfg.ValKey.Prefix, cfg.Workspace.SessionTTL)

		return storageFor, owners, client.Close, nil
	case config.SessionStorageMemory, "":
		return func(string) gotrue.Storage {
			return gotrue.NewMemoryStorage()
		}, nil, func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown session storage %q", cfg.Workspace.SessionStorage)
	}
}

func newValkeyClient(cfg config.ValKey) (valkey.Client, error) {
	valkeyHost, err := commoncfg.LoadValueFromSourceRef(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("loading valkey host: %w", err)
	}

	valkeyUsername, err := commoncfg.LoadValueFromSourceRef(cfg.User)
	if err != nil {
		return nil, fmt.Errorf("loading valkey username: %w", err)
	}

	valkeyPassword, err := commoncfg.LoadValueFromSourceRef(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("loading valkey password: %w", err)
	}

	valkeyOpts := valkey.ClientOption{
		InitAddress: []string{string(valkeyHost)},
		Username:    string(valkeyUsername),
		Password:    string(valkeyPassword),
	}

	if cfg.SecretRef.Type == commoncfg.MTLSSecretType {
		tlsConfig, err := commoncfg.LoadMTLSConfig(&cfg.SecretRef.MTLS)
		if err != nil {
			return nil, fmt.Errorf("loading valkey mTLS config from secret ref: %w", err)
		}

		valkeyOpts.TLSConfig = tlsConfig
	}

	valkeyClient, err := valkey.NewClient(valkeyOpts)
	if err != nil {
		return nil, fmt.Errorf("creating a new valkey client: %w", err)
	}

	return valkeyClient, nil
}

func newJournalPool(ctx context.Context, cfg config.Database) (*pgxpool.Pool, error) {
	connStr, err := config.MakeConnStr(cfg)
	if err != nil {
		return nil, fmt.Errorf("making dsn from config: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing pgxpool config: %w", err)
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("initialising pgxpool connection: %w", err)
	}

	return db, nil
}

// loadCSRFKey loads the form token key. Without a configured secret a random
// key is used, so tokens do not survive a restart.
func loadCSRFKey(ctx context.Context, ref commoncfg.SourceRef) ([]byte, error) {
	if ref.Source == "" {
		slogctx.Warn(ctx, "No csrf secret configured, using a random one")

		key := make([]byte, minCSRFKeyLength)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating csrf key: %w", err)
		}

		return key, nil
	}

	key, err := commoncfg.LoadValueFromSourceRef(ref)
	if err != nil {
		return nil, fmt.Errorf("loading csrf secret: %w", err)
	}

	if len(key) < minCSRFKeyLength {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrCSRFKeyTooShort, minCSRFKeyLength)
	}

	return key, nil
}
