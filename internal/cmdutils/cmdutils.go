// Package cmdutils turns the business mains into cobra sub-commands: it loads
// the configuration, initialises logging and telemetry and, for services, runs
// the status server next to the main.
package cmdutils

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/health"
	"github.com/openkcm/common-sdk/pkg/logger"
	"github.com/openkcm/common-sdk/pkg/otlp"
	"github.com/openkcm/common-sdk/pkg/status"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	slogctx "github.com/veqryn/slog-context"

	"github.com/autoretech/backoffice/internal/config"
)

const (
	healthStatusTimeout = 5 * time.Second

	// ConfigDirEnv names a directory searched for config.yaml before the
	// default locations.
	ConfigDirEnv = "BACKOFFICE_CONFIG_DIR"
)

// MainFunc is the business entry point of a command.
type MainFunc func(ctx context.Context, cfg *config.Config) error

// Mode decides what runs around a MainFunc.
type Mode int

const (
	// ModeService runs telemetry and the status server for a long-running main.
	ModeService Mode = iota
	// ModeJob only initialises logging.
	ModeJob
)

type Command struct {
	Use   string
	Short string
	Long  string
	Mode  Mode
	Main  MainFunc
}

// NewCommand returns the cobra command running c with the configuration
// found on disk.
func NewCommand(c Command, buildInfo string) *cobra.Command {
	return &cobra.Command{
		Use:   c.Use,
		Short: c.Short,
		Long:  c.Long,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(buildInfo)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			err = Run(cmd.Context(), c.Mode, c.Main, cfg)
			if err != nil {
				return fmt.Errorf("running %s: %w", c.Use, err)
			}

			return nil
		},
	}
}

// Run initialises the ambient stack for mode and runs fn.
func Run(ctx context.Context, mode Mode, fn MainFunc, cfg *config.Config) error {
	err := logger.InitAsDefault(cfg.Logger, cfg.Application)
	if err != nil {
		return oops.In("main").
			Wrapf(err, "Failed to initialise the logger")
	}
	slogctx.Debug(ctx, "Starting the application", slog.Any("config", cfg))

	if mode == ModeService {
		err = otlp.Init(ctx, &cfg.Application, &cfg.Telemetry, &cfg.Logger)
		if err != nil {
			return oops.In("main").Wrapf(err, "Failed to load the telemetry")
		}

		go func() {
			err := startStatusServer(ctx, cfg)
			if err != nil {
				slogctx.Error(ctx, "Failure on the status server", "error", err)
				_ = syscall.Kill(syscall.Getpid(), syscall.SIGTERM)
			}
		}()
	}

	err = fn(ctx, cfg)
	if err != nil {
		return oops.In("main").Wrapf(err, "Failed to start the main business application")
	}

	return nil
}

func configPaths() []string {
	paths := []string{"/etc/backoffice", "$HOME/.backoffice", "."}
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		paths = append([]string{dir}, paths...)
	}

	return paths
}

func loadConfig(buildInfo string) (*config.Config, error) {
	cfg := &config.Config{}

	err := commoncfg.LoadConfig(cfg, map[string]any{}, configPaths()...)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	err = commoncfg.UpdateConfigVersion(&cfg.BaseConfig, buildInfo)
	if err != nil {
		return nil, fmt.Errorf("updating the version configuration: %w", err)
	}

	return cfg, nil
}

// readinessOptions checks the journal database only when the journal is on;
// the web service works without it otherwise.
func readinessOptions(cfg *config.Config) ([]health.Option, error) {
	opts := []health.Option{
		health.WithDisabledAutostart(),
		health.WithTimeout(healthStatusTimeout),
		health.WithStatusListener(statusListener),
	}

	if !cfg.Journal.Enabled {
		return opts, nil
	}

	connStr, err := config.MakeConnStr(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("making connection string from config: %w", err)
	}

	return append(opts, health.WithDatabaseChecker("pgx", connStr)), nil
}

func startStatusServer(ctx context.Context, cfg *config.Config) error {
	opts, err := readinessOptions(cfg)
	if err != nil {
		return err
	}

	liveness := status.WithLiveness(
		health.NewHandler(
			health.NewChecker(health.WithDisabledAutostart()),
		),
	)
	readiness := status.WithReadiness(
		health.NewHandler(
			health.NewChecker(opts...),
		),
	)

	err = status.Start(ctx, &cfg.BaseConfig, liveness, readiness)
	if err != nil {
		return fmt.Errorf("starting status server: %w", err)
	}

	return nil
}

func statusListener(ctx context.Context, state health.State) {
	attrs := make([]any, 0, 2+2*len(state.CheckState))
	attrs = append(attrs, "status", state.Status)
	for name, check := range state.CheckState {
		if check.Result != nil {
			attrs = append(attrs, name, check.Result.Error())
		} else {
			attrs = append(attrs, name, check.Status)
		}
	}

	if state.Status == "up" {
		slogctx.Info(ctx, "Readiness status changed", attrs...)
		return
	}
	slogctx.Warn(ctx, "Readiness status changed", attrs...)
}
