package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/openkcm/common-sdk/pkg/utils"
	"github.com/spf13/cobra"

	slogctx "github.com/veqryn/slog-context"

	"github.com/autoretech/backoffice/cmd/backoffice/housekeeper"
	"github.com/autoretech/backoffice/cmd/backoffice/migrate"
	"github.com/autoretech/backoffice/cmd/backoffice/web"
	"github.com/autoretech/backoffice/internal/cmdutils"
)

// BuildInfo will be set by the build system
var BuildInfo = "{}"

// skipShutdownDelay marks commands that hold no connections to drain.
const skipShutdownDelay = "backoffice/skip-shutdown-delay"

type options struct {
	gracefulShutdown time.Duration
	configDir        string
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the back-office build information",
		Annotations: map[string]string{skipShutdownDelay: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			value, err := utils.ExtractFromComplexValue(BuildInfo)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), value)
			return err
		},
	}
}

func rootCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "backoffice",
		Short:         "AutoreTech back-office",
		Long:          "AutoreTech back-office for the dealership, with sign-in through a GoTrue identity service.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if opts.configDir == "" {
				return nil
			}

			return os.Setenv(cmdutils.ConfigDirEnv, opts.configDir)
		},
	}

	cmd.PersistentFlags().DurationVar(&opts.gracefulShutdown, "graceful-shutdown", 1*time.Second, "time given to in-flight work after the command returns")
	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", "", "directory searched for config.yaml before the default locations")

	cmd.AddCommand(
		versionCmd(),
		web.Cmd(BuildInfo),
		housekeeper.Cmd(BuildInfo),
		migrate.Cmd(BuildInfo),
	)

	return cmd
}

func execute(args []string) error {
	ctx, cancelOnSignal := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer cancelOnSignal()

	opts := &options{}
	root := rootCmd(opts)
	root.SetArgs(args)

	executed, err := root.ExecuteContextC(ctx)
	if err != nil {
		slogctx.Error(ctx, "failed to start the application", "error", err)
		_, _ = fmt.Fprintln(os.Stderr, err)

		return err
	}

	if executed.Annotations[skipShutdownDelay] == "" {
		_, _ = fmt.Fprintf(os.Stderr, "Graceful shutdown in %s\n", opts.gracefulShutdown)
		time.Sleep(opts.gracefulShutdown)
	}

	return nil
}

func main() {
	if err := execute(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
