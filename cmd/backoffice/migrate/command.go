package migrate

import (
	"github.com/spf13/cobra"

	"github.com/autoretech/backoffice/internal/business"
	"github.com/autoretech/backoffice/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.NewCommand(cmdutils.Command{
		Use:   "migrate",
		Short: "Back-office database migrations",
		Long:  "Applies the journal database migrations.",
		Mode:  cmdutils.ModeJob,
		Main:  business.MigrateMain,
	}, buildInfo)
}
