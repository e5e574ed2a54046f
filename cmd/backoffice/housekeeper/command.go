package housekeeper

import (
	"github.com/spf13/cobra"

	"github.com/autoretech/backoffice/internal/business"
	"github.com/autoretech/backoffice/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.NewCommand(cmdutils.Command{
		Use:   "housekeeper",
		Short: "Back-office housekeeping",
		Long:  "Prunes auth journal entries older than the configured retention.",
		Mode:  cmdutils.ModeService,
		Main:  business.HousekeeperMain,
	}, buildInfo)
}
