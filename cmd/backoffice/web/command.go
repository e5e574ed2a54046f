package web

import (
	"github.com/spf13/cobra"

	"github.com/autoretech/backoffice/internal/business"
	"github.com/autoretech/backoffice/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.NewCommand(cmdutils.Command{
		Use:   "web",
		Short: "Back-office web server",
		Long:  "Serves the sign-in flow and the protected dashboard pages.",
		Mode:  cmdutils.ModeService,
		Main:  business.Main,
	}, buildInfo)
}
