package commands

import (
	"fmt"

	"github.com/leonelquinteros/gotext"
	"github.com/spf13/cobra"
	"github.com/ubuntu/sshdconf/internal/cmdhandler"
	"github.com/ubuntu/sshdconf/internal/consts"
)

func (a *App) installVersion() {
	cmd := &cobra.Command{
		Use:               "version",
		Short:             gotext.Get("Returns version of the program and exits"),
		Args:              cobra.NoArgs,
		ValidArgsFunction: cmdhandler.NoValidArgs,
		RunE:              func(cmd *cobra.Command, _ []string) error { return getVersion(cmd) },
	}
	a.rootCmd.AddCommand(cmd)
}

// getVersion prints the current program version.
func getVersion(cmd *cobra.Command) (err error) {
	fmt.Fprintln(cmd.OutOrStdout(), gotext.Get("%s\t%s", consts.CmdName, consts.Version))
	return nil
}
