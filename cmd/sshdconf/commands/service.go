package commands

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/leonelquinteros/gotext"
	"github.com/spf13/cobra"
	"github.com/ubuntu/sshdconf/internal/cmdhandler"
	log "github.com/ubuntu/sshdconf/internal/log"
	"github.com/ubuntu/sshdconf/internal/sshdservice"
)

func (a *App) installService() {
	mainCmd := &cobra.Command{
		Use:   "service COMMAND",
		Short: gotext.Get("Control the OpenSSH daemon"),
		Args:  cmdhandler.SubcommandsRequiredWithSuggestions,
		RunE:  cmdhandler.NoCmd,
	}
	a.rootCmd.AddCommand(mainCmd)

	cmd := &cobra.Command{
		Use:               "status",
		Short:             gotext.Get("Print the daemon status"),
		Args:              cobra.NoArgs,
		ValidArgsFunction: cmdhandler.NoValidArgs,
		RunE:              func(cmd *cobra.Command, args []string) error { return a.status(cmd) },
	}
	mainCmd.AddCommand(cmd)

	cmd = &cobra.Command{
		Use:               "restart",
		Short:             gotext.Get("Restart the daemon"),
		Args:              cobra.NoArgs,
		ValidArgsFunction: cmdhandler.NoValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.restart(log.WithOperation(a.ctx, "service restart"), cmd)
		},
	}
	mainCmd.AddCommand(cmd)
}

func (a *App) status(cmd *cobra.Command) error {
	ctx := log.WithOperation(a.ctx, "service status")

	st, unit := sshdservice.Unknown, ""
	s, release, err := a.service()
	if err != nil {
		log.Warning(ctx, err)
	} else {
		defer release()
		st, unit = s.Status(ctx)
	}
	if unit == "" {
		fmt.Fprintln(cmd.OutOrStdout(), colorStatus(st))
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", unit, colorStatus(st))
	return nil
}

// restart restarts the daemon. The configuration is left as is on failure.
func (a *App) restart(ctx context.Context, cmd *cobra.Command) error {
	s, release, err := a.service()
	if err != nil {
		return err
	}
	defer release()

	unit, err := s.Restart(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), gotext.Get("%s restarted", unit))
	return nil
}

func colorStatus(st sshdservice.Status) string {
	switch st {
	case sshdservice.Active:
		return color.GreenString("%s", st)
	case sshdservice.Failed:
		return color.RedString("%s", st)
	case sshdservice.Inactive:
		return color.YellowString("%s", st)
	default:
		return string(st)
	}
}
