package commands

import (
	"errors"
	"fmt"
	"sort"

	"github.com/leonelquinteros/gotext"
	"github.com/spf13/cobra"
	"github.com/ubuntu/sshdconf/internal/cmdhandler"
	log "github.com/ubuntu/sshdconf/internal/log"
	"github.com/ubuntu/sshdconf/internal/sshdconfig"
)

func (a *App) installConfig() {
	mainCmd := &cobra.Command{
		Use:   "config COMMAND",
		Short: gotext.Get("Read the daemon configuration"),
		Args:  cmdhandler.SubcommandsRequiredWithSuggestions,
		RunE:  cmdhandler.NoCmd,
	}
	a.rootCmd.AddCommand(mainCmd)

	var all *bool
	showCmd := &cobra.Command{
		Use:               "show",
		Short:             gotext.Get("Print the effective directives of the daemon configuration"),
		Args:              cobra.NoArgs,
		ValidArgsFunction: cmdhandler.NoValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.showConfig(cmd, *all)
		},
	}
	all = showCmd.Flags().BoolP("all", "a", false, gotext.Get("print the whole file, including comments and repeated directives"))
	mainCmd.AddCommand(showCmd)

	getCmd := &cobra.Command{
		Use:               "get NAME",
		Short:             gotext.Get("Print the effective value of a directive"),
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: a.directiveNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.getDirective(cmd, args[0])
		},
	}
	mainCmd.AddCommand(getCmd)
}

// readConfig returns the daemon configuration and its effective directives. It doesn't need
// any privilege beyond reading the file.
func (a *App) readConfig() (sshdconfig.Config, map[string]string, error) {
	resolver, err := a.config.Resolver()
	if err != nil {
		return sshdconfig.Config{}, nil, err
	}
	cfg, err := sshdconfig.Read(a.config.SSHDConfig)
	if err != nil {
		return sshdconfig.Config{}, nil, err
	}
	return cfg, resolver.Effective(cfg), nil
}

func (a *App) showConfig(cmd *cobra.Command, all bool) error {
	ctx := log.WithOperation(a.ctx, "config show")
	log.Debugf(ctx, "Showing %s", a.config.SSHDConfig)

	cfg, effective, err := a.readConfig()
	if err != nil {
		return err
	}

	if all {
		fmt.Fprint(cmd.OutOrStdout(), cfg.String())
		return nil
	}

	names := make([]string, 0, len(effective))
	for n := range effective {
		names = append(names, n)
	}
	sort.Strings(names)

	w := newTabWriter(cmd.OutOrStdout())
	for _, n := range names {
		fmt.Fprintf(w, "%s\t%s\n", bold(n), effective[n])
	}
	return w.Flush()
}

func (a *App) getDirective(cmd *cobra.Command, name string) error {
	ctx := log.WithOperation(a.ctx, "config get")
	log.Debugf(ctx, "Getting %s from %s", name, a.config.SSHDConfig)

	_, effective, err := a.readConfig()
	if err != nil {
		return err
	}
	v, ok := effective[name]
	if !ok {
		return errors.New(gotext.Get("%s is not set in %s", name, a.config.SSHDConfig))
	}
	fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}

// directiveNames completes with the directives set in the daemon configuration.
func (a *App) directiveNames(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	c := a.completionConfig()
	resolver, err := c.Resolver()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	cfg, err := sshdconfig.Read(c.SSHDConfig)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	effective := resolver.Effective(cfg)
	names := make([]string, 0, len(effective))
	for n := range effective {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, cobra.ShellCompDirectiveNoFileComp
}
