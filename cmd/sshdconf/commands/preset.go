package commands

import (
	"fmt"

	"github.com/leonelquinteros/gotext"
	"github.com/spf13/cobra"
	"github.com/ubuntu/sshdconf/internal/cmdhandler"
	"github.com/ubuntu/sshdconf/internal/presets"
)

func (a *App) installPreset() {
	mainCmd := &cobra.Command{
		Use:   "preset COMMAND",
		Short: gotext.Get("Inspect the built-in presets"),
		Args:  cmdhandler.SubcommandsRequiredWithSuggestions,
		RunE:  cmdhandler.NoCmd,
	}
	a.rootCmd.AddCommand(mainCmd)

	listCmd := &cobra.Command{
		Use:               "list",
		Short:             gotext.Get("List the built-in presets"),
		Args:              cobra.NoArgs,
		ValidArgsFunction: cmdhandler.NoValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := presets.Builtin()
			if err != nil {
				return err
			}
			w := newTabWriter(cmd.OutOrStdout())
			for _, id := range t.Names() {
				p, err := t.Get(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", bold(p.ID), p.Name, p.Description)
			}
			return w.Flush()
		},
	}
	mainCmd.AddCommand(listCmd)

	showCmd := &cobra.Command{
		Use:               "show NAME",
		Short:             gotext.Get("Print the directives of a preset"),
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: presetNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := presets.Get(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s\n", bold(p.Name), p.Description)
			printPatch(out, p.Patch())
			return nil
		},
	}
	mainCmd.AddCommand(showCmd)
}

// presetNames completes with the built-in preset ids.
func presetNames(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	names, err := presets.Names()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
