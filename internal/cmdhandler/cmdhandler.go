// Package cmdhandler provides helpers shared by the cobra commands.
package cmdhandler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leonelquinteros/gotext"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NoCmd is a no-op command to just make it valid.
func NoCmd(_ *cobra.Command, _ []string) error {
	return nil
}

// SubcommandsRequiredWithSuggestions ensures a subcommand was provided and, when the user typed
// an unknown one, suggests the closest subcommand names.
func SubcommandsRequiredWithSuggestions(cmd *cobra.Command, args []string) error {
	msg := gotext.Get("%s requires a valid subcommand", cmd.Name())
	if len(args) == 0 || cmd.DisableSuggestions {
		return errors.New(msg)
	}

	if cmd.SuggestionsMinimumDistance <= 0 {
		cmd.SuggestionsMinimumDistance = 2
	}
	suggestions := cmd.SuggestionsFor(args[0])
	if len(suggestions) == 0 {
		return errors.New(msg)
	}

	var sb strings.Builder
	sb.WriteString(msg)
	sb.WriteString(". ")
	sb.WriteString(gotext.Get("Did you mean this?"))
	sb.WriteString("\n")
	for _, s := range suggestions {
		fmt.Fprintf(&sb, "\t%v\n", s)
	}
	return errors.New(sb.String())
}

// ZeroOrNArgs returns an error if there are not 0 or exactly N arguments.
func ZeroOrNArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 || len(args) == n {
			return nil
		}
		return errors.New(gotext.Get("requires either no arguments or exactly %d, only received %d", n, len(args)))
	}
}

// NoValidArgs prevents any completion, including files.
func NoValidArgs(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return nil, cobra.ShellCompDirectiveNoFileComp
}

// RegisterAlias allows to decorelate the alias from the main command when alias have different command level (different parents)
// README and manpage refers to them in each subsection (parents are differents, but only one is kept if we use the same object)
func RegisterAlias(cmd, parent *cobra.Command) {
	alias := *cmd
	t := gotext.Get("Alias of %q", cmd.CommandPath())
	if alias.Long != "" {
		t = fmt.Sprintf("%s (%s)", alias.Long, t)
	}
	alias.Long = t
	parent.AddCommand(&alias)
}

// InstallCompletionCmd adds a subcommand named "completion"
func InstallCompletionCmd(rootCmd *cobra.Command) {
	prog := rootCmd.Name()
	var completionCmd = &cobra.Command{
		Use:   "completion",
		Short: gotext.Get("Generates bash completion scripts"),
		Long: gotext.Get(`To load completion run

. <(%s completion)

To configure your bash shell to load completions for each session add to your ~/.bashrc or ~/.profile:

. <(%s completion)
`, prog, prog),
		Args:              cobra.NoArgs,
		ValidArgsFunction: NoValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// use upstream completion for now as we don’t have hidden subcommands
			return rootCmd.GenBashCompletion(cmd.OutOrStdout())
		},
	}
	rootCmd.AddCommand(completionCmd)
}

// InstallVerboseFlag adds the -v and -vv options and returns the reference to it.
func InstallVerboseFlag(cmd *cobra.Command, vip *viper.Viper) *int {
	r := cmd.PersistentFlags().CountP("verbose", "v", gotext.Get("issue INFO (-v), DEBUG (-vv) and DEBUG with caller (-vvv) output"))
	_ = vip.BindPFlag("verbose", cmd.PersistentFlags().Lookup("verbose"))
	return r
}

// InstallConfigFlag adds the -c and --config options and returns the reference to it.
func InstallConfigFlag(cmd *cobra.Command) *string {
	return cmd.PersistentFlags().StringP("config", "c", "", gotext.Get("use a specific configuration file"))
}
