package commands

import (
	"errors"
	"fmt"

	"github.com/leonelquinteros/gotext"
	"github.com/spf13/cobra"
	log "github.com/ubuntu/sshdconf/internal/log"
	"github.com/ubuntu/sshdconf/internal/presets"
	"github.com/ubuntu/sshdconf/internal/sshdconfig"
	"github.com/ubuntu/sshdconf/internal/sshderr"
	"github.com/ubuntu/sshdconf/internal/sshdmanager"
)

type applyFlags struct {
	preset   string
	noBackup bool
	comment  string
	dryRun   bool
	restart  bool
}

func (a *App) installApply() {
	var f applyFlags
	cmd := &cobra.Command{
		Use:   "apply [Name=Value...]",
		Short: gotext.Get("Change directives of the daemon configuration"),
		Long: gotext.Get(`Change directives of the daemon configuration.

Directives of the preset, if any, are applied first and can be overridden by the ones given as
arguments. Every value is validated and the resulting configuration is checked by the daemon
before replacing the live one. Nothing is changed if any of those checks fails.`),
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && f.preset == "" {
				return errors.New(gotext.Get("requires at least one Name=Value argument or a preset"))
			}
			return nil
		},
		ValidArgsFunction: a.directiveAssignments,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.apply(cmd, args, f)
		},
	}
	cmd.Flags().StringVarP(&f.preset, "preset", "p", "", gotext.Get("apply the directives of the `preset` first"))
	cmd.Flags().BoolVar(&f.noBackup, "no-backup", false, gotext.Get("don't back up the configuration before changing it"))
	cmd.Flags().StringVarP(&f.comment, "comment", "m", "", gotext.Get("`comment` attached to the backup"))
	cmd.Flags().BoolVarP(&f.dryRun, "dry-run", "n", false, gotext.Get("only validate and check the resulting configuration"))
	cmd.Flags().BoolVarP(&f.restart, "restart", "r", false, gotext.Get("restart the daemon once the configuration is changed"))
	_ = cmd.RegisterFlagCompletionFunc("preset", presetNames)
	a.rootCmd.AddCommand(cmd)
}

func (a *App) apply(cmd *cobra.Command, args []string, f applyFlags) error {
	ctx := log.WithOperation(a.ctx, "apply")

	var patch sshdconfig.Patch
	if f.preset != "" {
		p, err := presets.Get(f.preset)
		if err != nil {
			return sshderr.Wrap(sshderr.InvalidValue, "apply", "", err)
		}
		log.Debugf(ctx, "Using preset %s", p.ID)
		patch = p.Patch()
	}
	assignments, err := sshdconfig.ParseAssignments(args)
	if err != nil {
		return sshderr.Wrap(sshderr.InvalidValue, "apply", "", err)
	}
	patch = patch.Merge(assignments)

	comment := f.comment
	if comment == "" && f.preset != "" {
		comment = "preset_" + f.preset
	}

	m, err := a.manager()
	if err != nil {
		return err
	}
	r, err := m.Apply(ctx, patch, sshdmanager.ApplyOptions{
		Backup:  !f.noBackup,
		Comment: comment,
		DryRun:  f.dryRun,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if r.Backup != nil {
		fmt.Fprintln(out, gotext.Get("Backup created: %s", r.Backup.Name))
	}
	printDiff(out, r.Diff)
	switch {
	case f.dryRun:
		fmt.Fprintln(out, gotext.Get("Dry run: the new configuration of %s is valid and was not written.", m.ConfigPath()))
		return nil
	case len(r.Diff) == 0:
		fmt.Fprintln(out, gotext.Get("%s already has the requested values.", m.ConfigPath()))
	default:
		fmt.Fprintln(out, gotext.Get("%s updated.", m.ConfigPath()))
	}

	if !f.restart {
		return nil
	}
	return a.restart(ctx, cmd)
}

// directiveAssignments completes directive names with a trailing equal sign.
func (a *App) directiveAssignments(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	names, _ := a.directiveNames(cmd, nil, toComplete)
	for i := range names {
		names[i] += "="
	}
	return names, cobra.ShellCompDirectiveNoFileComp | cobra.ShellCompDirectiveNoSpace
}
