package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/leonelquinteros/gotext"
	"github.com/spf13/cobra"
	"github.com/ubuntu/sshdconf/internal/backup"
	"github.com/ubuntu/sshdconf/internal/cmdhandler"
	log "github.com/ubuntu/sshdconf/internal/log"
)

func (a *App) installBackup() {
	mainCmd := &cobra.Command{
		Use:   "backup COMMAND",
		Short: gotext.Get("Manage backups of the daemon configuration"),
		Args:  cmdhandler.SubcommandsRequiredWithSuggestions,
		RunE:  cmdhandler.NoCmd,
	}
	a.rootCmd.AddCommand(mainCmd)

	var comment *string
	createCmd := &cobra.Command{
		Use:               "create",
		Short:             gotext.Get("Back up the daemon configuration"),
		Args:              cobra.NoArgs,
		ValidArgsFunction: cmdhandler.NoValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := log.WithOperation(a.ctx, "backup create")
			m, err := a.manager()
			if err != nil {
				return err
			}
			r, err := m.Backup(ctx, *comment)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), gotext.Get("Backup created: %s", r.Name))
			return nil
		},
	}
	comment = createCmd.Flags().StringP("comment", "m", "", gotext.Get("`comment` attached to the backup"))
	mainCmd.AddCommand(createCmd)

	listCmd := &cobra.Command{
		Use:               "list",
		Short:             gotext.Get("List backups, most recent first"),
		Args:              cobra.NoArgs,
		ValidArgsFunction: cmdhandler.NoValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := log.WithOperation(a.ctx, "backup list")
			m, err := a.manager()
			if err != nil {
				return err
			}
			records, err := m.Backups(ctx)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), gotext.Get("No backup in %s", m.BackupDir()))
				return nil
			}
			return printBackups(cmd.OutOrStdout(), records)
		},
	}
	mainCmd.AddCommand(listCmd)

	restoreCmd := &cobra.Command{
		Use:               "restore NAME",
		Short:             gotext.Get("Replace the daemon configuration with a backup"),
		Long:              gotext.Get("Replace the daemon configuration with a backup. The configuration being replaced is backed up first."),
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: a.backupNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := log.WithOperation(a.ctx, "backup restore")
			m, err := a.manager()
			if err != nil {
				return err
			}
			r, pre, err := m.Restore(ctx, args[0])
			if pre != nil {
				fmt.Fprintln(cmd.OutOrStdout(), gotext.Get("Backup created: %s", pre.Name))
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), gotext.Get("%s restored from %s", m.ConfigPath(), r.Name))
			return nil
		},
	}
	mainCmd.AddCommand(restoreCmd)
	cmdhandler.RegisterAlias(restoreCmd, &a.rootCmd)

	deleteCmd := &cobra.Command{
		Use:               "delete NAME",
		Short:             gotext.Get("Delete a backup"),
		Aliases:           []string{"rm"},
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: a.backupNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := log.WithOperation(a.ctx, "backup delete")
			m, err := a.manager()
			if err != nil {
				return err
			}
			if err := m.DeleteBackup(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), gotext.Get("Backup %s deleted", args[0]))
			return nil
		},
	}
	mainCmd.AddCommand(deleteCmd)

	var keep *int
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: gotext.Get("Delete old backups"),
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return err
			}
			if !cmd.Flags().Changed("keep") {
				return errors.New(gotext.Get("--keep is required"))
			}
			if *keep < 0 {
				return errors.New(gotext.Get("--keep can't be negative"))
			}
			return nil
		},
		ValidArgsFunction: cmdhandler.NoValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := log.WithOperation(a.ctx, "backup prune")
			m, err := a.manager()
			if err != nil {
				return err
			}
			removed, err := m.Prune(ctx, *keep)
			for _, r := range removed {
				fmt.Fprintln(cmd.OutOrStdout(), gotext.Get("Backup %s deleted", r.Name))
			}
			return err
		},
	}
	keep = pruneCmd.Flags().IntP("keep", "k", 0, gotext.Get("`number` of most recent backups to keep"))
	mainCmd.AddCommand(pruneCmd)
}

// backupNames completes with the names of existing backups.
func (a *App) backupNames(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	archive, err := backup.New(a.completionConfig().BackupDir, backup.ReadOnly())
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	records, err := archive.List(context.Background())
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var names []string
	for _, r := range records {
		names = append(names, r.Name)
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
