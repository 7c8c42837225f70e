// Package commands is the command line of sshdconf.
package commands

import (
	"context"
	"io"
	"syscall"

	"github.com/fatih/color"
	"github.com/godbus/dbus/v5"
	"github.com/leonelquinteros/gotext"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ubuntu/decorate"
	"github.com/ubuntu/sshdconf/internal/cmdhandler"
	"github.com/ubuntu/sshdconf/internal/config"
	"github.com/ubuntu/sshdconf/internal/consts"
	"github.com/ubuntu/sshdconf/internal/sshderr"
	"github.com/ubuntu/sshdconf/internal/sshdmanager"
	"github.com/ubuntu/sshdconf/internal/sshdservice"
	"github.com/ubuntu/sshdconf/internal/syntaxcheck"
)

// App encapsulates commands and options of the program, which can be controlled by env variables and config files.
type App struct {
	rootCmd cobra.Command
	viper   *viper.Viper

	config  config.AppConfig
	options options

	ctx    context.Context
	cancel context.CancelFunc
}

// options are the configurable functional options of the application.
type options struct {
	managerOptions []sshdmanager.Option
	serviceOptions []sshdservice.Option
	connectBus     func() (*dbus.Conn, error)
}

// Option changes the behavior of the application.
type Option func(*options)

// WithManagerOptions appends options used when creating the configuration manager.
// Shouldn't be in general necessary apart for tests.
func WithManagerOptions(opts ...sshdmanager.Option) Option {
	return func(o *options) {
		o.managerOptions = append(o.managerOptions, opts...)
	}
}

// WithServiceOptions appends options used when creating the service controller, which then
// doesn't connect to the system bus. Shouldn't be in general necessary apart for tests.
func WithServiceOptions(opts ...sshdservice.Option) Option {
	return func(o *options) {
		o.serviceOptions = append(o.serviceOptions, opts...)
		o.connectBus = func() (*dbus.Conn, error) { return nil, nil }
	}
}

// New registers commands and return a new App.
func New(opts ...Option) *App {
	args := options{
		connectBus: sshdservice.NewDbusConnection,
	}
	for _, o := range opts {
		o(&args)
	}

	a := App{options: args}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.rootCmd = cobra.Command{
		Use:   consts.CmdName + " COMMAND",
		Short: gotext.Get("Manage the OpenSSH daemon configuration"),
		Long: gotext.Get(`Read, validate and apply changes to the OpenSSH daemon configuration.

Every change is checked by the daemon before replacing the live configuration, and can be
backed up beforehand.`),
		Args: cmdhandler.SubcommandsRequiredWithSuggestions,
		RunE: cmdhandler.NoCmd,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns runtime (or
			// configuration) error now and so, don't print usage.
			a.rootCmd.SilenceUsage = true
			err := config.Init(consts.CmdName, a.rootCmd, a.viper, func() error {
				c, err := config.Load(a.viper)
				if err != nil {
					return err
				}
				a.config = c
				return nil
			})

			// Set configured verbose status before getting error output.
			config.SetVerboseMode(a.config.Verbose)
			if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
				color.NoColor = true
			}
			return err
		},

		// We display usage error ourselves
		SilenceErrors: true,
	}

	a.viper = viper.New()
	config.SetDefaults(a.viper)

	cmdhandler.InstallVerboseFlag(&a.rootCmd, a.viper)
	cmdhandler.InstallConfigFlag(&a.rootCmd)
	a.rootCmd.PersistentFlags().String("sshd-config", consts.DefaultSSHDConfig, gotext.Get("`path` to the daemon configuration file"))
	errSSHDConfig := a.viper.BindPFlag(config.KeySSHDConfig, a.rootCmd.PersistentFlags().Lookup("sshd-config"))
	decorate.LogOnError(&errSSHDConfig)
	a.rootCmd.PersistentFlags().String("backup-dir", consts.DefaultBackupDir, gotext.Get("`directory` holding configuration backups"))
	errBackupDir := a.viper.BindPFlag(config.KeyBackupDir, a.rootCmd.PersistentFlags().Lookup("backup-dir"))
	decorate.LogOnError(&errBackupDir)
	a.rootCmd.PersistentFlags().Bool("no-color", false, gotext.Get("don't display colorized output"))

	// subcommands
	a.installConfig()
	a.installApply()
	a.installPreset()
	a.installBackup()
	a.installService()
	a.installVersion()
	cmdhandler.InstallCompletionCmd(&a.rootCmd)

	return &a
}

// Run executes the command and associated process. It returns an error on syntax/usage error.
func (a *App) Run() error {
	return a.rootCmd.Execute()
}

// Quit cancels any running operation. A candidate configuration being checked is discarded.
func (a *App) Quit(_ syscall.Signal) error {
	a.cancel()
	return nil
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.rootCmd.SilenceUsage
}

// RootCmd returns a copy of the root command for the cmd package only.
func (a App) RootCmd() cobra.Command {
	return a.rootCmd
}

// SetArgs changes the root command args. Shouldn't be in general necessary apart for tests.
func (a *App) SetArgs(args []string) {
	a.rootCmd.SetArgs(args)
}

// SetOut redirects the command output. Shouldn't be in general necessary apart for tests.
func (a *App) SetOut(w io.Writer) {
	a.rootCmd.SetOut(w)
	a.rootCmd.SetErr(w)
}

// manager returns the configuration manager described by the configuration.
func (a *App) manager() (*sshdmanager.Manager, error) {
	resolver, err := a.config.Resolver()
	if err != nil {
		return nil, err
	}
	checker := syntaxcheck.New(
		syntaxcheck.WithCmd(a.config.SSHDCommand()),
		syntaxcheck.WithTimeout(a.config.Timeout()),
	)

	opts := append([]sshdmanager.Option{
		sshdmanager.WithConfigPath(a.config.SSHDConfig),
		sshdmanager.WithBackupDir(a.config.BackupDir),
		sshdmanager.WithMaxBackups(a.config.MaxBackups),
		sshdmanager.WithResolver(resolver),
		sshdmanager.WithChecker(checker),
	}, a.options.managerOptions...)

	return sshdmanager.New(opts...)
}

// service returns the daemon service controller and a function to release it.
func (a *App) service() (*sshdservice.Service, func(), error) {
	bus, err := a.options.connectBus()
	if err != nil {
		return nil, nil, &sshderr.Error{
			Kind:   sshderr.ServiceControl,
			Op:     "connect",
			Detail: gotext.Get("can't connect to the system bus"),
			Err:    err,
		}
	}
	release := func() {
		if bus != nil {
			_ = bus.Close()
		}
	}

	opts := append([]sshdservice.Option{sshdservice.WithUnits(a.config.ServiceUnits)}, a.options.serviceOptions...)
	s, err := sshdservice.New(bus, opts...)
	if err != nil {
		release()
		return nil, nil, err
	}
	return s, release, nil
}

// completionConfig returns the configuration to use in shell completion. Flags are only parsed
// once the command to complete is found, so the configuration is loaded again.
func (a *App) completionConfig() config.AppConfig {
	c, err := config.Load(a.viper)
	if err == nil {
		return c
	}
	if a.config.SSHDConfig != "" {
		return a.config
	}
	return config.AppConfig{SSHDConfig: consts.DefaultSSHDConfig, BackupDir: consts.DefaultBackupDir}
}
