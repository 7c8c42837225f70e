package config

import (
	"errors"
	"strings"
	"time"

	"github.com/leonelquinteros/gotext"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/ubuntu/decorate"
	"github.com/ubuntu/sshdconf/internal/consts"
	"github.com/ubuntu/sshdconf/internal/sshdconfig"
)

// Configuration keys.
const (
	KeySSHDConfig         = "sshd_config"
	KeyBackupDir          = "backup_dir"
	KeySSHDCmd            = "sshd_cmd"
	KeySyntaxCheckTimeout = "syntax_check_timeout"
	KeyServiceUnits       = "service_units"
	KeyMaxBackups         = "max_backups"
	KeyResolution         = "resolution"
	KeyFirstWins          = "first_wins"
	KeyVerbose            = "verbose"
)

// AppConfig represents the configurable options of the application.
type AppConfig struct {
	Verbose int

	SSHDConfig string `mapstructure:"sshd_config"`
	BackupDir  string `mapstructure:"backup_dir"`
	MaxBackups int    `mapstructure:"max_backups"`

	// SSHDCmd is the daemon command line, split on spaces.
	SSHDCmd string `mapstructure:"sshd_cmd"`
	// SyntaxCheckTimeout is in seconds.
	SyntaxCheckTimeout int `mapstructure:"syntax_check_timeout"`

	ServiceUnits []string `mapstructure:"service_units"`

	// Resolution is the default policy for repeated directives: last-wins or first-wins.
	Resolution string `mapstructure:"resolution"`
	// FirstWins lists directives resolved with first-wins whatever the default.
	FirstWins []string `mapstructure:"first_wins"`
}

// SetDefaults registers the default value of every key, which also makes them reachable
// through environment variables.
func SetDefaults(vip *viper.Viper) {
	vip.SetDefault(KeyVerbose, 0)
	vip.SetDefault(KeySSHDConfig, consts.DefaultSSHDConfig)
	vip.SetDefault(KeyBackupDir, consts.DefaultBackupDir)
	vip.SetDefault(KeyMaxBackups, 0)
	vip.SetDefault(KeySSHDCmd, consts.DefaultSSHDCmd)
	vip.SetDefault(KeySyntaxCheckTimeout, int(consts.DefaultSyntaxCheckTimeout/time.Second))
	vip.SetDefault(KeyServiceUnits, consts.DefaultServiceUnits)
	vip.SetDefault(KeyResolution, sshdconfig.LastWins.String())
	vip.SetDefault(KeyFirstWins, []string{})
}

// Load decodes and checks the configuration held by vip. Paths starting with ~ are expanded.
func Load(vip *viper.Viper) (c AppConfig, err error) {
	defer decorate.OnError(&err, gotext.Get("invalid configuration"))

	if err := LoadConfig(&c, vip); err != nil {
		return AppConfig{}, err
	}

	if len(c.FirstWins) == 0 {
		c.FirstWins = nil
	}

	if c.SSHDConfig, err = homedir.Expand(c.SSHDConfig); err != nil {
		return AppConfig{}, err
	}
	if c.BackupDir, err = homedir.Expand(c.BackupDir); err != nil {
		return AppConfig{}, err
	}

	if c.SSHDConfig == "" {
		return AppConfig{}, errors.New(gotext.Get("%s can't be empty", KeySSHDConfig))
	}
	if c.BackupDir == "" {
		return AppConfig{}, errors.New(gotext.Get("%s can't be empty", KeyBackupDir))
	}
	if len(c.SSHDCommand()) == 0 {
		return AppConfig{}, errors.New(gotext.Get("%s can't be empty", KeySSHDCmd))
	}
	if c.SyntaxCheckTimeout <= 0 {
		return AppConfig{}, errors.New(gotext.Get("%s must be a positive number of seconds, got %d", KeySyntaxCheckTimeout, c.SyntaxCheckTimeout))
	}
	if c.MaxBackups < 0 {
		return AppConfig{}, errors.New(gotext.Get("%s can't be negative, got %d", KeyMaxBackups, c.MaxBackups))
	}
	if len(c.ServiceUnits) == 0 {
		return AppConfig{}, errors.New(gotext.Get("%s can't be empty", KeyServiceUnits))
	}
	if _, err := c.Resolver(); err != nil {
		return AppConfig{}, err
	}

	return c, nil
}

// SSHDCommand returns the daemon command line.
func (c AppConfig) SSHDCommand() []string {
	return strings.Fields(c.SSHDCmd)
}

// Timeout returns the syntax check timeout.
func (c AppConfig) Timeout() time.Duration {
	return time.Duration(c.SyntaxCheckTimeout) * time.Second
}

// Resolver returns the resolver computing effective directives.
func (c AppConfig) Resolver() (sshdconfig.Resolver, error) {
	var r sshdconfig.Resolver
	switch c.Resolution {
	case sshdconfig.LastWins.String(), "":
		r.Default = sshdconfig.LastWins
	case sshdconfig.FirstWins.String():
		r.Default = sshdconfig.FirstWins
	default:
		return sshdconfig.Resolver{}, errors.New(gotext.Get("unknown resolution policy %q: expected %s or %s", c.Resolution, sshdconfig.LastWins, sshdconfig.FirstWins))
	}

	if len(c.FirstWins) > 0 {
		r.Overrides = make(map[string]sshdconfig.ResolutionPolicy)
		for _, n := range c.FirstWins {
			r.Overrides[n] = sshdconfig.FirstWins
		}
	}
	return r, nil
}
