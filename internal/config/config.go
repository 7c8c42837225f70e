// Package config loads the tool configuration from flags, environment and configuration file.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leonelquinteros/gotext"
	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ubuntu/decorate"
	"github.com/ubuntu/sshdconf/internal/consts"
	log "github.com/ubuntu/sshdconf/internal/log"
)

// SetVerboseMode change ErrorFormat and logs between very, middly and non verbose.
func SetVerboseMode(level int) {
	var reportCaller bool
	switch level {
	case 0:
		logrus.SetLevel(consts.DefaultLogLevel)
	case 1:
		logrus.SetLevel(logrus.InfoLevel)
	case 3:
		reportCaller = true
		fallthrough
	default:
		logrus.SetLevel(logrus.DebugLevel)
	}
	log.SetReportCaller(reportCaller)
}

// Init sets verbosity level and add config env variables and file support based on name prefix.
// It then calls loaded to let you deserialize the configuration and returns any errors.
func Init(name string, cmd cobra.Command, vip *viper.Viper, loaded func() error) (err error) {
	defer decorate.OnError(&err, gotext.Get("can't load configuration"))

	// Force a visit of the local flags so persistent flags for all parents are merged.
	cmd.LocalFlags()

	// Get cmdline flag for verbosity to configure logger until we have everything parsed.
	v, err := cmd.Flags().GetCount("verbose")
	if err != nil {
		return fmt.Errorf("internal error: no persistent verbose flag installed on cmd: %w", err)
	}

	SetVerboseMode(v)

	if v, err := cmd.Flags().GetString("config"); err == nil && v != "" {
		p, err := homedir.Expand(v)
		if err != nil {
			return err
		}
		vip.SetConfigFile(p)
	} else {
		vip.SetConfigName(name)
		vip.AddConfigPath("./")
		if home, err := homedir.Dir(); err != nil {
			log.Info(context.Background(), gotext.Get("Can't find home directory, not adding it as a config dir: %v", err))
		} else {
			vip.AddConfigPath(home)
		}
		vip.AddConfigPath("/etc/")
		// Add the executable path to the config search path.
		if binPath, err := os.Executable(); err != nil {
			log.Warning(context.Background(), gotext.Get("Failed to get current executable path, not adding it as a config dir: %v", err))
		} else {
			vip.AddConfigPath(filepath.Dir(binPath))
		}
	}

	if err := vip.ReadInConfig(); err != nil {
		var e viper.ConfigFileNotFoundError
		if errors.As(err, &e) {
			log.Infof(context.Background(), "No configuration file: %v.\nWe will only use the defaults, env variables or flags.", e)
		} else {
			return fmt.Errorf("invalid configuration file: %w", err)
		}
	} else {
		log.Infof(context.Background(), "Using configuration file: %v", vip.ConfigFileUsed())
	}

	vip.SetEnvPrefix(name)
	vip.AutomaticEnv()

	return loaded()
}

// LoadConfig takes c and unmarshall current configuration to it.
func LoadConfig(c interface{}, viper *viper.Viper) error {
	if err := viper.Unmarshal(&c); err != nil {
		return fmt.Errorf("unable to decode configuration into struct: %w", err)
	}
	return nil
}
