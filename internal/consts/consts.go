// Package consts defines the constants used by the project
package consts

import (
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// TEXTDOMAIN is the gettext domain for l10n
	TEXTDOMAIN = "sshdconf"

	// CmdName is the name of the executable.
	CmdName = "sshdconf"

	// DefaultLogLevel is the default logging level selected without any option
	DefaultLogLevel = log.WarnLevel

	// Version is the version of the executable
	Version = "dev"

	// DefaultSSHDConfig is the default path of the managed daemon configuration.
	DefaultSSHDConfig = "/etc/ssh/sshd_config"

	// DefaultBackupDir is the default directory holding configuration snapshots.
	DefaultBackupDir = "/var/backup/sshd_configurator"

	// DefaultSSHDCmd is the daemon binary used to check candidate configurations.
	DefaultSSHDCmd = "sshd"

	// DefaultSyntaxCheckTimeout bounds a single syntax check of a candidate configuration.
	DefaultSyntaxCheckTimeout = 5 * time.Second

	// BackupPrefix is the base name of every snapshot in the backup directory.
	BackupPrefix = "sshd_config_"

	// MetaSuffix is appended to a snapshot path to get its metadata sidecar.
	MetaSuffix = ".meta"

	// AttributionComment precedes every directive appended to the managed file.
	AttributionComment = "# Added by sshdconf"

	// DefaultBackupUser is recorded in metadata when no sudo caller is known.
	DefaultBackupUser = "root"

	// SudoUserEnv holds the name of the user who escalated privileges.
	SudoUserEnv = "SUDO_USER"

	// SystemdDbusRegisteredName is the well-known name of systemd on the system bus.
	SystemdDbusRegisteredName = "org.freedesktop.systemd1"
	// SystemdDbusObjectPath is the object path of the systemd manager.
	SystemdDbusObjectPath = "/org/freedesktop/systemd1"
	// SystemdDbusManagerInterface is the interface of the systemd manager.
	SystemdDbusManagerInterface = "org.freedesktop.systemd1.Manager"
	// SystemdDbusUnitInterface is the interface exposing unit properties.
	SystemdDbusUnitInterface = "org.freedesktop.systemd1.Unit"
)

// DefaultServiceUnits are the unit names tried in order to reach the OpenSSH daemon.
// Debian based distributions ship ssh.service, most others sshd.service.
var DefaultServiceUnits = []string{"ssh.service", "sshd.service"}
