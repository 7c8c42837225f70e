package commands

import "github.com/godbus/dbus/v5"

// WithBusConnector replaces the system bus connection used to control the daemon.
func WithBusConnector(connect func() (*dbus.Conn, error)) Option {
	return func(o *options) {
		o.connectBus = connect
	}
}
