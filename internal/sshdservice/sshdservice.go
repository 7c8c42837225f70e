// Package sshdservice restarts and reports the state of the OpenSSH daemon through systemd.
//
// Distributions name the daemon unit differently, so every operation tries a list of unit names
// in order.
package sshdservice

import (
	"context"
	"errors"

	"github.com/godbus/dbus/v5"
	"github.com/leonelquinteros/gotext"
	"github.com/ubuntu/decorate"
	"github.com/ubuntu/sshdconf/internal/consts"
	log "github.com/ubuntu/sshdconf/internal/log"
	"github.com/ubuntu/sshdconf/internal/sshderr"
	"github.com/ubuntu/sshdconf/internal/systemd"
)

// Status is the simplified activation state of the daemon.
type Status string

// Daemon states.
const (
	Active   Status = "active"
	Inactive Status = "inactive"
	Failed   Status = "failed"
	Unknown  Status = "unknown"
)

type systemdCaller interface {
	RestartUnit(context.Context, string) error
	UnitState(context.Context, string) (systemd.UnitState, error)
}

// Service controls the daemon unit.
type Service struct {
	caller systemdCaller
	units  []string
}

type options struct {
	systemdCaller systemdCaller
	units         []string
}

// Option configures the service controller.
type Option func(*options)

// WithUnits overrides the unit names tried in order.
func WithUnits(units []string) Option {
	return func(o *options) {
		o.units = units
	}
}

// WithSystemdCaller specifies a personalized systemd caller.
func WithSystemdCaller(c systemdCaller) Option {
	return func(o *options) {
		o.systemdCaller = c
	}
}

// New returns a controller for the daemon reachable on bus.
// bus can be nil if a systemd caller is given as option.
func New(bus *dbus.Conn, opts ...Option) (s *Service, err error) {
	defer decorate.OnError(&err, gotext.Get("can't create service controller"))

	o := options{
		units: consts.DefaultServiceUnits,
	}
	for _, f := range opts {
		f(&o)
	}
	if len(o.units) == 0 {
		return nil, errors.New(gotext.Get("no service unit to manage"))
	}

	if o.systemdCaller == nil {
		if bus == nil {
			return nil, errors.New(gotext.Get("no system bus connection"))
		}
		c, err := systemd.New(bus)
		if err != nil {
			return nil, err
		}
		o.systemdCaller = c
	}

	return &Service{
		caller: o.systemdCaller,
		units:  append([]string(nil), o.units...),
	}, nil
}

// Units returns the unit names tried in order.
func (s *Service) Units() []string {
	return append([]string(nil), s.units...)
}

// Restart restarts the first unit which can be restarted and returns its name.
func (s *Service) Restart(ctx context.Context) (unit string, err error) {
	var lastErr error
	for _, u := range s.units {
		log.Debugf(ctx, "Restarting %s", u)
		if err := s.caller.RestartUnit(ctx, u); err != nil {
			log.Debugf(ctx, "Can't restart %s: %v", u, err)
			lastErr = err
			continue
		}
		log.Info(ctx, gotext.Get("%s restarted", u))
		return u, nil
	}

	return "", sshderr.Wrap(sshderr.ServiceControl, "restart", "", lastErr)
}

// Status returns the state of the first unit known to systemd, and its name.
// Unknown is returned, with an empty unit name, when no unit state can be read.
func (s *Service) Status(ctx context.Context) (Status, string) {
	for _, u := range s.units {
		st, err := s.caller.UnitState(ctx, u)
		if err != nil {
			log.Debugf(ctx, "Can't read state of %s: %v", u, err)
			continue
		}
		if st.Load == "not-found" {
			log.Debugf(ctx, "Unit %s does not exist", u)
			continue
		}
		return statusFromActiveState(st.Active), u
	}
	return Unknown, ""
}

func statusFromActiveState(state string) Status {
	switch state {
	case "active", "activating", "reloading", "refreshing":
		return Active
	case "inactive", "deactivating":
		return Inactive
	case "failed":
		return Failed
	default:
		return Unknown
	}
}

// NewDbusConnection returns a new authenticated private connection to the system bus.
func NewDbusConnection() (*dbus.Conn, error) {
	bus, err := dbus.SystemBusPrivate()
	if err != nil {
		return nil, err
	}
	if err = bus.Auth(nil); err != nil {
		_ = bus.Close()
		return nil, err
	}
	if err = bus.Hello(); err != nil {
		_ = bus.Close()
		return nil, err
	}

	return bus, nil
}
