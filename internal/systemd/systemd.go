// Package systemd provides a wrapper around systemd dbus API that allows to restart a unit and to
// query its state.
package systemd

import (
	"context"
	"errors"

	systemdDbus "github.com/coreos/go-systemd/v22/dbus"
	"github.com/godbus/dbus/v5"
	"github.com/leonelquinteros/gotext"
	"github.com/ubuntu/decorate"
)

// DefaultCaller is the default implementation of the systemd wrapper.
type DefaultCaller struct {
	conn *systemdDbus.Conn
}

// UnitState is the loading and activation state of a unit, as reported by systemd.
type UnitState struct {
	Load   string
	Active string
	Sub    string
}

// jobDone is the string returned by systemd when a job completed successfully.
const jobDone = "done"

// New returns a new systemdCaller using the given dbus connection.
func New(bus *dbus.Conn) (*DefaultCaller, error) {
	conn, err := systemdDbus.NewConnection(func() (*dbus.Conn, error) { return bus, nil })
	if err != nil {
		return nil, err
	}

	return &DefaultCaller{conn: conn}, nil
}

// RestartUnit restarts the given unit and waits for the job to complete.
func (s DefaultCaller) RestartUnit(ctx context.Context, unit string) (err error) {
	defer decorate.OnError(&err, gotext.Get("failed to restart unit %s", unit))

	reschan := make(chan string, 1)
	if _, err = s.conn.RestartUnitContext(ctx, unit, "replace", reschan); err != nil {
		return err
	}

	select {
	case job := <-reschan:
		if job != jobDone {
			return errors.New(gotext.Get("restart job %s", job))
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// UnitState returns the state of the given unit.
func (s DefaultCaller) UnitState(ctx context.Context, unit string) (state UnitState, err error) {
	defer decorate.OnError(&err, gotext.Get("failed to get state of unit %s", unit))

	units, err := s.conn.ListUnitsByNamesContext(ctx, []string{unit})
	if err != nil {
		return UnitState{}, err
	}
	if len(units) != 1 {
		return UnitState{}, errors.New(gotext.Get("expected one unit, got %d", len(units)))
	}

	return UnitState{
		Load:   units[0].LoadState,
		Active: units[0].ActiveState,
		Sub:    units[0].SubState,
	}, nil
}
