package systemd_test

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/ubuntu/sshdconf/internal/consts"
)

var s systemdBus

type systemdBus struct {
	conn *dbus.Conn

	nextJobID int

	mu sync.Mutex
}

// unitStatus follows the a(ssssssouso) layout of ListUnitsByNames.
type unitStatus struct {
	Name        string
	Description string
	LoadState   string
	ActiveState string
	SubState    string
	Followed    string
	Path        dbus.ObjectPath
	JobID       uint32
	JobType     string
	JobPath     dbus.ObjectPath
}

var errNoSuchUnit = dbus.NewError(fmt.Sprintf("%s.NoSuchUnit", consts.SystemdDbusRegisteredName), []interface{}{"Unit not-a-service.service not found."})

const (
	absentUnit  = "not-a-service.service"
	failingUnit = "fail-to-restart.service"
	crashedUnit = "crashed.service"
)

func (s *systemdBus) RestartUnit(name string, _ string) (dbus.ObjectPath, *dbus.Error) {
	if name == absentUnit {
		return dbus.ObjectPath("/"), errNoSuchUnit
	}

	return s.emitJobSignals(name), nil
}

func (s *systemdBus) ListUnitsByNames(names []string) ([]unitStatus, *dbus.Error) {
	var r []unitStatus
	for _, n := range names {
		u := unitStatus{
			Name:        n,
			LoadState:   "loaded",
			ActiveState: "active",
			SubState:    "running",
			Path:        dbus.ObjectPath(consts.SystemdDbusObjectPath + "/unit/x"),
			JobPath:     dbus.ObjectPath("/"),
		}
		switch n {
		case absentUnit:
			// systemd reports unknown units instead of failing.
			u.LoadState, u.ActiveState, u.SubState = "not-found", "inactive", "dead"
		case crashedUnit:
			u.ActiveState, u.SubState = "failed", "failed"
		}
		r = append(r, u)
	}
	return r, nil
}

func (s *systemdBus) emitJobSignals(name string) dbus.ObjectPath {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextJobID++
	jobPath := dbus.ObjectPath(fmt.Sprintf("%s/Job/%d", consts.SystemdDbusObjectPath, s.nextJobID))

	err := s.conn.Emit(
		dbus.ObjectPath(consts.SystemdDbusObjectPath),
		fmt.Sprintf("%s.JobNew", consts.SystemdDbusManagerInterface),
		uint32(s.nextJobID), jobPath, name,
	)
	if err != nil {
		panic(err)
	}

	jobStatus := "done"
	if name == failingUnit {
		jobStatus = "failed"
	}

	err = s.conn.Emit(
		dbus.ObjectPath(consts.SystemdDbusObjectPath),
		fmt.Sprintf("%s.JobRemoved", consts.SystemdDbusManagerInterface),
		uint32(s.nextJobID), jobPath, name, jobStatus,
	)
	if err != nil {
		panic(err)
	}

	return jobPath
}
