package systemd_test

import (
	"context"
	"flag"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/ubuntu/sshdconf/internal/consts"
	"github.com/ubuntu/sshdconf/internal/systemd"
	"github.com/ubuntu/sshdconf/internal/testutils"
)

var ctx = context.Background()

func TestRestartUnit(t *testing.T) {
	t.Parallel()

	bus := testutils.NewDbusConn(t)

	systemdCaller, err := systemd.New(bus)
	require.NoError(t, err, "Setup: failed to create systemd caller")

	tests := map[string]struct {
		unitName string

		wantErr bool
	}{
		"Restart unit that exists": {unitName: "ssh.service"},

		"Error when restarting unit that doesn't exist": {unitName: absentUnit, wantErr: true},
		"Error when restarting failing unit":            {unitName: failingUnit, wantErr: true},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := systemdCaller.RestartUnit(ctx, tc.unitName)
			if tc.wantErr {
				require.Error(t, err, "RestartUnit should have failed but it didn't")
				return
			}
			require.NoError(t, err, "RestartUnit shouldn't have failed but it did")
		})
	}
}

func TestUnitState(t *testing.T) {
	t.Parallel()

	bus := testutils.NewDbusConn(t)

	systemdCaller, err := systemd.New(bus)
	require.NoError(t, err, "Setup: failed to create systemd caller")

	tests := map[string]struct {
		unitName string

		want systemd.UnitState
	}{
		"Running unit":        {unitName: "ssh.service", want: systemd.UnitState{Load: "loaded", Active: "active", Sub: "running"}},
		"Failed unit":         {unitName: crashedUnit, want: systemd.UnitState{Load: "loaded", Active: "failed", Sub: "failed"}},
		"Unit does not exist": {unitName: absentUnit, want: systemd.UnitState{Load: "not-found", Active: "inactive", Sub: "dead"}},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := systemdCaller.UnitState(ctx, tc.unitName)
			require.NoError(t, err, "UnitState shouldn't have failed but it did")
			require.Equal(t, tc.want, got, "UnitState returned unexpected state")
		})
	}
}

func TestMain(m *testing.M) {
	// export systemd structure
	defer testutils.StartLocalSystemBus()()

	debug := flag.Bool("verbose", false, "Print debug log level information within the test")
	flag.Parse()

	var connOpts []dbus.ConnOption
	if *debug {
		log.SetLevel(log.DebugLevel)
		log.SetFormatter(&log.TextFormatter{
			DisableTimestamp: true,
			DisableQuote:     true,
		})

		connOpts = append(connOpts,
			dbus.WithIncomingInterceptor(func(msg *dbus.Message) {
				log.Debug("DBUS <-:", msg)
			}),
			dbus.WithOutgoingInterceptor(func(msg *dbus.Message) {
				log.Debug("DBUS ->:", msg)
			}),
		)
	}

	conn, err := dbus.SystemBusPrivate(connOpts...)
	if err != nil {
		log.Fatalf("Setup: can't get a private system bus: %v", err)
	}
	defer func() {
		if err = conn.Close(); err != nil {
			log.Fatalf("Teardown: can't close system dbus connection: %v", err)
		}
	}()
	if err = conn.Auth(nil); err != nil {
		log.Fatalf("Setup: can't auth on private system bus: %v", err)
	}
	if err = conn.Hello(); err != nil {
		log.Fatalf("Setup: can't send hello message on private system bus: %v", err)
	}

	s = systemdBus{conn: conn}

	// Export methods
	if err := conn.Export(&s, dbus.ObjectPath(consts.SystemdDbusObjectPath), consts.SystemdDbusManagerInterface); err != nil {
		log.Fatalf("Setup: could not export systemd object %v", err)
	}
	if err = conn.Export(introspect.NewIntrospectable(&introspect.Node{
		Name: consts.SystemdDbusObjectPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    consts.SystemdDbusManagerInterface,
				Methods: introspect.Methods(&s),
			},
		},
	}), consts.SystemdDbusObjectPath, introspect.IntrospectData.Name); err != nil {
		log.Fatalf("Setup: could not export systemd introspection object %v", err)
	}

	// Request systemd name
	reply, err := conn.RequestName(consts.SystemdDbusRegisteredName, dbus.NameFlagDoNotQueue)
	if err != nil {
		log.Fatalf("Setup: Failed to acquire systemd name on local system bus: %v", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		log.Fatalf("Setup: Failed to acquire systemd name on local system bus: name is already taken")
	}

	m.Run()
}
