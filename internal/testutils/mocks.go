package testutils

import (
	"context"

	"github.com/ubuntu/sshdconf/internal/systemd"
)

// MockSystemdCaller is a mock implementation of the systemd caller interface.
// It is embedded in tests which override the methods they need.
type MockSystemdCaller struct{}

func (s MockSystemdCaller) RestartUnit(_ context.Context, _ string) error { return nil } //nolint:revive
func (s MockSystemdCaller) UnitState(_ context.Context, _ string) (systemd.UnitState, error) { //nolint:revive
	return systemd.UnitState{Load: "loaded", Active: "active", Sub: "running"}, nil
}
