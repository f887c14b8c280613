package health

import (
	"context"

	"github.com/speedwagon-io/solarbridge/internal/session"
)

// StorageHealthChecker pings the readings database.
type StorageHealthChecker struct {
	pingFunc func(ctx context.Context) error
}

func NewStorageHealthChecker(pingFunc func(ctx context.Context) error) *StorageHealthChecker {
	return &StorageHealthChecker{pingFunc: pingFunc}
}

func (c *StorageHealthChecker) Name() string {
	return "storage"
}

func (c *StorageHealthChecker) Check(ctx context.Context) (Status, string) {
	if err := c.pingFunc(ctx); err != nil {
		return StatusUnhealthy, err.Error()
	}
	return StatusHealthy, ""
}

// BusHealthChecker is degraded while the bus client reconnects.
type BusHealthChecker struct {
	connectedFunc func() bool
}

func NewBusHealthChecker(connectedFunc func() bool) *BusHealthChecker {
	return &BusHealthChecker{connectedFunc: connectedFunc}
}

func (c *BusHealthChecker) Name() string {
	return "bus"
}

func (c *BusHealthChecker) Check(context.Context) (Status, string) {
	if !c.connectedFunc() {
		return StatusDegraded, "not connected"
	}
	return StatusHealthy, ""
}

type SessionHealthChecker struct {
	stateFunc func() session.State
}

func NewSessionHealthChecker(stateFunc func() session.State) *SessionHealthChecker {
	return &SessionHealthChecker{stateFunc: stateFunc}
}

func (c *SessionHealthChecker) Name() string {
	return "session"
}

func (c *SessionHealthChecker) Check(context.Context) (Status, string) {
	state := c.stateFunc()
	switch {
	case state == session.StateAuthenticated:
		return StatusHealthy, ""
	case state.Terminal():
		return StatusUnhealthy, state.String()
	default:
		return StatusDegraded, state.String()
	}
}
