package sysops

import (
	"context"
	"fmt"
)

// SystemdSupervisor restarts services through systemctl. Failures raise
// rather than silently no-op.
type SystemdSupervisor struct{}

func (SystemdSupervisor) Restart(ctx context.Context, service string) error {
	if service == "" {
		return fmt.Errorf("service name is required")
	}
	return run(ctx, "systemctl", "restart", service)
}
