// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package poweroff

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// syscallMechanism calls reboot(2) with LINUX_REBOOT_CMD_POWER_OFF.
// The kernel powers off without running the service manager's stop
// jobs, so it sits last in the default chain.
type syscallMechanism struct{}

func (syscallMechanism) Name() string { return Syscall }

func (syscallMechanism) PowerOff(context.Context) error {
	// CAP_SYS_BOOT is normally only held by root; checking first gives
	// a clearer error than EPERM from the call.
	if unix.Geteuid() != 0 {
		return denied(Syscall, fmt.Errorf("reboot(2) requires root (euid %d)", unix.Geteuid()))
	}
	unix.Sync()
	err := unix.Reboot(unix.LINUX_REBOOT_CMD_POWER_OFF)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EPERM), errors.Is(err, unix.EACCES):
		return denied(Syscall, fmt.Errorf("reboot(2): %w", err))
	default:
		return unavailable(Syscall, fmt.Errorf("reboot(2): %w", err))
	}
}

// flushFilesystems commits dirty pages for every mounted filesystem.
func flushFilesystems() error {
	unix.Sync()
	return nil
}
