// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || freebsd || netbsd || openbsd

package poweroff

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/sys/unix"
)

type syscallMechanism struct{}

func (syscallMechanism) Name() string { return Syscall }

func (syscallMechanism) PowerOff(context.Context) error {
	return unavailable(Syscall, errors.New("reboot(2) power-off is not supported on "+runtime.GOOS))
}

func flushFilesystems() error {
	return unix.Sync()
}
