// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Host is the identity of the machine being powered off.
type Host struct {
	Hostname string
	Board    string
	Kernel   string
}

// LogValue implements slog.LogValuer, omitting empty fields.
func (h Host) LogValue() slog.Value {
	var attrs []slog.Attr
	if h.Hostname != "" {
		attrs = append(attrs, slog.String("hostname", h.Hostname))
	}
	if h.Board != "" {
		attrs = append(attrs, slog.String("board", h.Board))
	}
	if h.Kernel != "" {
		attrs = append(attrs, slog.String("kernel", h.Kernel))
	}
	return slog.GroupValue(attrs...)
}

// Probe reads the host identity from /proc and /sys.
func Probe() Host {
	return probeFrom("/proc", "/sys")
}

// probeFrom is the testable implementation of Probe. It accepts root
// paths for /proc and /sys so tests can point at synthetic filesystems.
func probeFrom(procRoot, sysRoot string) Host {
	host := Host{Kernel: kernelRelease()}
	host.Hostname, _ = os.Hostname()
	host.Board = boardModel(procRoot, sysRoot)
	return host
}

// boardModel prefers the device-tree model and falls back to the DMI
// vendor and board name.
func boardModel(procRoot, sysRoot string) string {
	if model := ReadSysfsString(filepath.Join(procRoot, "device-tree/model")); model != "" {
		return model
	}
	vendor := ReadSysfsString(filepath.Join(sysRoot, "class/dmi/id/sys_vendor"))
	name := ReadSysfsString(filepath.Join(sysRoot, "class/dmi/id/board_name"))
	return strings.TrimSpace(vendor + " " + name)
}

// ReadSysfsString reads a sysfs or device-tree string, trimming
// whitespace and the NUL terminator device-tree properties carry.
// Returns "" on error.
func ReadSysfsString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(string(data), "\x00"))
}
