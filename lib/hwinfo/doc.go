// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

// Package hwinfo identifies the host board for the agent's session log.
//
// Single-board computers describe themselves through the device tree
// (/proc/device-tree/model, e.g. "Raspberry Pi 4 Model B Rev 1.4");
// x86 boards through DMI (/sys/class/dmi/id). [Probe] reads whichever
// exists. It never returns an error: missing or unreadable files
// produce empty fields, since the identity is informational only.
package hwinfo
