// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

// Package marker coordinates power-offs between agent processes on the
// same host.
//
// Several agents can start at once: a button press while the battery
// is running out, or a remote command racing a timer. Each agent owns
// its own executor, so the in-process guard cannot see the others. A
// [Store] adds two host-wide facts kept in a runtime directory
// (normally /run/safeoff, a tmpfs cleared on every boot):
//
//   - an exclusive flock(2) on poweroff.lock, held while an agent is
//     issuing the power-off ([Store.Acquire]);
//   - a [Record] in poweroff.json, written once a power-off has been
//     accepted by the OS ([Store.Record], [Store.Issued]).
//
// The record is written atomically (write to temporary file, fsync,
// rename, fsync parent directory) so readers never see a partial
// record. Records older than the store's TTL are ignored, so a
// power-off the OS accepted but never carried out does not block later
// attempts for the rest of the boot.
package marker
