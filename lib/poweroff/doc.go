// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

// Package poweroff issues the host power-off.
//
// An [Executor] owns an ordered chain of [Mechanism] values (systemctl,
// the poweroff binary, shutdown, or the reboot(2) syscall directly) and
// guarantees that at most one power-off is ever issued through it:
// concurrent calls get [ErrInProgress] and calls after a success get
// [ErrAlreadyIssued]. Failures are classified into [*ExecError] so the
// caller can tell a missing privilege (never retried) from a mechanism
// that is absent, hung, or broken (retried once, on the next mechanism
// in the chain).
//
// Filesystems are flushed with sync(2) before the first attempt so a
// mechanism that cuts power abruptly does not lose dirty pages.
package poweroff
