// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

// Safeoff-agent decides whether to power the host off and, if so, does
// it exactly once.
//
// It is started by whatever noticed the trigger (a udev rule for the
// button, the monitor's low-battery hook, a remote command handler, a
// systemd timer for periodic checks, or an operator) and runs a single
// session:
//
//	safeoff-agent --reason=low-battery
//
// The agent asks the monitor for its safety verdict over the monitor
// socket, retries with exponential backoff while the answer is unknown
// or (for low battery) unsafe, and gives up at a fixed deadline. Low
// battery is fail-safe: at the deadline the host powers off anyway.
// Every other trigger is fail-open and aborts.
//
// The exit status reports the outcome:
//
//	 0  completed (powered off, or nothing to do)
//	 1  internal error
//	 2  usage or configuration error
//	10  aborted: deadline exceeded
//	11  aborted: monitor reported unsafe
//	12  aborted: interrupted by SIGINT/SIGTERM
//	20  monitor endpoint misconfigured
//	30  poweroff permission denied
//	31  no poweroff mechanism available
//	32  another poweroff already in progress
//
// Configuration comes from defaults, then the file named by --config or
// SAFEOFF_CONFIG, then SAFEOFF_MONITOR, then flags.
package main
