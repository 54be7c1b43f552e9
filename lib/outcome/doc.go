// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

// Package outcome classifies how a shutdown session ended.
//
// Every session ends in exactly one [Outcome]: completed (with or
// without a power-off), aborted by policy, or failed with a classified
// error. Lower-level errors are folded in with [FromError] so nothing
// unclassified reaches the process boundary. An Outcome carries its
// exit status ([Outcome.ExitCode]) and renders as the session's single
// final log line ([Outcome.Log]).
package outcome
