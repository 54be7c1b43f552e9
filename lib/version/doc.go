// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports what build of safeoff is running. The agent
// logs [Info] at the start of every shutdown session and both binaries
// print [Full] for --version, so a field report can be matched to a
// commit. Release builds stamp the variables with -ldflags -X;
// development builds report "0.1.0-dev (unknown, unknown)".
package version
