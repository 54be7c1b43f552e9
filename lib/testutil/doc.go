// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [SocketDir] creates a short temporary directory in /tmp for unix
// domain sockets. sun_path is limited to 108 bytes and t.TempDir() paths
// can exceed it.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// safety valve so tests that block on a channel fail instead of hanging.
// They are the only place tests use real wall-clock timeouts; everything
// else runs on lib/clock's fake clock.
//
// [DiscardLogger] returns a logger for code under test that must log
// but whose output the test does not inspect.
package testutil
