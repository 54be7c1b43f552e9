// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitorserver serves the monitor side of the verdict protocol.
//
// The real monitor is a separate long-lived process that owns the
// battery hardware. This package implements its socket contract so the
// agent can be exercised end to end: safeoff-monitor-mock uses it to
// replay a scripted sequence of verdicts on a bench machine, and the
// agent's tests use it as the peer for real socket round trips.
//
// Unlike a one-request-per-connection service socket, a monitor
// connection stays open for the whole agent session. The server reads
// CBOR requests in a loop and answers each with one CBOR Response until
// the agent closes the stream or stays idle past the idle timeout.
package monitorserver
