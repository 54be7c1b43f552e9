// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent runs one shutdown session: the short-lived privileged
// side of the safeoff protocol.
//
// A [Session] is created for a single trigger (low battery, button,
// remote, manual, or periodic). Its deadline is fixed at creation.
// [Session.Run] repeatedly asks the monitor for a verdict and feeds it
// to a [decision.Machine] until the machine reaches a terminal state,
// then either powers off through an [Executor] or declines. Every path
// closes the monitor connection and produces exactly one
// [outcome.Outcome], logged as a single line.
//
// The monitor is re-dialed on each query pass while it is unreachable;
// an unreachable monitor is an Unknown verdict, not an error. Only an
// endpoint that can never work (bad syntax, non-loopback host) ends the
// session early.
//
// Cancelling the context passed to Run before the decision is Proceed
// aborts with reason "signaled". Once the decision is Proceed the
// power-off runs on a context detached from cancellation.
package agent
