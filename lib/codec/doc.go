// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration shared by the agent and the
// monitor wire protocol.
//
// The monitor socket carries a sequence of CBOR values in each
// direction. CBOR is self-delimiting, so a stream decoder reads exactly
// one request or reply at a time with no extra framing.
//
// The decoder ignores fields it does not know. The monitor is a separate
// program released on its own schedule; a newer monitor may add telemetry
// fields and an older agent must keep working.
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec
