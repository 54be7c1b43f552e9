// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitorclient is the agent's side of the monitor socket.
//
// A Connection is a single stream to the monitor over which the agent
// sends a sequence of CBOR requests, each answered by one CBOR response.
// The session owns its Connection exclusively and closes it on every
// exit path.
//
// QueryVerdict never fails. A timeout, a reset connection, an envelope
// that does not decode, an ok=false response, or a verdict tag this
// agent does not know all come back as verdict.Unknown with the cause in
// the Reason field. The decision machine treats Unknown as an input; it
// is never a reason for the agent itself to crash.
//
// After any transport-level failure the Connection is marked broken and
// later queries return Unknown immediately: once a reply has been lost
// the stream can no longer be trusted to pair requests with responses.
// Callers wanting another attempt dial a fresh Connection.
//
// Socket deadlines are wall-clock deadlines set on the net.Conn; they
// do not consult lib/clock.
package monitorclient
