// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

// Package verdict defines the values exchanged between the shutdown
// agent and the battery monitor: the Verdict the monitor hands back,
// the Trigger that caused the agent to run, and the CBOR wire messages
// that carry both.
//
// The monitor owns the wire format. Fields the agent does not know are
// dropped by lib/codec, and an unrecognised verdict tag becomes Unknown
// rather than an error, so a newer monitor cannot stop an older agent
// from deciding.
package verdict
