// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package verdict

import (
	"strconv"

	"github.com/safeoff/safeoff/lib/codec"
)

// Actions understood by the monitor socket.
const (
	// ActionVerdict asks for the current safety verdict.
	ActionVerdict = "verdict"

	// ActionNotifyPoweroff tells the monitor the agent is about to
	// power the host off, so it can arm the accessory's light-load
	// cut-off and stop expecting telemetry reads.
	ActionNotifyPoweroff = "notify_poweroff"
)

// Request is one message from agent to monitor.
type Request struct {
	Action  string  `cbor:"action"`
	Trigger Trigger `cbor:"trigger,omitempty"`
	Session string  `cbor:"session,omitempty"`
}

// Response is the envelope for every monitor reply. Data holds the
// action-specific payload (a Reply for ActionVerdict).
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// Reply is the payload of a successful ActionVerdict response.
type Reply struct {
	Tag       string     `cbor:"verdict"`
	Reason    string     `cbor:"reason,omitempty"`
	Telemetry *Telemetry `cbor:"telemetry,omitempty"`
}

// Verdict converts the wire reply. Unrecognised tags become Unknown,
// keeping the monitor's tag in Reason for the log.
func (r Reply) Verdict() Verdict {
	kind := ParseKind(r.Tag)
	v := Verdict{Kind: kind, Reason: r.Reason, Telemetry: r.Telemetry}
	if kind == Unknown && r.Tag != tagUnknown {
		v.Reason = "unrecognised verdict tag " + strconv.Quote(r.Tag)
	}
	return v
}

// ReplyFor is the inverse of Reply.Verdict, used by monitor
// implementations.
func ReplyFor(v Verdict) Reply {
	return Reply{Tag: v.Kind.String(), Reason: v.Reason, Telemetry: v.Telemetry}
}
