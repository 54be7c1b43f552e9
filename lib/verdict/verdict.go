// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package verdict

import (
	"fmt"
	"log/slog"
)

// Kind is the tag of a Verdict.
type Kind int

const (
	// Unknown means the monitor was unreachable, did not answer in
	// time, or answered with something the agent could not interpret.
	// It is a decision input, not an error.
	Unknown Kind = iota

	// Safe means the monitor sees no reason to keep the host running.
	Safe

	// Unsafe means the monitor wants the host to stay up for now. The
	// Verdict's Reason says why.
	Unsafe

	// ShutdownRequested means the monitor itself asks for a poweroff,
	// independent of the trigger the agent was started with.
	ShutdownRequested
)

// Wire tags for each Kind.
const (
	tagSafe              = "safe"
	tagUnsafe            = "unsafe"
	tagShutdownRequested = "shutdown_requested"
	tagUnknown           = "unknown"
)

func (k Kind) String() string {
	switch k {
	case Safe:
		return tagSafe
	case Unsafe:
		return tagUnsafe
	case ShutdownRequested:
		return tagShutdownRequested
	default:
		return tagUnknown
	}
}

// ParseKind maps a wire tag to a Kind. Tags this agent does not know,
// including the empty string, map to Unknown.
func ParseKind(tag string) Kind {
	switch tag {
	case tagSafe:
		return Safe
	case tagUnsafe:
		return Unsafe
	case tagShutdownRequested:
		return ShutdownRequested
	default:
		return Unknown
	}
}

// Verdict is the monitor's answer to "should the host power off now".
type Verdict struct {
	Kind Kind

	// Reason explains an Unsafe verdict. For Unknown verdicts produced
	// locally it carries the diagnostic (timeout, connection refused,
	// unrecognised tag) so the log line says why no answer was usable.
	Reason string

	// Telemetry is the battery snapshot the monitor attached, if any.
	// Used only for logging.
	Telemetry *Telemetry
}

// Of returns a verdict of kind k with no reason.
func Of(k Kind) Verdict { return Verdict{Kind: k} }

// UnsafeBecause returns an Unsafe verdict with the given reason.
func UnsafeBecause(reason string) Verdict {
	return Verdict{Kind: Unsafe, Reason: reason}
}

// UnknownBecause returns an Unknown verdict annotated with a local
// diagnostic.
func UnknownBecause(format string, args ...any) Verdict {
	return Verdict{Kind: Unknown, Reason: fmt.Sprintf(format, args...)}
}

func (v Verdict) String() string {
	if v.Reason == "" {
		return v.Kind.String()
	}
	return v.Kind.String() + "(" + v.Reason + ")"
}

// LogValue renders the verdict as a slog group so telemetry shows up
// as structured fields.
func (v Verdict) LogValue() slog.Value {
	attributes := []slog.Attr{slog.String("kind", v.Kind.String())}
	if v.Reason != "" {
		attributes = append(attributes, slog.String("reason", v.Reason))
	}
	if v.Telemetry != nil {
		attributes = append(attributes, slog.Any("telemetry", *v.Telemetry))
	}
	return slog.GroupValue(attributes...)
}

// Telemetry is the optional battery snapshot included in a reply.
// Every field is optional on the wire; absent fields stay zero.
type Telemetry struct {
	Model        string  `cbor:"model,omitempty"`
	BatteryLevel float64 `cbor:"battery_level,omitempty"`
	Voltage      float64 `cbor:"voltage,omitempty"`
	Current      float64 `cbor:"current,omitempty"`
	Charging     bool    `cbor:"charging,omitempty"`
}

// LogValue renders the telemetry compactly.
func (t Telemetry) LogValue() slog.Value {
	attributes := []slog.Attr{
		slog.Float64("battery_level", t.BatteryLevel),
		slog.Float64("voltage", t.Voltage),
		slog.Float64("current", t.Current),
		slog.Bool("charging", t.Charging),
	}
	if t.Model != "" {
		attributes = append(attributes, slog.String("model", t.Model))
	}
	return slog.GroupValue(attributes...)
}
