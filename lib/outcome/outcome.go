// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package outcome

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/safeoff/safeoff/lib/decision"
	"github.com/safeoff/safeoff/lib/monitorclient"
	"github.com/safeoff/safeoff/lib/poweroff"
)

// Kind is the class of a session outcome.
type Kind int

const (
	// Completed: the session did what it was asked, either issuing the
	// power-off or deciding none was needed.
	Completed Kind = iota

	// Aborted: policy declined to shut down.
	Aborted

	// Misconfigured: the monitor endpoint cannot be used at all.
	Misconfigured

	PermissionDenied
	MechanismUnavailable

	// InProgress: another power-off already holds the executor.
	InProgress

	// Internal: anything unclassified.
	Internal
)

func (k Kind) String() string {
	switch k {
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	case Misconfigured:
		return "misconfigured"
	case PermissionDenied:
		return "permission-denied"
	case MechanismUnavailable:
		return "mechanism-unavailable"
	case InProgress:
		return "in-progress"
	case Internal:
		return "internal-error"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Exit codes. Zero is success; the rest are distinct per outcome so
// a service manager or script can react without parsing logs.
const (
	ExitCompleted            = 0
	ExitInternal             = 1
	ExitUsage                = 2
	ExitDeadlineExceeded     = 10
	ExitUnsafe               = 11
	ExitSignaled             = 12
	ExitMisconfigured        = 20
	ExitPermissionDenied     = 30
	ExitMechanismUnavailable = 31
	ExitInProgress           = 32
)

// Outcome is the final result of one session. A non-Completed Outcome
// is also an error so run() can return it directly.
type Outcome struct {
	Kind Kind

	// Abort is set for Aborted.
	Abort decision.AbortReason

	// PoweredOff reports whether a power-off was issued. A Completed
	// outcome without it is a no-op.
	PoweredOff bool

	// Fallback marks a power-off taken on the deadline fallback rather
	// than a verdict.
	Fallback bool

	// Detail is a human-readable explanation.
	Detail string

	// Err is the underlying error for failure kinds.
	Err error
}

// PoweredOff returns the outcome of an issued power-off.
func PoweredOff(detail string, fallback bool) Outcome {
	return Outcome{Kind: Completed, PoweredOff: true, Fallback: fallback, Detail: detail}
}

// NoOp returns a completed outcome where no power-off was needed.
func NoOp(detail string) Outcome {
	return Outcome{Kind: Completed, Detail: detail}
}

// Abort returns a policy abort.
func Abort(reason decision.AbortReason, detail string) Outcome {
	return Outcome{Kind: Aborted, Abort: reason, Detail: detail}
}

// FromError classifies err. A nil err is an internal error, since a
// caller with nothing to report should have built a Completed outcome.
func FromError(err error) Outcome {
	if err == nil {
		return Outcome{Kind: Internal, Err: errors.New("no outcome recorded")}
	}

	var connectErr *monitorclient.ConnectError
	var execErr *poweroff.ExecError
	switch {
	case errors.As(err, &connectErr):
		return Outcome{Kind: Misconfigured, Err: err}
	case errors.As(err, &execErr):
		if execErr.Kind == poweroff.PermissionDenied {
			return Outcome{Kind: PermissionDenied, Err: err}
		}
		return Outcome{Kind: MechanismUnavailable, Err: err}
	case errors.Is(err, poweroff.ErrInProgress), errors.Is(err, poweroff.ErrAlreadyIssued):
		return Outcome{Kind: InProgress, Err: err}
	case errors.Is(err, context.Canceled):
		return Abort(decision.Signaled, err.Error())
	default:
		return Outcome{Kind: Internal, Err: err}
	}
}

// ExitCode returns the process exit status for the outcome.
func (o Outcome) ExitCode() int {
	switch o.Kind {
	case Completed:
		return ExitCompleted
	case Aborted:
		switch o.Abort {
		case decision.DeadlineExceeded:
			return ExitDeadlineExceeded
		case decision.UnsafeVerdict:
			return ExitUnsafe
		case decision.Signaled:
			return ExitSignaled
		}
		return ExitInternal
	case Misconfigured:
		return ExitMisconfigured
	case PermissionDenied:
		return ExitPermissionDenied
	case MechanismUnavailable:
		return ExitMechanismUnavailable
	case InProgress:
		return ExitInProgress
	default:
		return ExitInternal
	}
}

// Message is the one-line human-readable summary.
func (o Outcome) Message() string {
	switch o.Kind {
	case Completed:
		if !o.PoweredOff {
			return withDetail("no shutdown needed", o.Detail)
		}
		if o.Fallback {
			return withDetail("poweroff issued on deadline fallback", o.Detail)
		}
		return withDetail("poweroff issued", o.Detail)
	case Aborted:
		return withDetail(fmt.Sprintf("shutdown aborted (%s)", o.Abort), o.Detail)
	default:
		message := fmt.Sprintf("shutdown failed (%s)", o.Kind)
		if o.Err != nil {
			return message + ": " + o.Err.Error()
		}
		return withDetail(message, o.Detail)
	}
}

func withDetail(message, detail string) string {
	if detail == "" {
		return message
	}
	return message + ": " + detail
}

// Error implements error.
func (o Outcome) Error() string { return o.Message() }

// Unwrap returns the underlying error, if any.
func (o Outcome) Unwrap() error { return o.Err }

// Level is the log level for the final line.
func (o Outcome) Level() slog.Level {
	switch o.Kind {
	case Completed:
		return slog.LevelInfo
	case Aborted:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Log writes the final outcome line. attrs are appended after the
// outcome fields.
func (o Outcome) Log(ctx context.Context, logger *slog.Logger, attrs ...any) {
	fields := []any{"outcome", o.Kind.String(), "exit_code", o.ExitCode()}
	if o.Kind == Aborted {
		fields = append(fields, "abort_reason", string(o.Abort))
	}
	fields = append(fields, attrs...)
	logger.Log(ctx, o.Level(), o.Message(), fields...)
}
