// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package poweroff

import (
	"errors"
	"fmt"
)

// ErrInProgress is returned by Execute while another call on the same
// Executor is still running.
var ErrInProgress = errors.New("poweroff already in progress")

// ErrAlreadyIssued is returned by Execute after a previous call
// succeeded.
var ErrAlreadyIssued = errors.New("poweroff already issued")

// ExecErrorKind classifies a failed power-off attempt.
type ExecErrorKind int

const (
	// MechanismUnavailable: the mechanism is missing, timed out, or
	// failed for a reason other than privilege. Retried once.
	MechanismUnavailable ExecErrorKind = iota

	// PermissionDenied: the process lacks the privilege to power off.
	// Retrying cannot help.
	PermissionDenied
)

func (k ExecErrorKind) String() string {
	switch k {
	case MechanismUnavailable:
		return "mechanism unavailable"
	case PermissionDenied:
		return "permission denied"
	default:
		return fmt.Sprintf("ExecErrorKind(%d)", int(k))
	}
}

// ExecError is a classified power-off failure.
type ExecError struct {
	Kind      ExecErrorKind
	Mechanism string
	Err       error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Mechanism, e.Kind, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

func unavailable(mechanism string, err error) *ExecError {
	return &ExecError{Kind: MechanismUnavailable, Mechanism: mechanism, Err: err}
}

func denied(mechanism string, err error) *ExecError {
	return &ExecError{Kind: PermissionDenied, Mechanism: mechanism, Err: err}
}
