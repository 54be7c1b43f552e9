// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package poweroff

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Mechanism is one way of powering the host off. PowerOff returns nil
// once the request has been accepted by the OS; the process may be
// killed at any point afterwards.
type Mechanism interface {
	Name() string
	PowerOff(ctx context.Context) error
}

// Mechanism names accepted by Lookup.
const (
	Systemctl = "systemctl"
	Poweroff  = "poweroff"
	Shutdown  = "shutdown"
	Syscall   = "syscall"
)

// Names lists the built-in mechanisms.
var Names = []string{Systemctl, Poweroff, Shutdown, Syscall}

// Lookup returns the built-in mechanism called name. Command mechanisms
// are bounded by timeout per attempt.
func Lookup(name string, timeout time.Duration) (Mechanism, error) {
	switch name {
	case Systemctl:
		return Command(Systemctl, timeout, "systemctl", "poweroff"), nil
	case Poweroff:
		return Command(Poweroff, timeout, "poweroff"), nil
	case Shutdown:
		return Command(Shutdown, timeout, "shutdown", "-h", "now"), nil
	case Syscall:
		return syscallMechanism{}, nil
	default:
		return nil, fmt.Errorf("unknown poweroff mechanism %q (valid: %s)", name, strings.Join(Names, ", "))
	}
}

// Chain resolves an ordered list of mechanism names.
func Chain(names []string, timeout time.Duration) ([]Mechanism, error) {
	if len(names) == 0 {
		return nil, errors.New("no poweroff mechanisms configured")
	}
	mechanisms := make([]Mechanism, 0, len(names))
	for _, name := range names {
		mechanism, err := Lookup(name, timeout)
		if err != nil {
			return nil, err
		}
		mechanisms = append(mechanisms, mechanism)
	}
	return mechanisms, nil
}

// Command returns a mechanism that runs argv and treats a zero exit as
// success. The binary is resolved through PATH on each attempt.
func Command(name string, timeout time.Duration, argv ...string) Mechanism {
	return commandMechanism{name: name, argv: argv, timeout: timeout}
}

type commandMechanism struct {
	name    string
	argv    []string
	timeout time.Duration
}

func (m commandMechanism) Name() string { return m.name }

func (m commandMechanism) PowerOff(ctx context.Context) error {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	command := exec.CommandContext(ctx, m.argv[0], m.argv[1:]...)
	command.Stderr = &stderr
	// A child that inherits stderr must not hold Wait open past the
	// timeout.
	command.WaitDelay = time.Second

	err := command.Run()
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return unavailable(m.name, fmt.Errorf("%s: no result within %v", m.commandString(), m.timeout))
	}
	return classifyCommandError(m.name, m.commandString(), strings.TrimSpace(stderr.String()), err)
}

func (m commandMechanism) commandString() string {
	return strings.Join(m.argv, " ")
}

// permissionMarkers are stderr fragments printed by systemctl, polkit,
// and the sysvinit tools when the caller is not privileged.
var permissionMarkers = []string{
	"access denied",
	"interactive authentication required",
	"permission denied",
	"must be root",
	"must be superuser",
	"not permitted",
}

// classifyCommandError maps a failed run onto an ExecError, preferring
// the command's stderr as the message.
func classifyCommandError(name, commandString, stderrText string, err error) *ExecError {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return unavailable(name, fmt.Errorf("%s: %w", commandString, err))
	}
	if errors.Is(err, os.ErrPermission) {
		return denied(name, fmt.Errorf("%s: %w", commandString, err))
	}

	wrapped := fmt.Errorf("%s: %w", commandString, err)
	if stderrText != "" {
		wrapped = fmt.Errorf("%s: %s (%w)", commandString, stderrText, err)
	}
	lower := strings.ToLower(stderrText)
	for _, marker := range permissionMarkers {
		if strings.Contains(lower, marker) {
			return denied(name, wrapped)
		}
	}
	return unavailable(name, wrapped)
}

// DryRun returns a mechanism that logs instead of powering off.
func DryRun(logger *slog.Logger) Mechanism {
	return dryRunMechanism{logger: logger}
}

type dryRunMechanism struct {
	logger *slog.Logger
}

func (dryRunMechanism) Name() string { return "dry-run" }

func (m dryRunMechanism) PowerOff(context.Context) error {
	m.logger.Info("dry run, poweroff not issued")
	return nil
}
