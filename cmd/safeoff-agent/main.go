// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/safeoff/safeoff/lib/agent"
	"github.com/safeoff/safeoff/lib/clock"
	"github.com/safeoff/safeoff/lib/decision"
	"github.com/safeoff/safeoff/lib/hwinfo"
	"github.com/safeoff/safeoff/lib/logging"
	"github.com/safeoff/safeoff/lib/marker"
	"github.com/safeoff/safeoff/lib/outcome"
	"github.com/safeoff/safeoff/lib/poweroff"
	"github.com/safeoff/safeoff/lib/process"
	"github.com/safeoff/safeoff/lib/version"
)

func main() {
	os.Exit(process.Code(os.Stderr, run()))
}

// exitCode ends the process with a status after the message has
// already been written.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit code %d", int(e)) }
func (e exitCode) ExitCode() int { return int(e) }

func run() error {
	opts, err := parseArgs(os.Args[1:], os.Getenv, os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCode(outcome.ExitUsage)
	}
	if opts.showVersion {
		version.Print("safeoff-agent")
		return nil
	}

	logger, err := logging.New(os.Stderr, opts.config.Log.Format, opts.config.Log.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCode(outcome.ExitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := runSession(ctx, opts, clock.Real(), logger)
	if err != nil {
		logger.Error("starting shutdown session", "error", err)
		return exitCode(outcome.ExitUsage)
	}
	if result.Kind == outcome.Completed {
		return nil
	}
	return result
}

// runSession wires the executor and session from opts and runs one
// session to its outcome. The error is a setup failure only.
func runSession(ctx context.Context, opts *options, clk clock.Clock, logger *slog.Logger) (outcome.Outcome, error) {
	cfg := opts.config
	sessionID := uuid.NewString()

	executorConfig := poweroff.Config{
		RetryDelay: cfg.Poweroff.RetryDelay.Std(),
		Clock:      clk,
		Logger:     logger,
		Session:    sessionID,
	}
	if opts.dryRun {
		executorConfig.Mechanisms = []poweroff.Mechanism{poweroff.DryRun(logger)}
		executorConfig.Flush = func() error { return nil }
	} else {
		mechanisms, err := poweroff.Chain(cfg.Poweroff.Mechanisms, cfg.Poweroff.ExecTimeout.Std())
		if err != nil {
			return outcome.Outcome{}, err
		}
		executorConfig.Mechanisms = mechanisms
		executorConfig.Marker = marker.NewStore(cfg.Poweroff.StateDir, cfg.Poweroff.MarkerTTL.Std(), clk)
	}
	executor, err := poweroff.New(executorConfig)
	if err != nil {
		return outcome.Outcome{}, err
	}

	session, err := agent.New(agent.Config{
		Trigger:  opts.trigger,
		Dial:     agent.DialEndpoint(cfg.Monitor.Endpoint),
		Executor: executor,
		Clock:    clk,
		Logger:   logger,
		Deadline: cfg.Session.Deadline.Std(),
		Backoff: decision.Backoff{
			Base: cfg.Session.BackoffBase.Std(),
			Cap:  cfg.Session.BackoffCap.Std(),
		},
		ConnectTimeout: cfg.Monitor.ConnectTimeout.Std(),
		QueryTimeout:   cfg.Monitor.QueryTimeout.Std(),
		ID:             sessionID,
		Host:           hwinfo.Probe(),
	})
	if err != nil {
		return outcome.Outcome{}, err
	}

	logger.Debug("configuration",
		"monitor", cfg.Monitor.Endpoint,
		"mechanisms", cfg.Poweroff.Mechanisms,
		"dry_run", opts.dryRun,
		"version", version.Info(),
	)
	return session.Run(ctx), nil
}
