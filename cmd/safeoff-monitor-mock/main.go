// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

// Safeoff-monitor-mock serves the monitor's verdict protocol from a
// script, for bench-testing an agent installation without the
// accessory board attached.
//
// Verdicts come either from --verdicts, a comma-separated list of
// tag[:reason] entries answered one per request:
//
//	safeoff-monitor-mock --verdicts=unsafe:charging,unsafe:charging,safe
//
// or from --script, a YAML or JSONC file of steps that can also delay a
// reply, fail a request, or attach battery telemetry. The last step
// repeats once the script is exhausted. Any tag is accepted so an
// agent's handling of unrecognised verdicts can be exercised.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/safeoff/safeoff/lib/clock"
	"github.com/safeoff/safeoff/lib/config"
	"github.com/safeoff/safeoff/lib/logging"
	"github.com/safeoff/safeoff/lib/monitorserver"
	"github.com/safeoff/safeoff/lib/netutil"
	"github.com/safeoff/safeoff/lib/process"
	"github.com/safeoff/safeoff/lib/verdict"
	"github.com/safeoff/safeoff/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		endpointFlag string
		verdictsFlag string
		scriptPath   string
		logFormat    string
		verbose      bool
		showVersion  bool
	)

	flagSet := pflag.NewFlagSet("safeoff-monitor-mock", pflag.ContinueOnError)
	flagSet.StringVar(&endpointFlag, "endpoint", config.Default().Monitor.Endpoint, "endpoint to listen on: unix:///path or tcp://127.0.0.1:port")
	flagSet.StringVar(&verdictsFlag, "verdicts", "safe", "comma-separated tag[:reason] answers, one per request")
	flagSet.StringVar(&scriptPath, "script", "", "YAML or JSONC script file (overrides --verdicts)")
	flagSet.StringVar(&logFormat, "log-format", config.LogFormatAuto, "log format: auto, json, text")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log every request")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("safeoff-monitor-mock")
		return nil
	}

	logger, err := logging.New(os.Stderr, logFormat, verbose)
	if err != nil {
		return err
	}

	endpoint, err := netutil.ParseEndpoint(endpointFlag)
	if err != nil {
		return fmt.Errorf("--endpoint: %w", err)
	}

	var steps []monitorserver.ScriptStep
	if scriptPath != "" {
		steps, err = monitorserver.LoadScript(scriptPath)
	} else {
		steps, err = monitorserver.ParseSteps(verdictsFlag)
	}
	if err != nil {
		return err
	}
	script, err := monitorserver.NewScript(clock.Real(), steps)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := monitorserver.New(endpoint, script.Reply, logger)
	server.OnNotify(func(_ context.Context, request verdict.Request) error {
		logger.Warn("agent is powering off the host",
			"session", request.Session,
			"trigger", request.Trigger,
		)
		return nil
	})

	logger.Info("mock monitor starting", "steps", len(steps), "version", version.Info())
	if err := server.Serve(ctx); err != nil {
		return err
	}
	logger.Info("mock monitor stopped", "requests", server.Requests())
	return nil
}
