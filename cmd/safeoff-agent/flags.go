// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/safeoff/safeoff/lib/config"
	"github.com/safeoff/safeoff/lib/poweroff"
	"github.com/safeoff/safeoff/lib/verdict"
)

type options struct {
	trigger     verdict.Trigger
	config      *config.Config
	dryRun      bool
	showVersion bool
}

// parseArgs builds the effective configuration: defaults, then the
// config file, then SAFEOFF_MONITOR, then flags the caller set.
func parseArgs(args []string, getenv func(string) string, output io.Writer) (*options, error) {
	var (
		reason       string
		configPath   string
		monitor      string
		queryTimeout time.Duration
		deadline     time.Duration
		backoffBase  time.Duration
		backoffCap   time.Duration
		mechanisms   []string
		logFormat    string
		verbose      bool
		dryRun       bool
		showVersion  bool
	)

	triggers := make([]string, len(verdict.Triggers))
	for i, trigger := range verdict.Triggers {
		triggers[i] = string(trigger)
	}

	flagSet := pflag.NewFlagSet("safeoff-agent", pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.StringVar(&reason, "reason", "", "what triggered the shutdown: "+strings.Join(triggers, ", ")+" (required)")
	flagSet.StringVar(&configPath, "config", "", "config file, YAML or JSONC (default: $"+config.EnvConfig+")")
	flagSet.StringVar(&monitor, "monitor", "", "monitor endpoint: unix:///path or tcp://127.0.0.1:port (default: $"+config.EnvMonitor+" or config)")
	flagSet.DurationVar(&queryTimeout, "query-timeout", 0, "timeout for each verdict request")
	flagSet.DurationVar(&deadline, "deadline", 0, "session deadline, fixed at start")
	flagSet.DurationVar(&backoffBase, "backoff-base", 0, "first retry delay, doubled per retry")
	flagSet.DurationVar(&backoffCap, "backoff-cap", 0, "maximum retry delay")
	flagSet.StringArrayVar(&mechanisms, "mechanism", nil, "poweroff mechanism to try, in order; repeatable ("+strings.Join(poweroff.Names, ", ")+")")
	flagSet.BoolVar(&dryRun, "dry-run", false, "run the full protocol but log instead of powering off")
	flagSet.StringVar(&logFormat, "log-format", "", "log format: auto, json, text")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if showVersion {
		return &options{showVersion: true}, nil
	}
	if flagSet.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(flagSet.Args(), " "))
	}

	if reason == "" {
		return nil, errors.New("--reason is required")
	}
	trigger, err := verdict.ParseTrigger(reason)
	if err != nil {
		return nil, fmt.Errorf("--reason: %w", err)
	}

	if configPath == "" {
		configPath = getenv(config.EnvConfig)
	}
	cfg := config.Default()
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnvironment(getenv)

	if flagSet.Changed("monitor") {
		cfg.Monitor.Endpoint = monitor
	}
	if flagSet.Changed("query-timeout") {
		cfg.Monitor.QueryTimeout = config.Duration(queryTimeout)
	}
	if flagSet.Changed("deadline") {
		cfg.Session.Deadline = config.Duration(deadline)
	}
	if flagSet.Changed("backoff-base") {
		cfg.Session.BackoffBase = config.Duration(backoffBase)
	}
	if flagSet.Changed("backoff-cap") {
		cfg.Session.BackoffCap = config.Duration(backoffCap)
	}
	if flagSet.Changed("mechanism") {
		cfg.Poweroff.Mechanisms = mechanisms
	}
	if flagSet.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	if verbose {
		cfg.Log.Verbose = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return &options{trigger: trigger, config: cfg, dryRun: dryRun}, nil
}
