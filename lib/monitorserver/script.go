// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package monitorserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/safeoff/safeoff/lib/clock"
	"github.com/safeoff/safeoff/lib/verdict"
)

// ScriptStep is one scripted answer.
type ScriptStep struct {
	// Verdict is the wire tag to send. Any string is allowed, so a
	// script can exercise the agent's handling of unknown tags.
	Verdict string `yaml:"verdict" json:"verdict"`

	Reason string `yaml:"reason,omitempty" json:"reason,omitempty"`

	// Delay holds the reply back, as a Go duration string. A delay
	// longer than the agent's query timeout simulates a hung monitor.
	Delay string `yaml:"delay,omitempty" json:"delay,omitempty"`

	// Error makes the step answer ok=false with this message.
	Error string `yaml:"error,omitempty" json:"error,omitempty"`

	BatteryLevel float64 `yaml:"battery_level,omitempty" json:"battery_level,omitempty"`
	Voltage      float64 `yaml:"voltage,omitempty" json:"voltage,omitempty"`
	Current      float64 `yaml:"current,omitempty" json:"current,omitempty"`
	Charging     bool    `yaml:"charging,omitempty" json:"charging,omitempty"`
	Model        string  `yaml:"model,omitempty" json:"model,omitempty"`
}

// scriptFile is the on-disk layout of a script.
type scriptFile struct {
	Steps []ScriptStep `yaml:"steps" json:"steps"`
}

// Script answers verdict requests from a fixed list of steps, one step
// per request, repeating the last step once the list is exhausted.
type Script struct {
	clock clock.Clock

	mu     sync.Mutex
	steps  []ScriptStep
	delays []time.Duration
	next   int
}

// NewScript validates steps and returns a Script that waits on clk.
func NewScript(clk clock.Clock, steps []ScriptStep) (*Script, error) {
	if len(steps) == 0 {
		return nil, errors.New("script has no steps")
	}
	delays := make([]time.Duration, len(steps))
	for i, step := range steps {
		if step.Verdict == "" && step.Error == "" {
			return nil, fmt.Errorf("step %d: verdict or error is required", i+1)
		}
		if step.Delay == "" {
			continue
		}
		delay, err := time.ParseDuration(step.Delay)
		if err != nil {
			return nil, fmt.Errorf("step %d: delay: %w", i+1, err)
		}
		if delay < 0 {
			return nil, fmt.Errorf("step %d: negative delay %v", i+1, delay)
		}
		delays[i] = delay
	}
	return &Script{clock: clk, steps: steps, delays: delays}, nil
}

// ParseSteps parses a compact command-line form: a comma-separated list
// of tag[:reason] entries, e.g. "unsafe:charging,unsafe:charging,safe".
func ParseSteps(list string) ([]ScriptStep, error) {
	var steps []ScriptStep
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		tag, reason, _ := strings.Cut(entry, ":")
		steps = append(steps, ScriptStep{Verdict: tag, Reason: reason})
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("no verdicts in %q", list)
	}
	return steps, nil
}

// LoadScript reads a script file. Files ending in .json or .jsonc are
// parsed as JSON with comments and trailing commas allowed; anything
// else is YAML.
func LoadScript(path string) ([]ScriptStep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}

	var file scriptFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
			return nil, fmt.Errorf("parsing script %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parsing script %s: %w", path, err)
		}
	}
	return file.Steps, nil
}

// Reply implements ReplyFunc.
func (s *Script) Reply(ctx context.Context, request verdict.Request) (verdict.Reply, error) {
	s.mu.Lock()
	index := s.next
	if s.next < len(s.steps)-1 {
		s.next++
	}
	step, delay := s.steps[index], s.delays[index]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-s.clock.After(delay):
		case <-ctx.Done():
			return verdict.Reply{}, ctx.Err()
		}
	}

	if step.Error != "" {
		return verdict.Reply{}, errors.New(step.Error)
	}

	reply := verdict.Reply{Tag: step.Verdict, Reason: step.Reason}
	if step.BatteryLevel != 0 || step.Voltage != 0 || step.Current != 0 || step.Charging || step.Model != "" {
		reply.Telemetry = &verdict.Telemetry{
			Model:        step.Model,
			BatteryLevel: step.BatteryLevel,
			Voltage:      step.Voltage,
			Current:      step.Current,
			Charging:     step.Charging,
		}
	}
	return reply, nil
}
