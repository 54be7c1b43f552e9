// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package verdict

import (
	"fmt"
	"strings"
)

// Trigger names the event that caused the agent to run. It selects the
// decision policy and is forwarded to the monitor with each query.
type Trigger string

const (
	// LowBattery is raised by the monitor's charge watcher when the
	// level drops below the configured shutdown threshold.
	LowBattery Trigger = "low-battery"

	// Button is a power-off press on the accessory's button.
	Button Trigger = "button"

	// Remote is a shutdown command that arrived over the network.
	Remote Trigger = "remote"

	// Manual is an operator running the agent by hand.
	Manual Trigger = "manual"

	// Periodic is the timer-driven routine check.
	Periodic Trigger = "periodic"
)

// Triggers lists every accepted trigger in help-text order.
var Triggers = []Trigger{LowBattery, Button, Remote, Manual, Periodic}

// ParseTrigger validates a --reason value.
func ParseTrigger(value string) (Trigger, error) {
	for _, trigger := range Triggers {
		if string(trigger) == value {
			return trigger, nil
		}
	}
	names := make([]string, len(Triggers))
	for i, trigger := range Triggers {
		names[i] = string(trigger)
	}
	return "", fmt.Errorf("unknown trigger %q (want one of %s)", value, strings.Join(names, ", "))
}

func (t Trigger) String() string { return string(t) }
