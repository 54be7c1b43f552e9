// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the safeoff agent.
//
// Values are layered, later layers winning:
//
//  1. [Default]
//  2. the file named by --config or the SAFEOFF_CONFIG environment
//     variable (YAML, or JSON with comments for .json/.jsonc)
//  3. SAFEOFF_MONITOR, which overrides only the monitor endpoint
//  4. command-line flags, applied by the binary
//
// Unknown keys in a config file are errors so a typo cannot silently
// fall back to a default. Durations are Go duration strings ("500ms",
// "30s").
package config
