// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for safeoff
// binaries. It holds the raw stderr write used before the structured
// logger exists and the exit-code mapping applied to run()'s error.
package process
