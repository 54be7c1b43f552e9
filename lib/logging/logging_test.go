// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestAutoUsesJSONForNonTerminal(t *testing.T) {
	var buffer bytes.Buffer
	logger, err := New(&buffer, "auto", false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("verdict received", "verdict", "safe")

	var record map[string]any
	if err := json.Unmarshal(buffer.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buffer.String(), err)
	}
	if record["verdict"] != "safe" {
		t.Errorf("record = %v", record)
	}
}

func TestTextFormat(t *testing.T) {
	var buffer bytes.Buffer
	logger, err := New(&buffer, "text", false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("verdict received", "verdict", "safe")
	if !strings.Contains(buffer.String(), "verdict=safe") {
		t.Errorf("expected text output, got %q", buffer.String())
	}
}

func TestVerboseEnablesDebug(t *testing.T) {
	var quiet, verbose bytes.Buffer
	quietLogger, _ := New(&quiet, "json", false)
	verboseLogger, _ := New(&verbose, "json", true)

	quietLogger.Debug("querying monitor")
	verboseLogger.Debug("querying monitor")

	if quiet.Len() != 0 {
		t.Errorf("debug line written without verbose: %q", quiet.String())
	}
	if verbose.Len() == 0 {
		t.Error("debug line missing with verbose")
	}
}

func TestUnknownFormat(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "xml", false); err == nil {
		t.Error("New accepted an unknown format")
	}
}
