// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the structured logger shared by safeoff
// binaries.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// New creates a logger writing to w. Format "auto" uses
// slog.TextHandler when w is a terminal and slog.JSONHandler otherwise
// (journald, a service manager, or a pipe); "text" and "json" force
// one or the other. Verbose lowers the level from Info to Debug.
func New(w io.Writer, format string, verbose bool) (*slog.Logger, error) {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		options.Level = slog.LevelDebug
	}

	var handler slog.Handler
	switch format {
	case "auto", "":
		if isTerminal(w) {
			handler = slog.NewTextHandler(w, options)
		} else {
			handler = slog.NewJSONHandler(w, options)
		}
	case "text":
		handler = slog.NewTextHandler(w, options)
	case "json":
		handler = slog.NewJSONHandler(w, options)
	default:
		return nil, fmt.Errorf("unknown log format %q (valid: auto, json, text)", format)
	}
	return slog.New(handler), nil
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}
