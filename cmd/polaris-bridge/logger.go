// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// newLogger returns a text logger when output is a terminal and a JSON
// logger otherwise.
func newLogger(output *os.File, verbose bool) *slog.Logger {
	return slog.New(newHandler(output, term.IsTerminal(int(output.Fd())), verbose))
}

func newHandler(output io.Writer, terminal, verbose bool) slog.Handler {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		options.Level = slog.LevelDebug
	}
	if terminal {
		return slog.NewTextHandler(output, options)
	}
	return slog.NewJSONHandler(output, options)
}
