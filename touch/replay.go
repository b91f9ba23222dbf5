// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package touch

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/GEEKiDoS/polaris-touch-godot/lib/clock"
)

// Replay plays the trace at path into sink, reproducing the recorded
// timing. It returns nil at the end of the trace and ctx.Err() if
// cancelled. Contacts still down when the trace ends are released.
func Replay(ctx context.Context, path string, sink Sink, clk clock.Clock, logger *slog.Logger) error {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	reader, err := OpenTraceReader(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	logger.Info("replaying trace", "trace", path, "recorded_at", reader.Started)
	defer sink.Reset()

	start := clk.Now()
	events := 0
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			logger.Info("trace finished", "trace", path, "events", events)
			return nil
		}
		if err != nil {
			return err
		}

		if wait := event.Offset - clk.Now().Sub(start); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-clk.After(wait):
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := event.Apply(sink); err != nil {
			logger.Warn("skipping trace event", "error", err)
			continue
		}
		events++
	}
}
