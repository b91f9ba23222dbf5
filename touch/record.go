// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package touch

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/GEEKiDoS/polaris-touch-godot/lib/clock"
	"github.com/GEEKiDoS/polaris-touch-godot/lib/codec"
	"github.com/GEEKiDoS/polaris-touch-godot/tracker"
)

var errRecorderClosed = errors.New("touch: recorder closed")

// Recorder is a Sink that appends every event to a trace file before
// forwarding it. A write failure stops recording but never stops
// forwarding.
type Recorder struct {
	sink    Sink
	clock   clock.Clock
	logger  *slog.Logger
	started time.Time

	mu      sync.Mutex
	output  io.WriteCloser
	encoder *codec.Encoder
	events  int
	err     error
}

// NewRecorder creates the trace at path and forwards to sink.
func NewRecorder(path string, sink Sink, clk clock.Clock, logger *slog.Logger) (*Recorder, error) {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	output, err := createTrace(path)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		sink:    sink,
		clock:   clk,
		logger:  logger.With("trace", path),
		started: clk.Now(),
		output:  output,
		encoder: codec.NewEncoder(output),
	}
	header := traceHeader{Format: traceFormat, Version: traceVersion, Started: r.started.UTC()}
	if err := r.encoder.Encode(header); err != nil {
		output.Close()
		return nil, fmt.Errorf("touch: writing trace header: %w", err)
	}
	return r, nil
}

func (r *Recorder) Down(id int, position tracker.Point) {
	r.record(Event{Kind: KindDown, ID: id, X: position.X, Y: position.Y})
	r.sink.Down(id, position)
}

func (r *Recorder) Move(id int, position tracker.Point) {
	r.record(Event{Kind: KindMove, ID: id, X: position.X, Y: position.Y})
	r.sink.Move(id, position)
}

func (r *Recorder) Up(id int) {
	r.record(Event{Kind: KindUp, ID: id})
	r.sink.Up(id)
}

func (r *Recorder) Resize(width, height float64) {
	r.record(Event{Kind: KindResize, X: width, Y: height})
	r.sink.Resize(width, height)
}

func (r *Recorder) Reset() {
	r.record(Event{Kind: KindReset})
	r.sink.Reset()
}

// Events returns the number of events written so far.
func (r *Recorder) Events() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events
}

// Close flushes and closes the trace. Events after Close are forwarded
// but not recorded.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if errors.Is(r.err, errRecorderClosed) {
		return nil
	}
	r.err = errRecorderClosed
	if err := r.output.Close(); err != nil {
		return fmt.Errorf("touch: closing trace: %w", err)
	}
	r.logger.Info("trace closed", "events", r.events)
	return nil
}

func (r *Recorder) record(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	event.Offset = r.clock.Now().Sub(r.started)
	if err := r.encoder.Encode(event); err != nil {
		r.err = err
		r.logger.Warn("trace recording stopped", "error", err)
		return
	}
	r.events++
}
