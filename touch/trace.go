// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package touch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/GEEKiDoS/polaris-touch-godot/lib/codec"
)

const (
	traceFormat  = "polaris-touch-trace"
	traceVersion = 1
)

// traceHeader is the first item of every trace.
type traceHeader struct {
	Format  string    `cbor:"1,keyasint"`
	Version int       `cbor:"2,keyasint"`
	Started time.Time `cbor:"3,keyasint"`
}

// layeredWriter closes its layers outermost first so compressors flush
// into the file before it is closed.
type layeredWriter struct {
	io.Writer
	closers []func() error
}

func (w *layeredWriter) Close() error {
	var errs []error
	for _, closer := range w.closers {
		errs = append(errs, closer())
	}
	return errors.Join(errs...)
}

type layeredReader struct {
	io.Reader
	closers []func() error
}

func (r *layeredReader) Close() error {
	var errs []error
	for _, closer := range r.closers {
		errs = append(errs, closer())
	}
	return errors.Join(errs...)
}

// createTrace creates path, compressing according to its extension.
func createTrace(path string) (io.WriteCloser, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("touch: creating trace: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst":
		compressor, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("touch: zstd writer: %w", err)
		}
		return &layeredWriter{Writer: compressor, closers: []func() error{compressor.Close, file.Close}}, nil
	case ".lz4":
		compressor := lz4.NewWriter(file)
		return &layeredWriter{Writer: compressor, closers: []func() error{compressor.Close, file.Close}}, nil
	default:
		return file, nil
	}
}

// openTrace opens path, decompressing according to its extension.
func openTrace(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("touch: opening trace: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst":
		decompressor, err := zstd.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("touch: zstd reader: %w", err)
		}
		return &layeredReader{Reader: decompressor, closers: []func() error{
			func() error { decompressor.Close(); return nil },
			file.Close,
		}}, nil
	case ".lz4":
		return &layeredReader{Reader: lz4.NewReader(file), closers: []func() error{file.Close}}, nil
	default:
		return file, nil
	}
}

// TraceReader reads events from a trace file.
type TraceReader struct {
	input   io.ReadCloser
	decoder *codec.Decoder

	// Started is when the recording began.
	Started time.Time
}

// OpenTraceReader opens a trace and validates its header.
func OpenTraceReader(path string) (*TraceReader, error) {
	input, err := openTrace(path)
	if err != nil {
		return nil, err
	}
	decoder := codec.NewDecoder(input)

	var header traceHeader
	if err := decoder.Decode(&header); err != nil {
		input.Close()
		return nil, fmt.Errorf("touch: reading trace header from %s: %w", path, err)
	}
	if header.Format != traceFormat {
		input.Close()
		return nil, fmt.Errorf("touch: %s is not a touch trace", path)
	}
	if header.Version != traceVersion {
		input.Close()
		return nil, fmt.Errorf("touch: %s has trace version %d, want %d", path, header.Version, traceVersion)
	}
	return &TraceReader{input: input, decoder: decoder, Started: header.Started}, nil
}

// Next returns the next event, or io.EOF after the last one.
func (r *TraceReader) Next() (Event, error) {
	var event Event
	if err := r.decoder.Decode(&event); err != nil {
		if errors.Is(err, io.EOF) {
			return Event{}, io.EOF
		}
		return Event{}, fmt.Errorf("touch: reading trace event: %w", err)
	}
	return event, nil
}

// Close closes the underlying file.
func (r *TraceReader) Close() error {
	return r.input.Close()
}
