// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

// Package touch delivers finger contacts from input sources to a
// [Sink], normally a *tracker.Tracker.
//
// Three sources exist:
//
//   - [Handler] accepts JSON touch messages over a WebSocket, for a
//     browser or tablet acting as the touch surface.
//   - [Device] reads a Linux multitouch (protocol B) evdev device.
//   - [Replay] plays back a trace file written by [Recorder].
//
// A trace is a CBOR sequence: one header followed by one [Event] per
// contact change, each stamped with its offset from the start of the
// recording. Traces ending in .zst are zstd-compressed and traces
// ending in .lz4 are LZ4-compressed; anything else is stored raw.
package touch
