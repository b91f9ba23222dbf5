// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge drives the controller: it turns the tracker's contact
// state into SpiceAPI commands at a fixed tick rate.
//
// Touch sources (WebSocket clients, an evdev device, a replayed trace)
// write into a [tracker.Tracker] from their own goroutines. [Bridge]
// owns the tick loop. Every tick it asks the tracker for a snapshot and
// hands the lane states and fader values to the client, which encodes
// only what changed since the last command. A second, slower ticker
// calls GuardConnection so that a dropped SpiceAPI connection is
// re-established without any input.
//
// Deltas are suppressed while the client is disconnected and on the
// first tick after it reconnects, so the server always receives the
// full controller state after a gap.
//
// Start validates the configuration and launches the loop; Stop cancels
// it and waits. Status returns the latest snapshot for the /status
// endpoint.
package bridge
