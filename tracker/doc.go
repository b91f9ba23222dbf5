// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

// Package tracker turns raw finger contacts into controller state.
//
// The touch surface is split horizontally at a boundary line a
// configurable fraction of the height from the top. Fingers that land
// above the line can drive one of two faders; fingers that land below
// it press the lane under their current position.
//
// Each Tick produces a [Snapshot]:
//
//   - Buttons holds one pressed flag per lane.
//   - Left and Right are fader positions in [0,1], resting at 0.5.
//   - AnalogChanged reports whether either fader moved this tick.
//
// A fader is driven by direction, not position. While its finger keeps
// moving right (by more than the dead zone per tick) the fader eases
// toward 1; moving left eases it toward 0; holding still keeps the last
// direction. Lifting the finger returns the fader to center.
//
// Touch events may arrive from any goroutine. Tick and everything it
// reads about fader state belong to the caller's tick goroutine.
package tracker
