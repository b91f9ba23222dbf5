// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

// Package spiceapi builds SpiceAPI commands from controller state and
// sends them over a [transport.Link].
//
// A command is a JSON object terminated by a NUL byte:
//
//	{"id":7,"module":"buttons","function":"write","params":[["Button 4",1]]}
//
// Button parameters are named "Button N" (1-based lane) with value 1 or
// 0. Analog parameters are "Fader-L" and "Fader-R" with the position
// written as a number with exactly two decimals.
//
// [Encoder] remembers the last state it put on the wire and, in delta
// mode, emits only what changed since then. When nothing changed it
// emits nothing at all. Command ids start at 0, are shared by both
// modules, and advance only when a command is actually built.
//
// [Client] pairs one Encoder with one Link, so ids are per connection
// instance. It is the surface the rest of the bridge talks to.
package spiceapi
