// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds test helpers shared across packages.
//
// [RequireReceive] and [RequireClosed] wrap the select with a
// wall-clock fallback so that a test waiting on a transport worker or
// server goroutine fails instead of hanging. They are the only place
// tests use real timeouts for synchronization.
//
// [RequireEventually] polls a condition for observables that change on
// another goroutine without a channel to wait on, such as a transport's
// Connected flag or the number of open WebSocket clients.
package testutil
