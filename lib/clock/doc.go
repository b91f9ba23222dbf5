// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for the tick loop, the finger tracker,
// and the datagram session watchdog.
//
// Production code receives [Real]; tests receive [Fake], a clock that
// only moves when the test calls [FakeClock.Advance]. Goroutines that
// wait on a fake ticker or sleep register a pending waiter first, so a
// test calls [FakeClock.WaitForTimers] before advancing:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go loop.Run(ctx)          // registers its tick ticker
//	c.WaitForTimers(1)
//	c.Advance(time.Second / 60)
//
// Socket deadlines are not routed through Clock: the kernel compares
// them against wall time, so they always use the time package.
package clock
