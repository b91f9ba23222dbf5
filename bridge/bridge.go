// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/GEEKiDoS/polaris-touch-godot/lib/clock"
	"github.com/GEEKiDoS/polaris-touch-godot/spiceapi"
	"github.com/GEEKiDoS/polaris-touch-godot/tracker"
)

// Controller is the SpiceAPI client surface the bridge drives.
type Controller interface {
	SpiceHost() string
	Connected() bool
	Latency() int
	GuardConnection()
	SendButtonsState(states []bool, delta bool)
	SendAnalogsState(left, right float64, delta bool)
}

var _ Controller = (*spiceapi.Client)(nil)

// Status is the controller state as of the latest tick.
type Status struct {
	Host      string  `json:"host"`
	Connected bool    `json:"connected"`
	Latency   int     `json:"latency_ms"`
	Left      float64 `json:"fader_left"`
	Right     float64 `json:"fader_right"`
	Buttons   []bool  `json:"buttons"`
	Fingers   int     `json:"fingers"`
	Ticks     uint64  `json:"ticks"`
}

// Bridge runs the tick loop between a Tracker and a Controller.
type Bridge struct {
	// Tracker supplies one snapshot per tick. Required.
	Tracker *tracker.Tracker

	// Controller receives the lane and fader states. Required.
	Controller Controller

	// TickInterval is the time between snapshots. Required.
	TickInterval time.Duration

	// GuardInterval is the time between GuardConnection calls.
	// Required.
	GuardInterval time.Duration

	// DebugTouch logs the valid contacts on every tick that has any.
	DebugTouch bool

	// Clock drives both tickers. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives structured log output. If nil, slog.Default() is
	// used.
	Logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	// Tick goroutine only.
	wasConnected bool

	mu     sync.Mutex
	status Status
}

func (b *Bridge) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// Start validates the bridge and begins ticking in the background until
// Stop is called or ctx is cancelled.
func (b *Bridge) Start(ctx context.Context) error {
	if b.Tracker == nil {
		return errors.New("bridge: Tracker is required")
	}
	if b.Controller == nil {
		return errors.New("bridge: Controller is required")
	}
	if b.TickInterval <= 0 {
		return errors.New("bridge: TickInterval must be positive")
	}
	if b.GuardInterval <= 0 {
		return errors.New("bridge: GuardInterval must be positive")
	}
	if b.Clock == nil {
		b.Clock = clock.Real()
	}

	b.status.Host = b.Controller.SpiceHost()

	// Tickers are created before Start returns so that a fake clock
	// sees them immediately.
	ticks := b.Clock.NewTicker(b.TickInterval)
	guards := b.Clock.NewTicker(b.GuardInterval)

	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})

	go func() {
		defer close(b.done)
		defer ticks.Stop()
		defer guards.Stop()
		b.loop(ctx, ticks, guards)
	}()

	b.logger().Info("bridge started",
		"spice_host", b.status.Host,
		"tick_interval", b.TickInterval,
		"guard_interval", b.GuardInterval,
	)
	return nil
}

// Stop cancels the tick loop and waits for it to exit.
func (b *Bridge) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.Wait()
}

// Wait blocks until the bridge has stopped.
func (b *Bridge) Wait() {
	if b.done != nil {
		<-b.done
	}
}

// Status returns a copy of the latest status.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	status := b.status
	status.Buttons = append([]bool(nil), b.status.Buttons...)
	return status
}

func (b *Bridge) loop(ctx context.Context, ticks, guards *clock.Ticker) {
	b.Controller.GuardConnection()
	for {
		select {
		case <-ctx.Done():
			b.logger().Info("bridge stopped")
			return
		case <-guards.C:
			b.Controller.GuardConnection()
		case <-ticks.C:
			b.tick()
		}
	}
}

// tick performs one controller update.
func (b *Bridge) tick() {
	snapshot := b.Tracker.Tick()

	connected := b.Controller.Connected()
	if connected != b.wasConnected {
		b.logger().Info("controller link changed", "connected", connected)
	}
	delta := connected && b.wasConnected
	b.wasConnected = connected

	b.Controller.SendButtonsState(snapshot.Buttons, delta)
	if snapshot.AnalogChanged || !delta {
		b.Controller.SendAnalogsState(snapshot.Left, snapshot.Right, delta)
	}

	if b.DebugTouch && len(snapshot.Fingers) > 0 {
		fingers := make([]string, len(snapshot.Fingers))
		for i, finger := range snapshot.Fingers {
			fingers[i] = finger.String()
		}
		b.logger().Debug("touch", "fingers", fingers, "left", snapshot.Left, "right", snapshot.Right)
	}

	b.mu.Lock()
	b.status.Connected = connected
	b.status.Latency = b.Controller.Latency()
	b.status.Left = snapshot.Left
	b.status.Right = snapshot.Right
	b.status.Buttons = snapshot.Buttons
	b.status.Fingers = len(snapshot.Fingers)
	b.status.Ticks++
	b.mu.Unlock()
}
