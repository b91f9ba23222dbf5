// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"math"
	"sync"
	"time"

	"github.com/GEEKiDoS/polaris-touch-godot/lib/clock"
	"github.com/GEEKiDoS/polaris-touch-godot/lib/config"
)

// Options configures a Tracker.
type Options struct {
	// Lanes is the number of button lanes.
	Lanes int

	// FaderAreaSize is the fraction of the surface height, from the
	// top, where faders are touched.
	FaderAreaSize float64

	// DeadZone is the per-tick horizontal movement in pixels needed to
	// change a fader's direction.
	DeadZone float64

	// ReturnGain scales the step back to center on release.
	ReturnGain float64

	// EaseDivisor divides the step toward an extreme while moving.
	EaseDivisor float64

	// OppositeDelay is the window after one fader's press during which
	// a new fader touch must also be on its own half of the surface.
	OppositeDelay time.Duration

	// Width and Height are the initial surface size in pixels.
	Width, Height float64

	// Clock stamps press and move times. Defaults to the real clock.
	Clock clock.Clock
}

// OptionsFromConfig maps the controller configuration onto Options.
func OptionsFromConfig(controller config.ControllerConfig) Options {
	return Options{
		Lanes:         controller.Lanes,
		FaderAreaSize: controller.FaderAreaSize,
		DeadZone:      controller.FaderDeadZone,
		ReturnGain:    controller.FaderReturnGain,
		EaseDivisor:   controller.FaderEaseDivisor,
		OppositeDelay: controller.OppositeFaderDelay.Std(),
		Width:         controller.SurfaceWidth,
		Height:        controller.SurfaceHeight,
	}
}

// Snapshot is the controller state produced by one tick.
type Snapshot struct {
	// Buttons has one entry per lane.
	Buttons []bool

	Left  float64
	Right float64

	// AnalogChanged is true when either fader value moved this tick.
	AnalogChanged bool

	// Fingers are the valid contacts seen this tick, in slot order.
	Fingers []Finger
}

// Tracker owns finger bookkeeping and the two faders.
type Tracker struct {
	options Options
	clock   clock.Clock

	mu      sync.Mutex
	fingers *arena
	width   float64
	height  float64

	// Tick goroutine only.
	left, right fader
	counts      []int
}

// New returns a Tracker with both faders centered.
func New(options Options) *Tracker {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Lanes < 1 {
		options.Lanes = 1
	}
	if options.EaseDivisor < 1 {
		options.EaseDivisor = 1
	}
	return &Tracker{
		options: options,
		clock:   options.Clock,
		fingers: newArena(),
		width:   options.Width,
		height:  options.Height,
		left:    fader{side: sideLeft, analog: faderCenter},
		right:   fader{side: sideRight, analog: faderCenter},
		counts:  make([]int, options.Lanes),
	}
}

// Down records a new contact.
func (t *Tracker) Down(id int, position Point) {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fingers.press(id, position, now)
}

// Move records movement of a contact.
func (t *Tracker) Move(id int, position Point) {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fingers.move(id, position, now)
}

// Up ends a contact.
func (t *Tracker) Up(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fingers.release(id)
}

// Reset ends every contact, for example when an input source
// disconnects mid-touch.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fingers.releaseAll()
}

// Resize changes the surface size. Non-positive sizes are ignored.
func (t *Tracker) Resize(width, height float64) {
	if width <= 0 || height <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.width, t.height = width, height
}

// Size returns the current surface size.
func (t *Tracker) Size() (width, height float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.width, t.height
}

// Tick advances the faders one step and aggregates lanes.
func (t *Tracker) Tick() Snapshot {
	t.mu.Lock()
	fingers := t.fingers.valid(nil)
	width, height := t.width, t.height
	t.mu.Unlock()

	boundary := height * t.options.FaderAreaSize
	middle := width / 2

	t.updateAssignment(&t.left, &t.right, fingers, boundary, middle)
	t.updateAssignment(&t.right, &t.left, fingers, boundary, middle)

	var leftChanged, rightChanged bool
	t.left.analog, leftChanged = smooth(t.left.direction, t.left.analog, t.options.ReturnGain, t.options.EaseDivisor)
	t.right.analog, rightChanged = smooth(t.right.direction, t.right.analog, t.options.ReturnGain, t.options.EaseDivisor)

	return Snapshot{
		Buttons:       t.lanes(fingers, boundary, width),
		Left:          t.left.analog,
		Right:         t.right.analog,
		AnalogChanged: leftChanged || rightChanged,
		Fingers:       fingers,
	}
}

// updateAssignment either finds a finger for an unassigned fader or
// follows the assigned one. A fader whose finger is gone is released;
// it can pick up a new finger from the next tick on.
func (t *Tracker) updateAssignment(f, other *fader, fingers []Finger, boundary, middle float64) {
	if !f.assigned {
		if candidate, ok := t.candidate(f, other, fingers, boundary, middle); ok {
			f.assign(candidate)
		}
		return
	}

	for _, finger := range fingers {
		if finger.ID == f.fingerID {
			f.follow(finger, t.options.DeadZone)
			return
		}
	}
	f.release()
}

// candidate returns the first finger that may take over fader f. It
// must have landed in the fader area, on f's side of the other fader's
// finger (or of the middle, if the other fader is free), and not be the
// other fader's finger. A finger pressed within OppositeDelay of the
// other fader's finger must also be on f's half of the surface, so two
// near-simultaneous touches are not swapped.
func (t *Tracker) candidate(f, other *fader, fingers []Finger, boundary, middle float64) (Finger, bool) {
	for _, finger := range fingers {
		if finger.Start.Y > boundary {
			continue
		}
		if !other.assigned {
			if f.side.outward(finger.Start.X, middle) {
				return finger, true
			}
			continue
		}
		if finger.ID == other.fingerID {
			continue
		}
		if !f.side.outward(finger.Start.X, other.lastX) {
			continue
		}
		gap := finger.PressTime.Sub(other.pressTime)
		if gap < 0 {
			gap = -gap
		}
		if gap < t.options.OppositeDelay && !f.side.outward(finger.Start.X, middle) {
			continue
		}
		return finger, true
	}
	return Finger{}, false
}

// lanes counts fingers that landed below the boundary by the lane under
// their current position.
func (t *Tracker) lanes(fingers []Finger, boundary, width float64) []bool {
	clear(t.counts)
	laneWidth := width / float64(len(t.counts))
	for _, finger := range fingers {
		if finger.Start.Y < boundary {
			continue
		}
		lane := int(math.Floor(finger.Position.X / laneWidth))
		lane = max(0, min(lane, len(t.counts)-1))
		t.counts[lane]++
	}

	buttons := make([]bool, len(t.counts))
	for lane, count := range t.counts {
		buttons[lane] = count > 0
	}
	return buttons
}
