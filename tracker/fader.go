// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"math"
	"time"
)

const (
	faderCenter = 0.5

	// snapDistance is how close a fader must get to its target before
	// it is placed exactly on it.
	snapDistance = 0.001
)

// side distinguishes the two faders.
type side int

const (
	sideLeft side = iota
	sideRight
)

func (s side) String() string {
	if s == sideLeft {
		return "left"
	}
	return "right"
}

// outward reports whether x lies on this fader's side of reference:
// strictly left of it for the left fader, strictly right for the right.
func (s side) outward(x, reference float64) bool {
	if s == sideLeft {
		return x < reference
	}
	return x > reference
}

// fader is one fader's assignment and smoothed value. The assignment
// refers to a finger by touch id and owns nothing.
type fader struct {
	side     side
	assigned bool
	fingerID int

	// lastX is the finger's x at the previous tick.
	lastX float64

	// pressTime is when the assigned finger touched down.
	pressTime time.Time

	direction int
	analog    float64
}

func (f *fader) assign(finger Finger) {
	f.assigned = true
	f.fingerID = finger.ID
	f.lastX = finger.Position.X
	f.pressTime = finger.PressTime
}

func (f *fader) release() {
	f.assigned = false
	f.direction = 0
}

// follow updates direction from the assigned finger's movement since
// the previous tick. Movement within deadZone keeps the old direction.
func (f *fader) follow(finger Finger, deadZone float64) {
	delta := finger.Position.X - f.lastX
	if math.Abs(delta) > deadZone {
		if delta > 0 {
			f.direction = 1
		} else {
			f.direction = -1
		}
	}
	f.lastX = finger.Position.X
}

// smooth advances analog one tick toward its target and reports whether
// it changed. With no direction the target is center: the step is
// scaled by returnGain and clamped so the value never crosses center.
// Otherwise the target is the extreme in the direction of travel and
// the step is the remaining distance divided by easeDivisor.
func smooth(direction int, analog, returnGain, easeDivisor float64) (float64, bool) {
	if direction == 0 {
		if analog == faderCenter {
			return analog, false
		}
		remaining := faderCenter - analog
		step := remaining * returnGain
		if math.Abs(step) >= math.Abs(remaining) {
			return faderCenter, true
		}
		analog += step
		if math.Abs(faderCenter-analog) < snapDistance {
			analog = faderCenter
		}
		return analog, true
	}

	destination := 0.0
	if direction > 0 {
		destination = 1
	}
	if analog == destination {
		return analog, false
	}
	analog += (destination - analog) / easeDivisor
	if math.Abs(destination-analog) < snapDistance {
		analog = destination
	}
	return analog, true
}
