// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"fmt"
	"time"
)

// Point is a surface position in pixels, origin top left.
type Point struct {
	X, Y float64
}

// Finger is one contact.
type Finger struct {
	// ID is the touch identifier assigned by the input source.
	ID int

	Position  Point
	Start     Point
	PressTime time.Time
	MoveTime  time.Time
	Valid     bool
}

// String formats the finger for debug logs.
func (f Finger) String() string {
	return fmt.Sprintf("#%d at (%.0f,%.0f) from (%.0f,%.0f)", f.ID, f.Position.X, f.Position.Y, f.Start.X, f.Start.Y)
}

// arena stores fingers in reusable slots. Released slots go on a free
// list and are handed out again before the arena grows. byID only ever
// points at valid slots.
type arena struct {
	slots []Finger
	free  []int
	byID  map[int]int
}

func newArena() *arena {
	return &arena{byID: make(map[int]int)}
}

// press starts a contact. A repeated press for a live id restarts it in
// place.
func (a *arena) press(id int, position Point, now time.Time) {
	slot, ok := a.byID[id]
	if !ok {
		if n := len(a.free); n > 0 {
			slot = a.free[n-1]
			a.free = a.free[:n-1]
		} else {
			a.slots = append(a.slots, Finger{})
			slot = len(a.slots) - 1
		}
		a.byID[id] = slot
	}
	a.slots[slot] = Finger{
		ID:        id,
		Position:  position,
		Start:     position,
		PressTime: now,
		MoveTime:  now,
		Valid:     true,
	}
}

// move updates a contact. Movement for an unknown id counts as a press,
// since some sources drop the initial down event.
func (a *arena) move(id int, position Point, now time.Time) {
	slot, ok := a.byID[id]
	if !ok {
		a.press(id, position, now)
		return
	}
	a.slots[slot].Position = position
	a.slots[slot].MoveTime = now
}

// release invalidates a contact and frees its slot. Unknown ids are
// ignored.
func (a *arena) release(id int) {
	slot, ok := a.byID[id]
	if !ok {
		return
	}
	a.slots[slot].Valid = false
	delete(a.byID, id)
	a.free = append(a.free, slot)
}

// releaseAll invalidates every contact.
func (a *arena) releaseAll() {
	for id := range a.byID {
		a.release(id)
	}
}

// valid appends the valid fingers, in slot order, to dst.
func (a *arena) valid(dst []Finger) []Finger {
	for _, finger := range a.slots {
		if finger.Valid {
			dst = append(dst, finger)
		}
	}
	return dst
}
