// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package touch

import (
	"fmt"
	"time"

	"github.com/GEEKiDoS/polaris-touch-godot/tracker"
)

// Sink receives contact changes. Implementations must be safe for use
// from several sources at once.
type Sink interface {
	Down(id int, position tracker.Point)
	Move(id int, position tracker.Point)
	Up(id int)
	Resize(width, height float64)
	Reset()
}

var _ Sink = (*tracker.Tracker)(nil)

// Kind identifies a contact change.
type Kind uint8

const (
	KindDown Kind = iota + 1
	KindMove
	KindUp
	KindResize
	KindReset
)

func (k Kind) String() string {
	switch k {
	case KindDown:
		return "down"
	case KindMove:
		return "move"
	case KindUp:
		return "up"
	case KindResize:
		return "resize"
	case KindReset:
		return "reset"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Event is one recorded contact change. For KindResize, X and Y carry
// the new width and height.
type Event struct {
	Kind   Kind          `cbor:"1,keyasint"`
	ID     int           `cbor:"2,keyasint,omitempty"`
	X      float64       `cbor:"3,keyasint,omitempty"`
	Y      float64       `cbor:"4,keyasint,omitempty"`
	Offset time.Duration `cbor:"5,keyasint,omitempty"`
}

// Apply delivers the event to sink.
func (e Event) Apply(sink Sink) error {
	switch e.Kind {
	case KindDown:
		sink.Down(e.ID, tracker.Point{X: e.X, Y: e.Y})
	case KindMove:
		sink.Move(e.ID, tracker.Point{X: e.X, Y: e.Y})
	case KindUp:
		sink.Up(e.ID)
	case KindResize:
		sink.Resize(e.X, e.Y)
	case KindReset:
		sink.Reset()
	default:
		return fmt.Errorf("touch: unknown event kind %d", e.Kind)
	}
	return nil
}
