// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package touch

import (
	"encoding/binary"

	"github.com/GEEKiDoS/polaris-touch-godot/tracker"
)

// Linux input event types and codes used by the multitouch protocol.
const (
	evSyn = 0x00
	evAbs = 0x03

	synReport  = 0x00
	synDropped = 0x03

	absMTSlot       = 0x2f
	absMTPositionX  = 0x35
	absMTPositionY  = 0x36
	absMTTrackingID = 0x39

	// maxSlots bounds the slot table against a misbehaving device.
	maxSlots = 64
)

// decodeInputEvents splits raw input_event structs and calls handle
// for each. size is 24 on platforms with a 64-bit timeval and 16 on
// those with a 32-bit one. Returns the number of bytes consumed.
func decodeInputEvents(data []byte, size int, handle func(kind, code uint16, value int32)) int {
	consumed := 0
	for len(data)-consumed >= size {
		event := data[consumed : consumed+size]
		header := size - 8
		kind := binary.LittleEndian.Uint16(event[header : header+2])
		code := binary.LittleEndian.Uint16(event[header+2 : header+4])
		value := int32(binary.LittleEndian.Uint32(event[header+4 : header+8]))
		handle(kind, code, value)
		consumed += size
	}
	return consumed
}

type mtSlot struct {
	trackingID int
	active     bool
	x, y       int32

	// reported is true once Down has been sent for trackingID.
	reported bool
	dirty    bool
}

// mtParser turns a multitouch protocol B event stream into Sink calls.
// Changes are collected per slot and delivered at each SYN_REPORT.
type mtParser struct {
	sink       Sink
	xMin, yMin int32

	slot     int
	slots    []mtSlot
	dropping bool
}

func newMTParser(sink Sink, xMin, yMin int32) *mtParser {
	return &mtParser{sink: sink, xMin: xMin, yMin: yMin}
}

func (p *mtParser) current() *mtSlot {
	for len(p.slots) <= p.slot {
		p.slots = append(p.slots, mtSlot{})
	}
	return &p.slots[p.slot]
}

func (p *mtParser) handle(kind, code uint16, value int32) {
	if kind == evSyn {
		switch code {
		case synReport:
			if p.dropping {
				p.dropping = false
				return
			}
			p.flush()
		case synDropped:
			// The kernel buffer overflowed; state is unknown until the
			// next report.
			p.dropping = true
			for i := range p.slots {
				p.slots[i] = mtSlot{}
			}
			p.sink.Reset()
		}
		return
	}
	if kind != evAbs || p.dropping {
		return
	}

	switch code {
	case absMTSlot:
		if value >= 0 && value < maxSlots {
			p.slot = int(value)
		}
	case absMTTrackingID:
		slot := p.current()
		if value < 0 {
			slot.active = false
		} else {
			if slot.reported && slot.trackingID != int(value) {
				// A new contact replaced the old one without a release.
				p.sink.Up(slot.trackingID)
				slot.reported = false
			}
			slot.trackingID = int(value)
			slot.active = true
		}
		slot.dirty = true
	case absMTPositionX:
		slot := p.current()
		slot.x = value
		slot.dirty = true
	case absMTPositionY:
		slot := p.current()
		slot.y = value
		slot.dirty = true
	}
}

func (p *mtParser) flush() {
	for i := range p.slots {
		slot := &p.slots[i]
		if !slot.dirty {
			continue
		}
		slot.dirty = false

		position := tracker.Point{X: float64(slot.x - p.xMin), Y: float64(slot.y - p.yMin)}
		switch {
		case slot.active && !slot.reported:
			p.sink.Down(slot.trackingID, position)
			slot.reported = true
		case slot.active:
			p.sink.Move(slot.trackingID, position)
		case slot.reported:
			p.sink.Up(slot.trackingID)
			slot.reported = false
		}
	}
}
