// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package spiceapi

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Modules addressed by the bridge.
const (
	ModuleButtons = "buttons"
	ModuleAnalogs = "analogs"

	functionWrite = "write"
)

// Analog parameter names.
const (
	FaderLeft  = "Fader-L"
	FaderRight = "Fader-R"
)

// Param is one [name, value] pair. Value is emitted verbatim as a JSON
// number.
type Param struct {
	Name  string
	Value json.Number
}

// MarshalJSON encodes the pair as a two-element array.
func (p Param) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Name, p.Value})
}

// Command is one SpiceAPI request.
type Command struct {
	ID       int64   `json:"id"`
	Module   string  `json:"module"`
	Function string  `json:"function"`
	Params   []Param `json:"params"`
}

// Marshal returns the wire form: compact JSON followed by a NUL.
func (c *Command) Marshal() ([]byte, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("spiceapi: encoding %s command: %w", c.Module, err)
	}
	return append(body, 0), nil
}

// ButtonName returns the parameter name for a 0-based lane.
func ButtonName(lane int) string {
	return "Button " + strconv.Itoa(lane+1)
}

func buttonValue(pressed bool) json.Number {
	if pressed {
		return "1"
	}
	return "0"
}

func analogValue(position float64) json.Number {
	return json.Number(strconv.FormatFloat(position, 'f', 2, 64))
}

// Encoder diffs controller state against what it last sent. Not safe
// for concurrent use.
type Encoder struct {
	lanes       int
	nextID      int64
	lastButtons []bool

	// Negative so the first analog command always carries both sides.
	lastLeft  float64
	lastRight float64
}

// NewEncoder returns an Encoder for the given number of lanes.
func NewEncoder(lanes int) *Encoder {
	return &Encoder{
		lanes:       lanes,
		lastButtons: make([]bool, lanes),
		lastLeft:    -1,
		lastRight:   -1,
	}
}

// Lanes returns the configured lane count.
func (e *Encoder) Lanes() int { return e.lanes }

// Buttons builds a buttons command. With delta set, only lanes whose
// state differs from the last sent state are included; otherwise every
// lane is. Lanes beyond len(states) count as released. Returns nil when
// there is nothing to send.
func (e *Encoder) Buttons(states []bool, delta bool) (*Command, error) {
	if len(states) > e.lanes {
		return nil, fmt.Errorf("spiceapi: %d button states for %d lanes", len(states), e.lanes)
	}

	var params []Param
	for lane := range e.lanes {
		pressed := lane < len(states) && states[lane]
		if delta && pressed == e.lastButtons[lane] {
			continue
		}
		e.lastButtons[lane] = pressed
		params = append(params, Param{Name: ButtonName(lane), Value: buttonValue(pressed)})
	}
	return e.command(ModuleButtons, params), nil
}

// Analogs builds an analogs command. With delta set, a side is
// included only if its value differs exactly from the last sent value.
// Returns nil when there is nothing to send.
func (e *Encoder) Analogs(left, right float64, delta bool) *Command {
	var params []Param
	if !delta || left != e.lastLeft {
		e.lastLeft = left
		params = append(params, Param{Name: FaderLeft, Value: analogValue(left)})
	}
	if !delta || right != e.lastRight {
		e.lastRight = right
		params = append(params, Param{Name: FaderRight, Value: analogValue(right)})
	}
	return e.command(ModuleAnalogs, params)
}

func (e *Encoder) command(module string, params []Param) *Command {
	if len(params) == 0 {
		return nil
	}
	command := &Command{
		ID:       e.nextID,
		Module:   module,
		Function: functionWrite,
		Params:   params,
	}
	e.nextID++
	return command
}
