// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package touch

import "testing"

func TestEventApply(t *testing.T) {
	sink := &logSink{}
	events := []Event{
		{Kind: KindResize, X: 1200, Y: 800},
		{Kind: KindDown, ID: 1, X: 10, Y: 700},
		{Kind: KindMove, ID: 1, X: 15, Y: 700},
		{Kind: KindUp, ID: 1},
		{Kind: KindReset},
	}
	for _, event := range events {
		if err := event.Apply(sink); err != nil {
			t.Fatalf("Apply(%v) error: %v", event.Kind, err)
		}
	}

	want := []string{"resize 1200x800", "down 1 10,700", "move 1 15,700", "up 1", "reset"}
	if got := sink.snapshot(); !equalCalls(got, want) {
		t.Errorf("calls = %q, want %q", got, want)
	}
}

func TestEventApplyUnknownKind(t *testing.T) {
	sink := &logSink{}
	if err := (Event{Kind: 42}).Apply(sink); err == nil {
		t.Fatal("Apply() succeeded for an unknown kind")
	}
	if sink.len() != 0 {
		t.Errorf("sink received %d calls, want 0", sink.len())
	}
}

func TestKindString(t *testing.T) {
	if got := KindMove.String(); got != "move" {
		t.Errorf("KindMove.String() = %q", got)
	}
	if got := Kind(9).String(); got != "unknown(9)" {
		t.Errorf("Kind(9).String() = %q", got)
	}
}
