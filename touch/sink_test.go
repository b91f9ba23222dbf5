// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package touch

import (
	"fmt"
	"sync"

	"github.com/GEEKiDoS/polaris-touch-godot/tracker"
)

// logSink records every call as a short string such as "down 3 10,20".
type logSink struct {
	mu    sync.Mutex
	calls []string
}

func (s *logSink) add(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

func (s *logSink) Down(id int, p tracker.Point) { s.add("down %d %g,%g", id, p.X, p.Y) }
func (s *logSink) Move(id int, p tracker.Point) { s.add("move %d %g,%g", id, p.X, p.Y) }
func (s *logSink) Up(id int)                    { s.add("up %d", id) }
func (s *logSink) Resize(w, h float64)          { s.add("resize %gx%g", w, h) }
func (s *logSink) Reset()                       { s.add("reset") }

func (s *logSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *logSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func equalCalls(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
