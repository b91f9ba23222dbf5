// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package spiceapi

import (
	"sync"
	"testing"

	"github.com/GEEKiDoS/polaris-touch-godot/lib/config"
	"github.com/GEEKiDoS/polaris-touch-godot/transport"
)

// recordingLink is an in-memory transport.Link.
type recordingLink struct {
	mu        sync.Mutex
	payloads  []string
	guards    int
	closes    int
	connected bool
}

var _ transport.Link = (*recordingLink)(nil)

func (l *recordingLink) Host() string     { return "10.0.0.2:1337" }
func (l *recordingLink) Connected() bool  { l.mu.Lock(); defer l.mu.Unlock(); return l.connected }
func (l *recordingLink) Latency() int     { return 4 }
func (l *recordingLink) GuardConnection() { l.mu.Lock(); l.guards++; l.mu.Unlock() }
func (l *recordingLink) Close() error     { l.mu.Lock(); l.closes++; l.mu.Unlock(); return nil }

func (l *recordingLink) Send(payload []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.payloads = append(l.payloads, string(payload))
}

func TestClientSendsEncodedCommands(t *testing.T) {
	link := &recordingLink{connected: true}
	client := NewClient(link, 12, nil)

	client.SendButtonsState(lanes(3), true)
	client.SendButtonsState(lanes(3), true)
	client.SendAnalogsState(0.12, 0.87, false)
	client.SendAnalogsState(0.12, 0.87, true)
	client.SendButtonsState(lanes(), true)

	want := []string{
		`{"id":0,"module":"buttons","function":"write","params":[["Button 4",1]]}` + "\x00",
		`{"id":1,"module":"analogs","function":"write","params":[["Fader-L",0.12],["Fader-R",0.87]]}` + "\x00",
		`{"id":2,"module":"buttons","function":"write","params":[["Button 4",0]]}` + "\x00",
	}
	if len(link.payloads) != len(want) {
		t.Fatalf("sent %d payloads, want %d: %q", len(link.payloads), len(want), link.payloads)
	}
	for i := range want {
		if link.payloads[i] != want[i] {
			t.Errorf("payload %d = %q, want %q", i, link.payloads[i], want[i])
		}
	}
}

func TestClientDropsOversizedButtonState(t *testing.T) {
	link := &recordingLink{}
	client := NewClient(link, 4, nil)
	client.SendButtonsState(make([]bool, 5), false)
	if len(link.payloads) != 0 {
		t.Errorf("sent %q for oversized state, want nothing", link.payloads)
	}
}

func TestClientForwardsObservables(t *testing.T) {
	link := &recordingLink{connected: true}
	client := NewClient(link, 12, nil)

	if client.SpiceHost() != "10.0.0.2:1337" {
		t.Errorf("SpiceHost() = %q", client.SpiceHost())
	}
	if !client.Connected() {
		t.Error("Connected() = false")
	}
	if client.Latency() != 4 {
		t.Errorf("Latency() = %d, want 4", client.Latency())
	}
	if client.Lanes() != 12 {
		t.Errorf("Lanes() = %d, want 12", client.Lanes())
	}
	client.GuardConnection()
	client.GuardConnection()
	if link.guards != 2 {
		t.Errorf("guards = %d, want 2", link.guards)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if link.closes != 1 {
		t.Errorf("closes = %d, want 1", link.closes)
	}
}

func TestDialRejectsHostnameForDatagram(t *testing.T) {
	cfg := config.Default()
	cfg.SpiceAPI.Transport = config.TransportDatagram
	cfg.SpiceAPI.Host = "cabinet.local"
	if client, err := Dial(cfg, nil, nil); err == nil {
		client.Close()
		t.Fatal("Dial() with hostname succeeded for datagram transport")
	}
}
