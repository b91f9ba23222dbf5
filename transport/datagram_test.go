// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/GEEKiDoS/polaris-touch-godot/lib/arq"
	"github.com/GEEKiDoS/polaris-touch-godot/lib/clock"
	"github.com/GEEKiDoS/polaris-touch-godot/lib/keystream"
	"github.com/GEEKiDoS/polaris-touch-godot/lib/testutil"
)

// spicePeer is a loopback SpiceAPI server speaking KCP over UDP. Each
// client source address gets its own session and a fresh cipher, the
// way the real server treats a reconnecting client.
type spicePeer struct {
	conn     *net.UDPConn
	password string

	// silent drops all traffic in both directions.
	silent   atomic.Bool
	sessions atomic.Int32

	// received carries decrypted requests without the NUL.
	received chan string
	done     chan struct{}
	finished chan struct{}
}

type peerSession struct {
	session *arq.Session
	cipher  *keystream.Cipher
}

func newSpicePeer(t *testing.T, password string) *spicePeer {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP() error: %v", err)
	}
	peer := &spicePeer{
		conn:     conn,
		password: password,
		received: make(chan string, 1024),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go peer.serve(t)
	t.Cleanup(func() {
		close(peer.done)
		<-peer.finished
		conn.Close()
	})
	return peer
}

func (p *spicePeer) port() uint16 {
	return uint16(p.conn.LocalAddr().(*net.UDPAddr).Port)
}

func (p *spicePeer) serve(t *testing.T) {
	defer close(p.finished)
	sessions := make(map[string]*peerSession)
	datagram := make([]byte, 4096)
	message := make([]byte, 4096)

	for {
		select {
		case <-p.done:
			return
		default:
		}

		p.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
		n, from, err := p.conn.ReadFromUDP(datagram)
		if err == nil && !p.silent.Load() {
			client, ok := sessions[from.String()]
			if !ok {
				client = p.newSession(t, from)
				sessions[from.String()] = client
				p.sessions.Add(1)
			}
			client.session.Input(datagram[:n])
		}

		for _, client := range sessions {
			client.session.Update()
			for {
				n, err := client.session.Recv(message)
				if err != nil {
					break
				}
				request := append([]byte(nil), message[:n]...)
				client.cipher.Crypt(request)
				select {
				case p.received <- strings.TrimSuffix(string(request), "\x00"):
				default:
				}

				reply := []byte(`{"id":0,"errors":[],"data":[]}` + "\x00")
				client.cipher.Crypt(reply)
				client.session.Send(reply)
			}
		}
	}
}

func (p *spicePeer) newSession(t *testing.T, client *net.UDPAddr) *peerSession {
	session := &peerSession{}
	if p.password != "" {
		cipher, err := keystream.New(p.password)
		if err != nil {
			t.Errorf("keystream.New() error: %v", err)
		}
		session.cipher = cipher
	}
	session.session = arq.New(arq.Options{}, func(datagram []byte) {
		if p.silent.Load() {
			return
		}
		p.conn.WriteToUDP(datagram, client)
	})
	return session
}

// waitForRequest skips keepalives and other requests until want arrives.
func (p *spicePeer) waitForRequest(t *testing.T, want string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-p.received:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("request %q never arrived", want)
		}
	}
}

func newTestDatagram(t *testing.T, options DatagramOptions) *Datagram {
	t.Helper()
	if options.Host == "" {
		options.Host = "127.0.0.1"
	}
	datagram, err := NewDatagram(options)
	if err != nil {
		t.Fatalf("NewDatagram() error: %v", err)
	}
	t.Cleanup(func() { datagram.Close() })
	return datagram
}

// connectDatagram guards until the first round trip succeeds.
func connectDatagram(t *testing.T, datagram *Datagram) {
	t.Helper()
	testutil.RequireEventually(t, 5*time.Second, func() bool {
		datagram.GuardConnection()
		return datagram.Connected()
	}, "datagram connect")
}

func TestNewDatagramValidation(t *testing.T) {
	tests := []struct {
		name    string
		options DatagramOptions
	}{
		{"hostname", DatagramOptions{Host: "cabinet.local", Port: 1337}},
		{"empty host", DatagramOptions{Port: 1337}},
		{"zero port", DatagramOptions{Host: "127.0.0.1"}},
		{"backlog at window", DatagramOptions{Host: "127.0.0.1", Port: 1337, BacklogLimit: arq.DefaultWindow}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if datagram, err := NewDatagram(test.options); err == nil {
				datagram.Close()
				t.Fatal("NewDatagram() succeeded, want error")
			}
		})
	}
}

func TestDatagramRoundTrip(t *testing.T) {
	for _, password := range []string{"", "polaris"} {
		t.Run("password="+password, func(t *testing.T) {
			peer := newSpicePeer(t, password)
			datagram := newTestDatagram(t, DatagramOptions{Port: peer.port(), Password: password})

			if want := "127.0.0.1:" + strconv.Itoa(int(peer.port())); datagram.Host() != want {
				t.Errorf("Host() = %q, want %q", datagram.Host(), want)
			}
			connectDatagram(t, datagram)
			peer.waitForRequest(t, "")

			commands := []string{
				`{"id":0,"module":"buttons","function":"write","params":[["Button 1",1],["Button 12",1]]}`,
				`{"id":1,"module":"analogs","function":"write","params":[["Fader-L",0.50],["Fader-R",0.87]]}`,
			}
			for _, command := range commands {
				datagram.Send([]byte(command + "\x00"))
				peer.waitForRequest(t, command)
			}
		})
	}
}

func TestDatagramBurstSurvivesHealthyLink(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	peer := newSpicePeer(t, "polaris")
	datagram := newTestDatagram(t, DatagramOptions{Port: peer.port(), Password: "polaris", Metrics: metrics})
	connectDatagram(t, datagram)

	// Every command only decrypts on the peer if the client kept its
	// keystream in step with the replies.
	commands := make([]string, 20)
	for i := range commands {
		commands[i] = fmt.Sprintf(`{"id":%d,"module":"buttons","function":"write","params":[["Button 1",%d]]}`, i, i%2)
		datagram.Send([]byte(commands[i] + "\x00"))
	}
	for _, command := range commands {
		peer.waitForRequest(t, command)
	}

	for _, reason := range []string{dropDiscarded, dropFailed} {
		if got := promtest.ToFloat64(metrics.commandsDropped.WithLabelValues(kindDatagram, reason)); got != 0 {
			t.Errorf("commands_dropped_total{%s} = %v, want 0", reason, got)
		}
	}
	if !datagram.Connected() {
		t.Error("Connected() = false after burst")
	}
}

func TestDatagramHoldsQueueUntilReplyArrives(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	peer := newSpicePeer(t, "polaris")
	peer.silent.Store(true)
	datagram := newTestDatagram(t, DatagramOptions{
		Port:           peer.port(),
		Password:       "polaris",
		SessionTimeout: time.Minute,
		Metrics:        metrics,
	})

	datagram.Send([]byte("first\x00"))
	datagram.Send([]byte("second\x00"))
	testutil.RequireEventually(t, 5*time.Second, func() bool {
		return promtest.ToFloat64(metrics.commandsSent.WithLabelValues(kindDatagram)) == 1 &&
			len(datagram.queue.pending) == 1
	}, "first command awaiting its reply")

	// The session retransmits the unanswered command once the peer
	// listens again, and the held command follows its reply.
	peer.silent.Store(false)
	peer.waitForRequest(t, "first")
	peer.waitForRequest(t, "second")

	if got := promtest.ToFloat64(metrics.commandsDropped.WithLabelValues(kindDatagram, dropDiscarded)); got != 0 {
		t.Errorf("commands_dropped_total{discarded} = %v, want 0", got)
	}
}

func TestDatagramRejectedSendRebuildsWithoutAdvancingKeystream(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	peer := newSpicePeer(t, "polaris")
	peer.silent.Store(true)
	datagram, err := newDatagram(DatagramOptions{
		Host:        "127.0.0.1",
		Port:        peer.port(),
		Password:    "polaris",
		SendTimeout: 5 * time.Millisecond,
		Metrics:     metrics,
	})
	if err != nil {
		t.Fatalf("newDatagram() error: %v", err)
	}
	defer datagram.closeSession()

	for datagram.session.Backlog() < datagram.session.Window() {
		if err := datagram.session.Send([]byte{0}); err != nil {
			t.Fatalf("Send() error: %v", err)
		}
	}

	payload := []byte("cmd\x00")
	if err := datagram.transmit(payload); !errors.Is(err, ErrSendRejected) {
		t.Fatalf("transmit() error = %v, want ErrSendRejected", err)
	}
	if string(payload) != "cmd\x00" {
		t.Errorf("rejected payload was obfuscated: %q", payload)
	}

	fresh, err := keystream.New("polaris")
	if err != nil {
		t.Fatalf("keystream.New() error: %v", err)
	}
	got, want := []byte("state"), []byte("state")
	datagram.cipher.Crypt(got)
	fresh.Crypt(want)
	if !bytes.Equal(got, want) {
		t.Error("keystream advanced past a rejected send")
	}

	if reason := datagram.deathReason(); reason != "rejected" {
		t.Errorf("deathReason() = %q, want rejected", reason)
	}
	if got := promtest.ToFloat64(metrics.commandsDropped.WithLabelValues(kindDatagram, dropFailed)); got != 1 {
		t.Errorf("commands_dropped_total{failed} = %v, want 1", got)
	}
}

func TestDatagramBacklogRebuildsSession(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	peer := newSpicePeer(t, "")
	peer.silent.Store(true)
	datagram := newTestDatagram(t, DatagramOptions{
		Port:           peer.port(),
		SessionTimeout: time.Minute,
		BacklogLimit:   10,
		RebuildDelay:   10 * time.Millisecond,
		Metrics:        metrics,
	})

	// One oversized command fragments into more unacknowledged segments
	// than the limit allows.
	datagram.Send(append(bytes.Repeat([]byte("a"), 16*arq.DefaultMTU), 0))
	testutil.RequireEventually(t, 5*time.Second, func() bool {
		return promtest.ToFloat64(metrics.sessionRebuilds.WithLabelValues("backlog")) >= 1
	}, "session rebuilt on backlog")

	if got := promtest.ToFloat64(metrics.sessionRebuilds.WithLabelValues("timeout")); got != 0 {
		t.Errorf("session_rebuilds_total{timeout} = %v, want 0", got)
	}
}

func TestDatagramWatchdogRebuildsSession(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	peer := newSpicePeer(t, "polaris")
	datagram := newTestDatagram(t, DatagramOptions{
		Port:           peer.port(),
		Password:       "polaris",
		SessionTimeout: 100 * time.Millisecond,
		RebuildDelay:   10 * time.Millisecond,
		Metrics:        metrics,
	})

	connectDatagram(t, datagram)
	datagram.Send([]byte("before\x00"))
	peer.waitForRequest(t, "before")

	peer.silent.Store(true)
	testutil.RequireEventually(t, 5*time.Second, func() bool {
		return !datagram.Connected()
	}, "watchdog notices silence")
	testutil.RequireEventually(t, 5*time.Second, func() bool {
		return promtest.ToFloat64(metrics.sessionRebuilds.WithLabelValues("timeout")) >= 1
	}, "session rebuilt on timeout")

	peer.silent.Store(false)
	connectDatagram(t, datagram)

	// The peer greets the rebuilt session with a fresh cipher. The
	// command only decrypts if the client rewound its keystream too.
	datagram.Send([]byte("after\x00"))
	peer.waitForRequest(t, "after")
	if peer.sessions.Load() < 2 {
		t.Errorf("peer saw %d sessions, want a new one after rebuild", peer.sessions.Load())
	}
}

func TestDatagramGuardCollapses(t *testing.T) {
	datagram, err := newDatagram(DatagramOptions{Host: "127.0.0.1", Port: 9})
	if err != nil {
		t.Fatalf("newDatagram() error: %v", err)
	}
	defer datagram.closeSession()

	for range 10 {
		datagram.GuardConnection()
	}
	if pending := len(datagram.queue.pending); pending != 1 {
		t.Fatalf("pending actions = %d after repeated guards, want 1", pending)
	}

	// Discarding the keepalive releases the guard.
	datagram.queue.clear()
	datagram.GuardConnection()
	if pending := len(datagram.queue.pending); pending != 1 {
		t.Fatalf("pending actions = %d after clear and guard, want 1", pending)
	}
}

func TestDatagramCloseInterruptsRebuildDelay(t *testing.T) {
	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	datagram, err := NewDatagram(DatagramOptions{
		Host:           "127.0.0.1",
		Port:           9,
		SessionTimeout: time.Second,
		RebuildDelay:   time.Hour,
		Clock:          fake,
	})
	if err != nil {
		t.Fatalf("NewDatagram() error: %v", err)
	}

	fake.Advance(2 * time.Second)
	fake.WaitForTimers(1)

	closed := make(chan struct{})
	go func() {
		datagram.Close()
		close(closed)
	}()
	testutil.RequireClosed(t, closed, 5*time.Second, "Close during rebuild delay")
	if datagram.Connected() {
		t.Error("Connected() = true after Close")
	}
}

func TestDatagramCloseIsIdempotent(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	datagram := newTestDatagram(t, DatagramOptions{Port: 9, Metrics: metrics})

	if err := datagram.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := datagram.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}

	datagram.Send([]byte("late\x00"))
	datagram.GuardConnection()
	if got := promtest.ToFloat64(metrics.commandsDropped.WithLabelValues(kindDatagram, dropDiscarded)); got != 1 {
		t.Errorf("commands_dropped_total{discarded} = %v, want 1", got)
	}
}
