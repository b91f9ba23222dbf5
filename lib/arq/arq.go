// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package arq

import (
	"errors"
	"fmt"

	kcp "github.com/xtaci/kcp-go/v5"
)

// Defaults tuned for small, latency-sensitive controller commands.
const (
	DefaultConversation = 573
	DefaultWindow       = 128
	DefaultMTU          = 1400

	// DefaultInterval is the internal flush interval in milliseconds.
	// KCP clamps anything below 10.
	DefaultInterval = 10

	// fastResend retransmits a segment after it has been skipped by
	// this many later ACKs.
	fastResend = 2
)

var (
	// ErrWindowFull means the send backlog has reached the window. The
	// caller should pump Update and retry later.
	ErrWindowFull = errors.New("arq: send window full")

	// ErrNoData means no complete message is ready for Recv.
	ErrNoData = errors.New("arq: no data")

	// ErrEmptyPayload is returned by Send for a zero-length payload.
	ErrEmptyPayload = errors.New("arq: empty payload")
)

// Options configures a Session. Zero fields take the defaults above.
type Options struct {
	// Conversation identifies the session on the wire. Both peers must
	// agree on it.
	Conversation uint32

	// Window is the send and receive window in segments.
	Window int

	// MTU is the largest datagram the session emits.
	MTU int

	// Interval is the flush interval in milliseconds.
	Interval int
}

func (o Options) withDefaults() Options {
	if o.Conversation == 0 {
		o.Conversation = DefaultConversation
	}
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.MTU <= 0 {
		o.MTU = DefaultMTU
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	return o
}

// Session is one ARQ protocol instance.
type Session struct {
	engine *kcp.KCP
	window int
}

// New creates a Session in no-delay mode with congestion control
// disabled. output is called synchronously from Input, Update, and
// Send with each datagram to transmit; the slice is only valid for the
// duration of the call.
func New(options Options, output func(datagram []byte)) *Session {
	options = options.withDefaults()

	engine := kcp.NewKCP(options.Conversation, func(buf []byte, size int) {
		output(buf[:size])
	})
	engine.NoDelay(1, options.Interval, fastResend, 1)
	engine.WndSize(options.Window, options.Window)
	engine.SetMtu(options.MTU)

	return &Session{engine: engine, window: options.Window}
}

// Input feeds one received datagram into the reassembly and
// acknowledgement machinery.
func (s *Session) Input(datagram []byte) error {
	if code := s.engine.Input(datagram, true, false); code < 0 {
		return fmt.Errorf("arq: rejected datagram of %d bytes (code %d)", len(datagram), code)
	}
	return nil
}

// Update advances retransmission timers and flushes pending segments
// and acknowledgements through the output callback.
func (s *Session) Update() {
	s.engine.Update()
}

// Send frames payload for transmission. The payload is copied.
func (s *Session) Send(payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if s.engine.WaitSnd() >= s.window {
		return ErrWindowFull
	}
	if code := s.engine.Send(payload); code < 0 {
		return fmt.Errorf("arq: payload of %d bytes rejected (code %d)", len(payload), code)
	}
	return nil
}

// Recv copies the next reassembled, in-order message into buffer and
// returns its length. Returns ErrNoData when nothing is ready.
func (s *Session) Recv(buffer []byte) (int, error) {
	n := s.engine.Recv(buffer)
	switch {
	case n >= 0:
		return n, nil
	case n == -1:
		return 0, ErrNoData
	default:
		return 0, fmt.Errorf("arq: next message exceeds %d byte buffer", len(buffer))
	}
}

// Backlog returns the number of segments queued or awaiting
// acknowledgement.
func (s *Session) Backlog() int {
	return s.engine.WaitSnd()
}

// Window returns the send window in segments. Send fails with
// ErrWindowFull once Backlog reaches it.
func (s *Session) Window() int {
	return s.window
}

// Close releases the engine's transmit buffers. The session must not
// be used afterwards.
func (s *Session) Close() {
	s.engine.ReleaseTX()
}
