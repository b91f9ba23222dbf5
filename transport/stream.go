// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GEEKiDoS/polaris-touch-godot/lib/netutil"
)

const (
	defaultStreamSendTimeout    = 100 * time.Millisecond
	defaultStreamConnectTimeout = 3 * time.Second

	// livenessReadTimeout bounds the liveness read. The server only ever
	// writes replies, so the read either drains them, times out, or
	// finds EOF.
	livenessReadTimeout = time.Millisecond

	// livenessDrainLimit caps how many buffered replies one liveness check reads.
	livenessDrainLimit = 64
)

// StreamOptions configures a Stream.
type StreamOptions struct {
	Host string
	Port uint16

	// SendTimeout is the write deadline for one command. A write that
	// misses it drops the connection. Default 100ms.
	SendTimeout time.Duration

	// ConnectTimeout bounds one connection attempt. Default 3s.
	ConnectTimeout time.Duration

	// QueueCapacity bounds pending commands. Default 256.
	QueueCapacity int

	Logger  *slog.Logger
	Metrics *Metrics
}

// Stream sends commands over a plain TCP connection with no framing
// beyond the NUL terminator. Replies from the server are never parsed;
// the liveness check discards them.
type Stream struct {
	host    string
	address string
	options StreamOptions
	logger  *slog.Logger
	metrics *Metrics
	dialer  net.Dialer

	queue      *actionQueue
	done       chan struct{}
	workerDone chan struct{}

	// connectContext is cancelled by Close to abandon an in-flight
	// dial.
	connectContext context.Context
	cancelConnect  context.CancelFunc
	dials          sync.WaitGroup

	closeOnce sync.Once
	closed    atomic.Bool
	connected atomic.Bool

	// trying and checking are the non-reentrant guards that collapse
	// overlapping GuardConnection calls.
	trying   atomic.Bool
	checking atomic.Bool

	// Owned by the worker goroutine.
	conn    net.Conn
	scratch []byte
}

// NewStream validates options, starts the worker, and begins the first
// connection attempt in the background.
func NewStream(options StreamOptions) (*Stream, error) {
	if options.Host == "" {
		return nil, errors.New("transport: host is required")
	}
	if options.Port == 0 {
		return nil, errors.New("transport: port is required")
	}
	if options.SendTimeout <= 0 {
		options.SendTimeout = defaultStreamSendTimeout
	}
	if options.ConnectTimeout <= 0 {
		options.ConnectTimeout = defaultStreamConnectTimeout
	}

	address := net.JoinHostPort(options.Host, strconv.Itoa(int(options.Port)))
	s := &Stream{
		host:       address,
		address:    address,
		options:    options,
		metrics:    options.Metrics,
		dialer:     net.Dialer{KeepAlive: 15 * time.Second},
		queue:      newActionQueue(options.QueueCapacity),
		done:       make(chan struct{}),
		workerDone: make(chan struct{}),
		scratch:    make([]byte, 4096),
	}
	s.logger = loggerOrDefault(options.Logger).With("transport", kindStream, "host", address)
	s.connectContext, s.cancelConnect = context.WithCancel(context.Background())
	s.metrics.setConnected(kindStream, false)

	go s.run()
	s.connect()
	return s, nil
}

// Host returns host:port.
func (s *Stream) Host() string { return s.host }

// Connected reports whether a connection is established and has not
// failed a write or liveness check.
func (s *Stream) Connected() bool { return s.connected.Load() }

// Latency is always 0; the stream transport does not wait for replies.
func (s *Stream) Latency() int { return 0 }

// GuardConnection reconnects when disconnected and checks the socket
// for liveness when connected.
func (s *Stream) GuardConnection() {
	if s.closed.Load() {
		return
	}
	if !s.connected.Load() {
		s.connect()
		return
	}
	if !s.checking.CompareAndSwap(false, true) {
		return
	}
	s.queue.push(action{
		run: func() error {
			defer s.checking.Store(false)
			return s.checkAlive()
		},
		discard: func() { s.checking.Store(false) },
	})
}

// Send queues payload for the worker. Commands queued while
// disconnected are dropped when their turn comes.
func (s *Stream) Send(payload []byte) {
	if s.closed.Load() {
		s.metrics.dropped(kindStream, dropDiscarded)
		return
	}
	if !s.queue.push(action{
		run:     func() error { return s.write(payload) },
		discard: func() { s.metrics.dropped(kindStream, dropDiscarded) },
	}) {
		s.logger.Debug("send queue full, command dropped")
	}
}

// Close stops the worker, abandons any dial in progress, and closes the
// connection.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancelConnect()
		close(s.done)
		<-s.workerDone
		s.dials.Wait()

		// A dial that finished during shutdown may have queued its
		// connection; discarding it closes the socket.
		s.queue.clear()
		if s.conn != nil {
			s.conn.Close()
			s.conn = nil
		}
		s.setConnected(false)
	})
	return nil
}

func (s *Stream) run() {
	defer close(s.workerDone)
	for {
		select {
		case <-s.done:
			return
		case next := <-s.queue.pending:
			if err := next.run(); err != nil {
				s.logger.Debug("stream action failed", "error", err)
			}
		}
	}
}

// connect dials in its own goroutine and hands a successful connection
// to the worker. Only one dial is ever in flight.
func (s *Stream) connect() {
	if !s.trying.CompareAndSwap(false, true) {
		return
	}
	s.metrics.connectAttempt(kindStream)
	s.dials.Add(1)
	go func() {
		defer s.dials.Done()

		ctx, cancel := context.WithTimeout(s.connectContext, s.options.ConnectTimeout)
		defer cancel()
		conn, err := s.dialer.DialContext(ctx, "tcp", s.address)
		if err != nil {
			s.trying.Store(false)
			if s.connectContext.Err() != nil {
				return
			}
			if netutil.IsExpectedCloseError(err) || netutil.IsTimeout(err) {
				s.logger.Debug("connect to SpiceAPI failed", "error", err)
			} else {
				s.logger.Warn("connect to SpiceAPI failed", "error", err)
			}
			return
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			tcp.SetNoDelay(true)
			tcp.SetKeepAlive(true)
		}

		s.queue.push(action{
			run: func() error {
				s.adopt(conn)
				return nil
			},
			discard: func() {
				conn.Close()
				s.trying.Store(false)
			},
		})
	}()
}

// adopt installs a freshly dialed connection. Runs on the worker.
func (s *Stream) adopt(conn net.Conn) {
	defer s.trying.Store(false)
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	s.setConnected(true)
}

// write sends one command. Runs on the worker.
func (s *Stream) write(payload []byte) error {
	if s.conn == nil {
		s.metrics.dropped(kindStream, dropDisconnected)
		return nil
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.options.SendTimeout)); err != nil {
		s.metrics.dropped(kindStream, dropFailed)
		s.disconnect(err)
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if _, err := s.conn.Write(payload); err != nil {
		// A partial write leaves a torn command on the stream, so the
		// connection cannot be reused.
		s.metrics.dropped(kindStream, dropFailed)
		s.disconnect(err)
		return fmt.Errorf("writing command: %w", err)
	}
	s.metrics.sent(kindStream)
	return nil
}

// checkAlive drains pending replies with a short read deadline. EOF or a
// reset means the server is gone. Runs on the worker.
func (s *Stream) checkAlive() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(livenessReadTimeout)); err != nil {
		s.disconnect(err)
		return fmt.Errorf("setting read deadline: %w", err)
	}
	for range livenessDrainLimit {
		if _, err := s.conn.Read(s.scratch); err != nil {
			if netutil.IsTimeout(err) {
				return nil
			}
			s.disconnect(err)
			return fmt.Errorf("checking connection: %w", err)
		}
	}
	return nil
}

// disconnect closes the current connection after a failure. The next
// GuardConnection reconnects. Runs on the worker.
func (s *Stream) disconnect(cause error) {
	if s.conn == nil {
		return
	}
	s.conn.Close()
	s.conn = nil
	s.setConnected(false)
	if netutil.IsExpectedCloseError(cause) || netutil.IsTimeout(cause) {
		s.logger.Info("disconnected from SpiceAPI", "error", cause)
	} else {
		s.logger.Warn("SpiceAPI connection failed", "error", cause)
	}
}

func (s *Stream) setConnected(connected bool) {
	if s.connected.Swap(connected) == connected {
		return
	}
	s.metrics.setConnected(kindStream, connected)
	if connected {
		s.logger.Info("connected to SpiceAPI")
	}
}
