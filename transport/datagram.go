// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GEEKiDoS/polaris-touch-godot/lib/arq"
	"github.com/GEEKiDoS/polaris-touch-godot/lib/clock"
	"github.com/GEEKiDoS/polaris-touch-godot/lib/keystream"
	"github.com/GEEKiDoS/polaris-touch-godot/lib/netutil"
)

const (
	defaultPollInterval     = time.Millisecond
	defaultSessionTimeout   = 2 * time.Second
	defaultBacklogLimit     = 100
	defaultRebuildDelay     = time.Second
	defaultDatagramTimeout  = 50 * time.Millisecond
	defaultResponseAttempts = 10

	// Window-full retry backoff bounds.
	minSendBackoff = 100 * time.Microsecond
	maxSendBackoff = 5 * time.Millisecond

	// minResponseWindow covers one flush interval on each side of the
	// link, so a reply is not given up on before either peer has flushed.
	minResponseWindow = 2 * arq.DefaultInterval * time.Millisecond

	datagramBufferSize = 4096
)

var (
	// errNoResponse ends a send whose reply did not arrive within the
	// response window. The command stays in the ARQ session and the
	// worker holds the queue until the reply is read.
	errNoResponse = errors.New("transport: no response from SpiceAPI")

	errNoSession = errors.New("transport: no datagram session")
)

// DatagramOptions configures a Datagram transport.
type DatagramOptions struct {
	// Host must be an IP literal; no name resolution is done.
	Host string
	Port uint16

	// Password is the RC4 key. Empty disables obfuscation.
	Password string

	// PollInterval is the socket read wait per worker iteration and per
	// response attempt. Default 1ms.
	PollInterval time.Duration

	// SessionTimeout is how long the session may go without receiving
	// a datagram before it is rebuilt. Default 2s.
	SessionTimeout time.Duration

	// BacklogLimit is the unacknowledged segment count above which the
	// session is rebuilt. Must stay below the ARQ window. Default 100.
	BacklogLimit int

	// RebuildDelay is the pause before a rebuilt session is opened.
	// Default 1s.
	RebuildDelay time.Duration

	// SendTimeout bounds the wait for ARQ window space. Default 50ms.
	SendTimeout time.Duration

	// ResponseAttempts is the minimum number of poll intervals to wait
	// for a reply after each send. The wait also lasts at least two ARQ
	// flush intervals. Default 10.
	ResponseAttempts int

	// Conversation is the KCP conversation id. Default 573.
	Conversation uint32

	// QueueCapacity bounds pending commands. Default 256.
	QueueCapacity int

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *Metrics
}

func (o DatagramOptions) withDefaults() DatagramOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.SessionTimeout <= 0 {
		o.SessionTimeout = defaultSessionTimeout
	}
	if o.BacklogLimit <= 0 {
		o.BacklogLimit = defaultBacklogLimit
	}
	if o.RebuildDelay <= 0 {
		o.RebuildDelay = defaultRebuildDelay
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = defaultDatagramTimeout
	}
	if o.ResponseAttempts <= 0 {
		o.ResponseAttempts = defaultResponseAttempts
	}
	if o.Conversation == 0 {
		o.Conversation = arq.DefaultConversation
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	return o
}

// Datagram sends commands through a KCP session over UDP. Every
// command waits briefly for the server's reply; the reply's arrival
// keeps the session alive and feeds the latency average.
type Datagram struct {
	host    string
	remote  *net.UDPAddr
	options DatagramOptions
	clock   clock.Clock
	logger  *slog.Logger
	metrics *Metrics

	queue      *actionQueue
	done       chan struct{}
	workerDone chan struct{}

	closeOnce sync.Once
	closed    atomic.Bool
	connected atomic.Bool
	guarding  atomic.Bool
	latency   latencyWindow

	// Owned by the worker goroutine once it starts.
	socket     *net.UDPConn
	session    *arq.Session
	cipher     *keystream.Cipher
	lastActive time.Time
	datagram   []byte
	message    []byte

	// unanswered counts commands whose reply has not been read yet.
	// Commands and replies share one keystream, so no command is
	// obfuscated while a reply is outstanding.
	unanswered int

	// broken is set when a send fails in a way that leaves the session
	// unusable. It is the rebuild reason.
	broken string
}

// NewDatagram validates options, opens the first session, and starts
// the worker. A host that is not an IP literal fails here and is never
// retried.
func NewDatagram(options DatagramOptions) (*Datagram, error) {
	d, err := newDatagram(options)
	if err != nil {
		return nil, err
	}
	go d.run()
	return d, nil
}

// newDatagram builds the transport and its first session without
// starting the worker.
func newDatagram(options DatagramOptions) (*Datagram, error) {
	address, err := netip.ParseAddr(options.Host)
	if err != nil {
		return nil, fmt.Errorf("transport: datagram host %q must be an IP address: %w", options.Host, err)
	}
	if options.Port == 0 {
		return nil, errors.New("transport: port is required")
	}
	options = options.withDefaults()
	if options.BacklogLimit >= arq.DefaultWindow {
		return nil, fmt.Errorf("transport: backlog limit %d must be below the ARQ window of %d", options.BacklogLimit, arq.DefaultWindow)
	}

	endpoint := netip.AddrPortFrom(address.Unmap(), options.Port)
	d := &Datagram{
		host:       endpoint.String(),
		remote:     net.UDPAddrFromAddrPort(endpoint),
		options:    options,
		clock:      options.Clock,
		metrics:    options.Metrics,
		queue:      newActionQueue(options.QueueCapacity),
		done:       make(chan struct{}),
		workerDone: make(chan struct{}),
		datagram:   make([]byte, datagramBufferSize),
		message:    make([]byte, datagramBufferSize),
	}
	d.logger = loggerOrDefault(options.Logger).With("transport", kindDatagram, "host", d.host)

	if options.Password != "" {
		d.cipher, err = keystream.New(options.Password)
		if err != nil {
			return nil, fmt.Errorf("transport: %w", err)
		}
	}
	if err := d.openSession(); err != nil {
		return nil, err
	}
	d.metrics.setConnected(kindDatagram, false)
	return d, nil
}

// Host returns ip:port.
func (d *Datagram) Host() string { return d.host }

// Connected reports whether a datagram has arrived since the session
// was opened.
func (d *Datagram) Connected() bool { return d.connected.Load() }

// Latency returns the last published round-trip average in
// milliseconds.
func (d *Datagram) Latency() int { return d.latency.milliseconds() }

// GuardConnection queues an empty command. The reply keeps a live
// session from timing out and gives a fresh session its first round
// trip. At most one is pending at a time.
func (d *Datagram) GuardConnection() {
	if d.closed.Load() || !d.guarding.CompareAndSwap(false, true) {
		return
	}
	d.queue.push(action{
		run: func() error {
			d.guarding.Store(false)
			return d.transmit([]byte{0})
		},
		discard: func() { d.guarding.Store(false) },
	})
}

// Send queues payload for the worker, which obfuscates it in place.
func (d *Datagram) Send(payload []byte) {
	if d.closed.Load() {
		d.metrics.dropped(kindDatagram, dropDiscarded)
		return
	}
	if !d.queue.push(action{
		run:     func() error { return d.transmit(payload) },
		discard: func() { d.metrics.dropped(kindDatagram, dropDiscarded) },
	}) {
		d.logger.Debug("send queue full, command dropped")
	}
}

// Close stops the worker, which may be mid-send, then releases the
// socket and session.
func (d *Datagram) Close() error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		<-d.workerDone
		d.queue.clear()
		d.closeSession()
		d.setConnected(false)
	})
	return nil
}

func (d *Datagram) run() {
	defer close(d.workerDone)
	for {
		select {
		case <-d.done:
			return
		default:
		}

		if d.session == nil {
			if !d.rebuild("unavailable") {
				return
			}
			continue
		}

		d.pump(d.options.PollInterval)
		d.session.Update()
		d.runPending()

		if reason := d.deathReason(); reason != "" {
			if !d.rebuild(reason) {
				return
			}
		}
	}
}

// runPending executes the actions queued at the start of the call.
// While a reply is outstanding the rest of the queue waits for a later
// iteration. A failed send discards the rest of the queue.
func (d *Datagram) runPending() {
	for range len(d.queue.pending) {
		if !d.readReplies() {
			return
		}
		next := <-d.queue.pending
		err := next.run()
		switch {
		case err == nil:
		case errors.Is(err, errNoResponse):
			d.logger.Debug("reply outstanding, holding queue", "queued", len(d.queue.pending))
			return
		default:
			discarded := d.queue.clear()
			d.logger.Debug("send failed, queue discarded", "error", err, "discarded", discarded)
			return
		}
	}
}

// deathReason returns why the session should be rebuilt, or "".
func (d *Datagram) deathReason() string {
	if d.session == nil {
		return "unavailable"
	}
	if d.broken != "" {
		return d.broken
	}
	if d.clock.Now().Sub(d.lastActive) > d.options.SessionTimeout {
		return "timeout"
	}
	if d.session.Backlog() > d.options.BacklogLimit {
		return "backlog"
	}
	return ""
}

// rebuild waits out the rebuild delay and replaces the socket, ARQ
// session, and cipher state wholesale. Returns false if the transport
// closed while waiting.
func (d *Datagram) rebuild(reason string) bool {
	if d.connected.Load() {
		d.logger.Info("disconnected from SpiceAPI", "reason", reason)
	} else {
		d.logger.Debug("rebuilding datagram session", "reason", reason)
	}
	d.setConnected(false)

	select {
	case <-d.done:
		return false
	case <-d.clock.After(d.options.RebuildDelay):
	}

	if err := d.openSession(); err != nil {
		d.logger.Warn("opening datagram session failed", "error", err)
	}
	if discarded := d.queue.clear(); discarded > 0 {
		d.logger.Debug("discarded commands queued for the old session", "discarded", discarded)
	}
	d.metrics.rebuilt(reason)
	return true
}

// openSession replaces any existing session with a new socket, a new
// ARQ instance, and a rewound cipher. The new session counts as active
// from now so it gets a full timeout to make its first round trip.
func (d *Datagram) openSession() error {
	d.closeSession()

	socket, err := net.DialUDP("udp", nil, d.remote)
	if err != nil {
		return fmt.Errorf("transport: opening datagram socket: %w", err)
	}
	d.socket = socket
	d.session = arq.New(arq.Options{Conversation: d.options.Conversation}, d.output)
	d.cipher.Reset()
	d.lastActive = d.clock.Now()
	d.unanswered = 0
	d.broken = ""
	return nil
}

func (d *Datagram) closeSession() {
	if d.session != nil {
		d.session.Close()
		d.session = nil
	}
	if d.socket != nil {
		d.socket.Close()
		d.socket = nil
	}
}

// output is the ARQ output callback. It runs synchronously inside
// session calls made by the worker.
func (d *Datagram) output(datagram []byte) {
	if d.socket == nil {
		return
	}
	if _, err := d.socket.Write(datagram); err != nil {
		if netutil.IsExpectedCloseError(err) || netutil.IsTransient(err) {
			d.logger.Debug("datagram write failed", "error", err)
			return
		}
		d.logger.Warn("datagram write failed", "error", err)
	}
}

// pump waits up to wait for one datagram and feeds it to the session.
// Any datagram from the server, even one the session rejects, counts
// as activity.
func (d *Datagram) pump(wait time.Duration) bool {
	if err := d.socket.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return false
	}
	n, err := d.socket.Read(d.datagram)
	if err != nil {
		if !netutil.IsTransient(err) && !netutil.IsExpectedCloseError(err) {
			d.logger.Warn("datagram read failed", "error", err)
		}
		return false
	}

	d.lastActive = d.clock.Now()
	d.setConnected(true)
	if err := d.session.Input(d.datagram[:n]); err != nil {
		d.logger.Debug("datagram rejected by session", "error", err)
	}
	return true
}

// transmit obfuscates payload, submits it to the session, and waits
// for the reply. Runs on the worker.
func (d *Datagram) transmit(payload []byte) error {
	if d.session == nil {
		d.metrics.dropped(kindDatagram, dropDisconnected)
		return errNoSession
	}

	started := time.Now()
	if err := d.submit(payload); err != nil {
		d.metrics.dropped(kindDatagram, dropFailed)
		if !errors.Is(err, ErrClosed) {
			d.broken = "rejected"
		}
		return err
	}
	d.metrics.sent(kindDatagram)
	d.unanswered++

	if !d.awaitReplies() {
		return errNoResponse
	}
	if mean, published := d.latency.add(time.Since(started)); published {
		d.metrics.setLatency(mean.Milliseconds())
		d.logger.Debug("latency updated", "latency_ms", mean.Milliseconds())
	}
	return nil
}

// submit waits for ARQ window space, pumping the socket with
// exponential backoff, then obfuscates frame and hands it to the
// session. The keystream only advances once the window has room.
func (d *Datagram) submit(frame []byte) error {
	deadline := time.Now().Add(d.options.SendTimeout)
	backoff := minSendBackoff
	for d.session.Backlog() >= d.session.Window() {
		if time.Now().After(deadline) {
			return ErrSendRejected
		}
		select {
		case <-d.done:
			return ErrClosed
		default:
		}

		d.pump(backoff)
		d.session.Update()
		backoff = min(backoff*2, maxSendBackoff)
	}

	d.cipher.Crypt(frame)
	if err := d.session.Send(frame); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	d.session.Update()
	return nil
}

// awaitReplies polls until every outstanding reply has been read or the
// response window closes. The session is updated on every attempt so
// retransmissions and acknowledgements keep flowing.
func (d *Datagram) awaitReplies() bool {
	started := time.Now()
	for attempt := 1; ; attempt++ {
		d.pump(d.options.PollInterval)
		d.session.Update()
		if d.readReplies() {
			return true
		}
		if attempt >= d.options.ResponseAttempts && time.Since(started) >= minResponseWindow {
			return false
		}
		select {
		case <-d.done:
			return false
		default:
		}
	}
}

// readReplies deobfuscates every reassembled reply, keeping the
// keystream in step with the server, and reports whether none remain
// outstanding.
func (d *Datagram) readReplies() bool {
	for {
		n, err := d.session.Recv(d.message)
		if err != nil {
			if !errors.Is(err, arq.ErrNoData) {
				// An unreadable reply stalls the session for good.
				d.logger.Debug("unreadable reply", "error", err)
				d.broken = "unreadable"
			}
			return d.unanswered == 0
		}
		d.cipher.Crypt(d.message[:n])
		if d.unanswered > 0 {
			d.unanswered--
		}
	}
}

func (d *Datagram) setConnected(connected bool) {
	if d.connected.Swap(connected) == connected {
		return
	}
	d.metrics.setConnected(kindDatagram, connected)
	if connected {
		d.logger.Info("connected to SpiceAPI")
	}
}
