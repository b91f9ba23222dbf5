// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/GEEKiDoS/polaris-touch-godot/lib/clock"
	"github.com/GEEKiDoS/polaris-touch-godot/lib/config"
)

var (
	// ErrClosed is returned for work abandoned because the transport
	// was closed.
	ErrClosed = errors.New("transport: closed")

	// ErrSendRejected means the ARQ window stayed full for the whole
	// send timeout. The datagram session is rebuilt afterwards.
	ErrSendRejected = errors.New("transport: send rejected, window full")
)

// Link is a connection to one SpiceAPI server.
type Link interface {
	// Host is the endpoint as shown to the user, fixed at construction.
	Host() string

	// Connected reports whether the current session looks alive.
	Connected() bool

	// Latency is the rolling average round trip in milliseconds, or 0
	// when the variant does not measure it or too few samples exist.
	Latency() int

	// GuardConnection starts a reconnect when disconnected and a
	// liveness check when connected. It never blocks, and overlapping
	// calls collapse into a single attempt.
	GuardConnection()

	// Send queues one complete NUL-terminated command. The transport
	// takes ownership of payload. Send never blocks; a command that
	// cannot be delivered is dropped and counted.
	Send(payload []byte)

	// Close stops the worker and releases the socket. It is safe to
	// call more than once.
	Close() error
}

// Compile-time interface checks.
var (
	_ Link = (*Stream)(nil)
	_ Link = (*Datagram)(nil)
)

// Open builds the transport selected by cfg.SpiceAPI.Transport.
func Open(cfg *config.Config, logger *slog.Logger, metrics *Metrics) (Link, error) {
	spice := cfg.SpiceAPI
	switch spice.Transport {
	case config.TransportStream:
		return NewStream(StreamOptions{
			Host:           spice.Host,
			Port:           spice.Port,
			SendTimeout:    cfg.Stream.SendTimeout.Std(),
			ConnectTimeout: cfg.Stream.ConnectTimeout.Std(),
			Logger:         logger,
			Metrics:        metrics,
		})
	case config.TransportDatagram:
		return NewDatagram(DatagramOptions{
			Host:             spice.Host,
			Port:             spice.Port,
			Password:         spice.Password,
			PollInterval:     cfg.Datagram.PollInterval.Std(),
			SessionTimeout:   cfg.Datagram.SessionTimeout.Std(),
			BacklogLimit:     cfg.Datagram.BacklogLimit,
			RebuildDelay:     cfg.Datagram.RebuildDelay.Std(),
			SendTimeout:      cfg.Datagram.SendTimeout.Std(),
			ResponseAttempts: cfg.Datagram.ResponseAttempts,
			Conversation:     cfg.Datagram.Conversation,
			Clock:            clock.Real(),
			Logger:           logger,
			Metrics:          metrics,
		})
	default:
		return nil, fmt.Errorf("transport: unknown kind %q", spice.Transport)
	}
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
