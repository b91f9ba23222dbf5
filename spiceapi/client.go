// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package spiceapi

import (
	"log/slog"

	"github.com/GEEKiDoS/polaris-touch-godot/lib/config"
	"github.com/GEEKiDoS/polaris-touch-godot/transport"
)

// Client is the controller's view of one SpiceAPI connection. The Send
// methods must be called from a single goroutine; the observables may
// be read from anywhere.
type Client struct {
	link    transport.Link
	encoder *Encoder
	logger  *slog.Logger
}

// NewClient wraps link with a fresh Encoder for lanes buttons.
func NewClient(link transport.Link, lanes int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{link: link, encoder: NewEncoder(lanes), logger: logger}
}

// Dial opens the configured transport and wraps it in a Client.
func Dial(cfg *config.Config, logger *slog.Logger, metrics *transport.Metrics) (*Client, error) {
	link, err := transport.Open(cfg, logger, metrics)
	if err != nil {
		return nil, err
	}
	return NewClient(link, cfg.Controller.Lanes, logger), nil
}

// SpiceHost is the endpoint as shown to the user.
func (c *Client) SpiceHost() string { return c.link.Host() }

// Connected reports the transport's session health.
func (c *Client) Connected() bool { return c.link.Connected() }

// Latency is the rolling round trip in milliseconds (datagram only).
func (c *Client) Latency() int { return c.link.Latency() }

// Lanes returns the number of button lanes the client encodes.
func (c *Client) Lanes() int { return c.encoder.Lanes() }

// GuardConnection reconnects or checks liveness; see [transport.Link].
func (c *Client) GuardConnection() { c.link.GuardConnection() }

// SendButtonsState sends lane states that changed since the last send,
// or all of them when delta is false. Nothing is sent when nothing
// changed. Failures are logged, never returned.
func (c *Client) SendButtonsState(states []bool, delta bool) {
	command, err := c.encoder.Buttons(states, delta)
	if err != nil {
		c.logger.Warn("button state not sent", "error", err)
		return
	}
	c.send(command)
}

// SendAnalogsState sends fader positions that changed since the last
// send, or both when delta is false.
func (c *Client) SendAnalogsState(left, right float64, delta bool) {
	c.send(c.encoder.Analogs(left, right, delta))
}

// Close closes the transport.
func (c *Client) Close() error { return c.link.Close() }

func (c *Client) send(command *Command) {
	if command == nil {
		return
	}
	payload, err := command.Marshal()
	if err != nil {
		c.logger.Warn("command not sent", "error", err)
		return
	}
	c.link.Send(payload)
}
