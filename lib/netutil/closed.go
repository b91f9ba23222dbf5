// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// IsExpectedCloseError reports whether err is an ordinary way for a
// SpiceAPI connection to end: EOF, a closed socket, a broken pipe, a
// reset, or a refused connection (ICMP port unreachable surfaces as
// ECONNREFUSED on a connected UDP socket). Transports drop the socket
// and reconnect on these without logging them as failures.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET || errno == syscall.ECONNREFUSED
	}
	return false
}

// IsTimeout reports whether err is a deadline expiry. Transports poll
// sockets with short deadlines, so a timeout means "nothing yet", not
// failure.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsTransient reports whether err is a would-block or interrupted
// condition that should be swallowed without tearing down the socket.
func IsTransient(err error) bool {
	if IsTimeout(err) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EAGAIN || errno == syscall.EWOULDBLOCK || errno == syscall.EINTR || errno == syscall.ENOBUFS
	}
	return false
}
