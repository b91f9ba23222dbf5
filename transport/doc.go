// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries encoded SpiceAPI commands to the remote
// control server.
//
// [Link] is the capability both variants implement. [Stream] writes
// NUL-terminated commands to a plain TCP connection. [Datagram] frames
// them with a KCP session (lib/arq) over UDP, optionally obfuscated with
// RC4 (lib/keystream), and waits briefly for each reply to measure
// round-trip latency.
//
// Each transport owns exactly one worker goroutine. The worker is the
// only code that touches the socket, the ARQ session, or the cipher, so
// none of that state is locked. Callers hand the worker deferred actions
// through a bounded queue: Send never blocks and never returns an error.
// Failures are visible only through Connected, Latency, the log, and
// the Prometheus counters in [Metrics].
//
// Healing is periodic rather than immediate. The stream transport
// reconnects when the caller's guard ticker invokes GuardConnection
// while disconnected. The datagram worker rebuilds its whole session
// (socket, ARQ instance, and cipher) whenever no datagram has arrived
// for the session timeout or the unacknowledged backlog grows past its
// limit.
package transport
