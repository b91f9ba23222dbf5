// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

// Package arq adapts the KCP selective-repeat ARQ engine from
// github.com/xtaci/kcp-go/v5 to the narrow contract the datagram
// transport relies on.
//
// A [Session] never touches a socket. The owner feeds received
// datagrams to [Session.Input], pumps [Session.Update] on a short
// cadence, and transmits whatever the session hands to its output
// callback. [Session.Send] refuses payloads with [ErrWindowFull] once
// the unacknowledged backlog reaches the configured window, so a
// stalled peer surfaces as back-pressure instead of unbounded memory.
//
// Sessions are not safe for concurrent use. The transport worker that
// owns the socket owns the session too.
package arq
