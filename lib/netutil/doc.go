// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies socket errors for the transports.
//
// [IsExpectedCloseError] marks the peer-gone family (EOF, reset, broken
// pipe, refused) that triggers a reconnect or session rebuild.
// [IsTimeout] and [IsTransient] mark the poll-with-deadline and
// would-block family that is swallowed without touching the socket.
package netutil
