// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec fixes the CBOR configuration used for touch trace
// recordings.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2), so a
// replayed trace re-recorded with the same events is byte-identical.
// Decoding ignores unknown fields so older players can read traces
// that carry newer fields. Consumers import this package rather than
// github.com/fxamacker/cbor/v2 directly.
package codec
