// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

// Package keystream obfuscates SpiceAPI payloads with an RC4 keystream
// derived from a pre-shared password.
//
// A [Cipher] is stateful: every byte passed through [Cipher.Crypt]
// advances the keystream, and both peers must process the same bytes in
// the same order to stay in step. [Cipher.Reset] rewinds to the state
// derived from the key, which the datagram transport does whenever it
// rebuilds its session. Encryption and decryption are the same XOR
// operation.
//
// A nil *Cipher is valid and leaves data untouched, which is how an
// empty password disables obfuscation.
//
// RC4 here is obfuscation matching the server, not confidentiality.
package keystream
