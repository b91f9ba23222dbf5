// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

// Polaris-bridge turns a touch surface into a Polaris Chord controller
// for a SpiceAPI server. Touch input arrives over a WebSocket, from a
// Linux multitouch device, or from a recorded trace; lane buttons and
// fader values are sent to the server over TCP or over UDP with ARQ and
// optional RC4 obfuscation.
//
// Configuration comes from a YAML or JSONC file (--config, or the
// POLARIS_CONFIG environment variable) with flags overriding individual
// fields. SIGINT or SIGTERM shuts the bridge down.
package main
