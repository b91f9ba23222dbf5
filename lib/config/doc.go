// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the immutable configuration snapshot for the
// touch bridge.
//
// A [Config] is read once from a single file named either by the
// POLARIS_CONFIG environment variable ([Load]) or a --config flag
// ([LoadFile]). YAML (.yaml, .yml) is parsed with gopkg.in/yaml.v3 and
// JSON with comments (.json, .jsonc) with github.com/tidwall/jsonc.
// Fields missing from the file keep the values from [Default], and the
// result is checked by [Config.Validate] before it is returned.
//
// Nothing watches the file. Changing the SpiceAPI endpoint or transport
// means building a new transport from a new Config.
package config
