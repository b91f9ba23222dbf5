// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package keystream

import (
	"crypto/rc4"
	"errors"
	"fmt"
)

// MaxKeyLength is the longest key RC4 accepts. Longer passwords are
// truncated; key scheduling never reads past this many bytes.
const MaxKeyLength = 256

// ErrEmptyKey is returned by New for an empty password.
var ErrEmptyKey = errors.New("keystream: empty key")

// Cipher is an RC4 keystream that can be rewound to its initial
// permutation. Not safe for concurrent use; the owning transport worker
// is its only user.
type Cipher struct {
	key    []byte
	stream *rc4.Cipher
}

// New derives a Cipher from password. The first MaxKeyLength password
// bytes are used verbatim as the RC4 key.
func New(password string) (*Cipher, error) {
	if password == "" {
		return nil, ErrEmptyKey
	}
	c := &Cipher{key: []byte(password[:min(len(password), MaxKeyLength)])}
	if err := c.derive(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reset rewinds the keystream to the permutation derived from the key
// and zeroes both walk indices.
func (c *Cipher) Reset() {
	if c == nil {
		return
	}
	// The key was accepted once already, so derive cannot fail here.
	_ = c.derive()
}

// Crypt XORs data in place with the next len(data) keystream bytes.
func (c *Cipher) Crypt(data []byte) {
	if c == nil || len(data) == 0 {
		return
	}
	c.stream.XORKeyStream(data, data)
}

func (c *Cipher) derive() error {
	stream, err := rc4.NewCipher(c.key)
	if err != nil {
		return fmt.Errorf("keystream: %w", err)
	}
	c.stream = stream
	return nil
}
