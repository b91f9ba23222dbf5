// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package keystream

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func mustNew(t *testing.T, password string) *Cipher {
	t.Helper()
	c, err := New(password)
	if err != nil {
		t.Fatalf("New(%q) error: %v", password, err)
	}
	return c
}

func TestCryptKnownVector(t *testing.T) {
	// Classic RC4 test vector: key "Key", plaintext "Plaintext".
	c := mustNew(t, "Key")
	data := []byte("Plaintext")
	c.Crypt(data)

	if got, want := hex.EncodeToString(data), "bbf316e8d940af0ad3"; got != want {
		t.Errorf("Crypt() = %s, want %s", got, want)
	}
}

func TestCryptRoundTrip(t *testing.T) {
	payload := []byte(`{"id":0,"module":"buttons","function":"write","params":[["Button 4",1]]}` + "\x00")

	encrypt := mustNew(t, "secret")
	decrypt := mustNew(t, "secret")

	data := bytes.Clone(payload)
	encrypt.Crypt(data)
	if bytes.Equal(data, payload) {
		t.Fatal("Crypt() left payload unchanged")
	}
	decrypt.Crypt(data)
	if !bytes.Equal(data, payload) {
		t.Errorf("round trip = %q, want %q", data, payload)
	}
}

func TestResetRewindsKeystream(t *testing.T) {
	c := mustNew(t, "secret")
	first := []byte("first message")
	c.Crypt(first)

	c.Reset()
	again := []byte("first message")
	c.Crypt(again)

	if !bytes.Equal(first, again) {
		t.Errorf("after Reset ciphertext = %x, want %x", again, first)
	}
}

func TestStaleKeystreamCannotDecryptAfterReset(t *testing.T) {
	sender := mustNew(t, "secret")
	receiver := mustNew(t, "secret")

	before := []byte("message before the session rebuild")
	sender.Crypt(before)
	receiver.Crypt(before)

	// The sender rebuilds its session; the receiver keeps its position.
	sender.Reset()
	plaintext := []byte("message after the session rebuild")
	after := bytes.Clone(plaintext)
	sender.Crypt(after)

	stale := bytes.Clone(after)
	receiver.Crypt(stale)
	if bytes.Equal(stale, plaintext) {
		t.Fatal("stale keystream recovered a post-reset message")
	}

	receiver.Reset()
	receiver.Crypt(after)
	if !bytes.Equal(after, plaintext) {
		t.Errorf("reset receiver decrypted %q, want %q", after, plaintext)
	}
}

func TestCryptIsStreaming(t *testing.T) {
	whole := mustNew(t, "k")
	split := mustNew(t, "k")

	data := []byte("0123456789abcdef")
	expected := bytes.Clone(data)
	whole.Crypt(expected)

	got := bytes.Clone(data)
	split.Crypt(got[:5])
	split.Crypt(got[5:])
	if !bytes.Equal(got, expected) {
		t.Errorf("split Crypt = %x, want %x", got, expected)
	}
}

func TestNilCipherIsIdentity(t *testing.T) {
	var c *Cipher
	data := []byte("plain")
	c.Crypt(data)
	c.Reset()
	if string(data) != "plain" {
		t.Errorf("nil Cipher modified data: %q", data)
	}
}

func TestNewRejectsEmptyKey(t *testing.T) {
	if _, err := New(""); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("New(\"\") error = %v, want ErrEmptyKey", err)
	}
}

func TestNewTruncatesLongKeys(t *testing.T) {
	key := strings.Repeat("0123456789abcdef", MaxKeyLength/16)
	long := mustNew(t, key+"ignored tail")
	exact := mustNew(t, key)

	got, want := make([]byte, 512), make([]byte, 512)
	long.Crypt(got)
	exact.Crypt(want)
	if !bytes.Equal(got, want) {
		t.Error("bytes past the key limit changed the keystream")
	}
}
