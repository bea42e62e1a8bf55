package crypt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Frame captured from a real blind.
const (
	capturedCiphertext = "244e1d963ebdc5453f43e896465b5bcf"
	capturedPlaintext  = "070404020e0059b4"
)

func TestDecryptCapturedFrame(t *testing.T) {
	c := New(time.UTC)
	plaintext, err := c.Decrypt(capturedCiphertext)
	require.NoError(t, err)
	assert.Equal(t, capturedPlaintext, plaintext)
}

func TestEncryptCapturedFrame(t *testing.T) {
	c := New(time.UTC)
	ciphertext, err := c.Encrypt(capturedPlaintext)
	require.NoError(t, err)
	assert.Equal(t, capturedCiphertext, ciphertext)
}

func TestEncryptMultiBlockFrame(t *testing.T) {
	c := New(time.UTC)
	// An 18-byte status frame spans two blocks after padding.
	ciphertext, err := c.Encrypt("12040f020c00325a00000000020000000050")
	require.NoError(t, err)
	assert.Equal(t,
		"e2ffd2e1d592ed8142ee6be857eb7fb8700bcb653d7d5eecf884548ba1c29209",
		ciphertext)
}

func TestRoundTrip(t *testing.T) {
	c := New(time.UTC)
	for _, plaintext := range []string{
		"00",
		"03020301",
		"0302030117010212000000",
		"12040f020c00325a00000000020000000050",
	} {
		ciphertext, err := c.Encrypt(plaintext)
		require.NoError(t, err)
		got, err := c.Decrypt(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestEncryptRejectsBadHex(t *testing.T) {
	c := New(time.UTC)
	_, err := c.Encrypt("zz")
	assert.Error(t, err)
}

func TestDecryptRejectsBadInput(t *testing.T) {
	c := New(time.UTC)

	_, err := c.Decrypt("zz")
	assert.Error(t, err, "non-hex input")

	_, err = c.Decrypt("0102")
	assert.Error(t, err, "not a whole number of blocks")

	_, err = c.Decrypt("")
	assert.Error(t, err, "empty ciphertext")

	// A valid block that decrypts to garbage padding.
	_, err = c.Decrypt("000102030405060708090a0b0c0d0e0f")
	assert.Error(t, err)
}

func TestNewWithKeyRejectsBadKey(t *testing.T) {
	_, err := NewWithKey([]byte("too short"), time.UTC)
	assert.Error(t, err)
}

func TestTimestampLayout(t *testing.T) {
	c := New(time.UTC)
	c.now = func() time.Time {
		return time.Date(2023, time.December, 31, 23, 59, 58, 123*1e6, time.UTC)
	}
	// yy mm dd hh mm ss, then milliseconds as two bytes.
	assert.Equal(t, "170c1f173b3a007b", c.Timestamp())
}

func TestTimestampUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)
	c := New(loc)
	c.now = func() time.Time {
		// 12:00 UTC is 13:00 in Amsterdam in winter.
		return time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC)
	}
	assert.Equal(t, "18010f0d00000000", c.Timestamp())
}

func TestTimestampLength(t *testing.T) {
	c := New(time.UTC)
	ts := c.Timestamp()
	assert.Len(t, ts, 16, "timestamp is eight bytes hex encoded")
}
