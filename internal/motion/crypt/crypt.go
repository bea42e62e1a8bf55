// Package crypt implements the cipher Motion blinds apply to every BLE
// frame: AES-128-ECB over hex-encoded payloads with PKCS#7 padding, plus the
// local-time timestamp suffix commands carry for freshness.
package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultKey is the vendor key shared by all Motion blinds.
var DefaultKey = []byte("a3q8r8c135sqbn66")

// Crypt encrypts and decrypts hex-encoded frames. Safe for concurrent use.
type Crypt struct {
	block cipher.Block
	loc   *time.Location
	now   func() time.Time
}

// New returns a Crypt using the vendor key. Timestamps are rendered in loc,
// which must match the timezone the blind was paired in.
func New(loc *time.Location) *Crypt {
	c, err := NewWithKey(DefaultKey, loc)
	if err != nil {
		// DefaultKey is a valid AES-128 key.
		panic(err)
	}
	return c
}

// NewWithKey returns a Crypt using a non-default key, for firmware variants
// with their own key material.
func NewWithKey(key []byte, loc *time.Location) (*Crypt, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("motion/crypt: new cipher: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Crypt{block: block, loc: loc, now: time.Now}, nil
}

// Encrypt pads and encrypts a hex-encoded plaintext frame, returning the
// hex-encoded ciphertext.
func (c *Crypt) Encrypt(plaintextHex string) (string, error) {
	plaintext, err := hex.DecodeString(plaintextHex)
	if err != nil {
		return "", fmt.Errorf("motion/crypt: decode plaintext hex: %w", err)
	}

	padded := pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	// Go ships no ECB mode on purpose; the wire format requires it, so
	// encrypt block by block.
	for i := 0; i < len(padded); i += aes.BlockSize {
		c.block.Encrypt(out[i:i+aes.BlockSize], padded[i:i+aes.BlockSize])
	}
	return hex.EncodeToString(out), nil
}

// Decrypt decrypts a hex-encoded ciphertext frame and strips the padding,
// returning the hex-encoded plaintext.
func (c *Crypt) Decrypt(ciphertextHex string) (string, error) {
	ciphertext, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", fmt.Errorf("motion/crypt: decode ciphertext hex: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("motion/crypt: ciphertext length %d is not a multiple of the block size", len(ciphertext))
	}

	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += aes.BlockSize {
		c.block.Decrypt(out[i:i+aes.BlockSize], ciphertext[i:i+aes.BlockSize])
	}

	unpadded, err := unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(unpadded), nil
}

// Timestamp renders the current local time as the 14-hex-char suffix the
// protocol appends to every command: yy mm dd hh mm ss, one byte each, then
// milliseconds as two bytes.
func (c *Crypt) Timestamp() string {
	now := c.now().In(c.loc)
	return fmt.Sprintf("%02x%02x%02x%02x%02x%02x%04x",
		now.Year()%100,
		int(now.Month()),
		now.Day(),
		now.Hour(),
		now.Minute(),
		now.Second(),
		now.Nanosecond()/1e6,
	)
}

func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("motion/crypt: invalid padding byte %d", n)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("motion/crypt: inconsistent padding")
		}
	}
	return data[:len(data)-n], nil
}
