// Package duplicacy implements duplicacy's on-disk envelope: a literal
// "duplicacy" magic, a version byte, a 12-byte GCM nonce, AES-256-GCM
// ciphertext, padding that duplicacy defines with a "zero means 256" special
// case, and an optional "LZ4 " prefix marking size-prepended LZ4 block
// compression.
package duplicacy

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/pierrec/lz4/v4"

	"github.com/duskline/vaultreader/formats/reposerr"
)

var magic = []byte("duplicacy")

const (
	nonceSize     = 12
	lz4FramePrefix = "LZ4 "
)

// Envelope decrypts duplicacy blobs under a single fixed key. A distinct
// Envelope is built for every key the driver derives: one per chunk (from
// chunk_key) and one per revision file (from file_key), each via duplicacy's
// keyed Blake2b construction, plus the PBKDF2 key that unwraps a
// password-protected config.
type Envelope struct {
	aead cipher.AEAD
}

// New builds an Envelope around a 32-byte AES-256 key.
func New(key []byte) (*Envelope, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("duplicacy: building AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("duplicacy: building GCM: %w", err)
	}
	return &Envelope{aead: aead}, nil
}

// Decrypt validates the "duplicacy" magic and version byte, authenticates
// the ciphertext, strips duplicacy's trailing padding, and decompresses the
// result if it carries an "LZ4 " prefix.
func (e *Envelope) Decrypt(blob []byte) ([]byte, error) {
	plaintext, err := e.decryptFramed(blob)
	if err != nil {
		return nil, err
	}
	return decompressIfLZ4(plaintext)
}

// decryptFramed performs the magic/version/nonce/GCM steps without touching
// compression. Decrypt is its only caller; the password-unwrap path reaches
// it through Decrypt after rebuilding a synthetic version-0 envelope.
func (e *Envelope) decryptFramed(blob []byte) ([]byte, error) {
	if len(blob) < len(magic)+1+nonceSize {
		return nil, fmt.Errorf("duplicacy: envelope too short: %w", reposerr.ErrBadMagic)
	}
	if !bytes.Equal(blob[:len(magic)], magic) {
		return nil, fmt.Errorf("duplicacy: %w", reposerr.ErrBadMagic)
	}
	version := blob[len(magic)]
	if version != 0 {
		return nil, fmt.Errorf("duplicacy: envelope version %d: %w", version, reposerr.ErrBadVersion)
	}
	rest := blob[len(magic)+1:]
	nonce, ciphertext := rest[:nonceSize], rest[nonceSize:]
	padded, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("duplicacy: %w: %v", reposerr.ErrInvalidAuth, err)
	}
	return stripPadding(padded)
}

// stripPadding removes duplicacy's trailing pad, whose length is the value
// of the final byte, with 0 meaning a full 256-byte pad rather than none.
func stripPadding(buf []byte) ([]byte, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("duplicacy: empty plaintext: %w", reposerr.ErrMalformedMetadata)
	}
	size := int(buf[len(buf)-1])
	if size == 0 {
		size = 256
	}
	if size > len(buf) {
		return nil, fmt.Errorf("duplicacy: padding size %d exceeds plaintext length %d: %w", size, len(buf), reposerr.ErrMalformedMetadata)
	}
	return buf[:len(buf)-size], nil
}

// decompressIfLZ4 decompresses a size-prepended LZ4 block if buf starts
// with the literal "LZ4 " marker, otherwise returns buf unchanged.
func decompressIfLZ4(buf []byte) ([]byte, error) {
	if len(buf) < len(lz4FramePrefix) || string(buf[:len(lz4FramePrefix)]) != lz4FramePrefix {
		return buf, nil
	}
	body := buf[len(lz4FramePrefix):]
	if len(body) < 4 {
		return nil, fmt.Errorf("duplicacy: truncated LZ4 size prefix: %w", reposerr.ErrMalformedMetadata)
	}
	size := int(body[0]) | int(body[1])<<8 | int(body[2])<<16 | int(body[3])<<24
	out := make([]byte, size)
	n, err := lz4.UncompressBlock(body[4:], out)
	if err != nil {
		return nil, fmt.Errorf("duplicacy: LZ4 decompression failed: %w", err)
	}
	return out[:n], nil
}
