// Package blobbackup implements blobbackup's on-disk envelope: AES-256-GCM
// with a non-standard 16-byte nonce, optionally followed by zstd
// decompression.
package blobbackup

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/duskline/vaultreader/formats/reposerr"
)

const nonceSize = 16

// Envelope decrypts blobbackup blobs under a single fixed key: the master
// key for snapshot and chunk files, the derived scrypt key for the
// master-key file itself, and the master key again for the sha-key file.
type Envelope struct {
	aead cipher.AEAD
}

// New builds an Envelope around a 32-byte AES-256 key.
func New(key []byte) (*Envelope, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("blobbackup: building AES cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("blobbackup: building GCM with %d-byte nonce: %w", nonceSize, err)
	}
	return &Envelope{aead: aead}, nil
}

// Decrypt strips the leading 16-byte nonce and authenticates the remainder
// under it, returning the plaintext payload without decompressing it.
func (e *Envelope) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < nonceSize {
		return nil, fmt.Errorf("blobbackup: envelope shorter than nonce: %w", reposerr.ErrBadMagic)
	}
	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("blobbackup: %w: %v", reposerr.ErrInvalidAuth, err)
	}
	return plaintext, nil
}

// DecryptAndDecompress decrypts blob then decompresses the result as a
// zstd stream, the framing used for snapshot and chunk files.
func (e *Envelope) DecryptAndDecompress(blob []byte) ([]byte, error) {
	plaintext, err := e.Decrypt(blob)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("blobbackup: building zstd decoder: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("blobbackup: zstd decompression failed: %w", err)
	}
	return out, nil
}
