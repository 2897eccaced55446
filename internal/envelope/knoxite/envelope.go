// Package knoxite implements knoxite's on-disk envelope: unauthenticated
// AES-256-CFB keyed by the full SHA-256 digest of a secret, with the
// digest's first 16 bytes as the IV, and no integrity check on the
// ciphertext.
package knoxite

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// Envelope decrypts knoxite blobs under a SHA-256-derived key/IV pair.
// knoxite never authenticates its ciphertext; a tampered blob decrypts to
// garbage rather than failing, matching the reference implementation.
type Envelope struct {
	key [32]byte
}

// NewFromPassword derives an Envelope directly from the repository
// password, the key used only for the top-level repository.knoxite config
// file.
func NewFromPassword(password []byte) *Envelope {
	return &Envelope{key: sha256.Sum256(password)}
}

// NewFromKey derives an Envelope from config.Key's raw string bytes (not
// base64- or hex-decoded), the key used for every other file once the
// config has been read.
func NewFromKey(configKey string) *Envelope {
	return &Envelope{key: sha256.Sum256([]byte(configKey))}
}

// Decrypt performs an AES-256-CFB decryption into a new buffer, keyed by the
// full 32-byte digest, with the digest's first 16 bytes as the IV.
func (e *Envelope) Decrypt(blob []byte) ([]byte, error) {
	block, err := aes.NewCipher(e.key[:])
	if err != nil {
		return nil, fmt.Errorf("knoxite: building AES cipher: %w", err)
	}
	out := make([]byte, len(blob))
	cipher.NewCFBDecrypter(block, e.key[:16]).XORKeyStream(out, blob)
	return out, nil
}

// DecryptAndDecompress decrypts blob then decompresses the result as an
// XZ/LZMA2 stream, the framing used for the chunk index and snapshots.
func (e *Envelope) DecryptAndDecompress(blob []byte) ([]byte, error) {
	plaintext, err := e.Decrypt(blob)
	if err != nil {
		return nil, err
	}
	r, err := xz.NewReader(bytes.NewReader(plaintext))
	if err != nil {
		return nil, fmt.Errorf("knoxite: building xz reader: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("knoxite: xz decompression failed: %w", err)
	}
	return out, nil
}
