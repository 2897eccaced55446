// Package restic implements restic's legacy envelope: AES-256-CTR combined
// with a Poly1305-AES message authentication code, where the Poly1305 key's
// "s" component is itself the AES-ECB encryption of the envelope's nonce
// under a second, MAC-only AES key.
package restic

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/poly1305"

	"github.com/duskline/vaultreader/formats/reposerr"
)

const (
	ivSize  = 16
	tagSize = 16
)

// Envelope decrypts restic blobs under a single master key, which is built
// from three independent sub-keys: a 32-byte AES-CTR encryption key and a
// 16+16-byte Poly1305-AES MAC key pair (k, r).
type Envelope struct {
	encBlock cipher.Block
	macBlock cipher.Block // AES cipher keyed by the MAC "k" sub-key
	macR     [16]byte
}

// New builds an Envelope from the three raw sub-keys recovered from a
// repository's master key file: enc (32 bytes), macK (16 bytes) and macR
// (16 bytes).
func New(enc, macK, macR []byte) (*Envelope, error) {
	encBlock, err := aes.NewCipher(enc)
	if err != nil {
		return nil, fmt.Errorf("restic: building AES-CTR cipher: %w", err)
	}
	macBlock, err := aes.NewCipher(macK)
	if err != nil {
		return nil, fmt.Errorf("restic: building MAC AES cipher: %w", err)
	}
	e := &Envelope{encBlock: encBlock, macBlock: macBlock}
	copy(e.macR[:], macR)
	return e, nil
}

// Decrypt verifies the Poly1305-AES tag over the ciphertext and returns the
// AES-256-CTR decrypted plaintext, performing no decompression.
func (e *Envelope) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < ivSize+tagSize {
		return nil, fmt.Errorf("restic: envelope shorter than iv+tag: %w", reposerr.ErrBadMagic)
	}
	nonce := blob[:ivSize]
	ciphertext := blob[ivSize : len(blob)-tagSize]
	tag := blob[len(blob)-tagSize:]

	if !e.verify(ciphertext, nonce, tag) {
		return nil, fmt.Errorf("restic: %w", reposerr.ErrInvalidAuth)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCTR(e.encBlock, nonce).XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}

// DecryptAndDecompress decrypts blob, strips the single plaintext type byte
// that index and snapshot documents carry ahead of their payload, and
// zstd-decompresses the remainder. Used for index and snapshot documents;
// the config is read with Decrypt and tree blobs with
// DecryptAndDecompressPacked.
func (e *Envelope) DecryptAndDecompress(blob []byte) ([]byte, error) {
	plaintext, err := e.Decrypt(blob)
	if err != nil {
		return nil, err
	}
	if len(plaintext) < 1 {
		return nil, fmt.Errorf("restic: compressed payload missing type byte: %w", reposerr.ErrMalformedMetadata)
	}
	return zstdDecompress(plaintext[1:])
}

// DecryptAndDecompressPacked decrypts blob and zstd-decompresses the full
// result with no leading byte stripped, the framing used for pack-indexed
// blob reads whose index entry records an explicit uncompressed length.
func (e *Envelope) DecryptAndDecompressPacked(blob []byte) ([]byte, error) {
	plaintext, err := e.Decrypt(blob)
	if err != nil {
		return nil, err
	}
	return zstdDecompress(plaintext)
}

// verify recomputes the Poly1305-AES tag over ciphertext (the nonce never
// enters the authenticated message itself — only the derived "s" half of
// the Poly1305 key) and compares it to tag in constant time.
func (e *Envelope) verify(ciphertext, nonce, tag []byte) bool {
	var polyKey [32]byte
	copy(polyKey[:16], e.macR[:])

	var s [16]byte
	e.macBlock.Encrypt(s[:], nonce)
	copy(polyKey[16:], s[:])

	var computed [16]byte
	poly1305.Sum(&computed, ciphertext, &polyKey)
	return subtle.ConstantTimeCompare(computed[:], tag) == 1
}

func zstdDecompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("restic: building zstd decoder: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("restic: zstd decompression failed: %w", err)
	}
	return out, nil
}
