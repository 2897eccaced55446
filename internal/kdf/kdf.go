// Package kdf derives symmetric keys from a user password. Each function
// mirrors exactly one wire-mandated derivation; it holds no opinion about
// parameter choice beyond what the caller passes in, since those parameters
// are dictated by the repository format, not by this engine.
package kdf

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

// Scrypt derives keyLen bytes from password and salt using the given scrypt
// cost parameters. Used by blobbackup's key-salt unwrap and restic's
// per-keyfile unwrap.
func Scrypt(password, salt []byte, n, r, p, keyLen int) ([]byte, error) {
	key, err := scrypt.Key(password, salt, n, r, p, keyLen)
	if err != nil {
		return nil, fmt.Errorf("kdf: scrypt derivation failed: %w", err)
	}
	return key, nil
}

// PBKDF2SHA256 derives keyLen bytes from password and salt using PBKDF2 with
// an HMAC-SHA256 PRF. Used by duplicacy's config password-wrap envelope.
func PBKDF2SHA256(password, salt []byte, iterations, keyLen int) []byte {
	return pbkdf2.Key(password, salt, iterations, keyLen, sha256.New)
}
