// Package reposerr defines the sentinel error values shared by every
// repository format driver, so callers can use errors.Is against a single
// stable taxonomy regardless of which format produced the failure.
package reposerr

import "errors"

var (
	// ErrBadMagic is returned when a file's leading magic bytes don't match
	// the format's expected framing, or when a blob is too short to hold
	// that framing (nonce, IV or tag included).
	ErrBadMagic = errors.New("reposerr: bad magic bytes")

	// ErrBadVersion is returned when a recognized envelope carries a version
	// byte this engine doesn't know how to decode.
	ErrBadVersion = errors.New("reposerr: unsupported envelope version")

	// ErrInvalidPassword is returned when a key-unwrap operation fails in a
	// way that cannot be distinguished from a wrong password.
	ErrInvalidPassword = errors.New("reposerr: invalid password")

	// ErrInvalidAuth is returned when an authenticated decryption fails its
	// integrity check.
	ErrInvalidAuth = errors.New("reposerr: authentication failed")

	// ErrMalformedMetadata is returned when a decrypted metadata document
	// fails to parse against its expected schema.
	ErrMalformedMetadata = errors.New("reposerr: malformed metadata")

	// ErrMismatchedHash is returned when decrypted chunk or blob content, or
	// reassembled file content, does not match the hash recorded for it.
	ErrMismatchedHash = errors.New("reposerr: content hash mismatch")

	// ErrUnsupportedFeature is returned when a repository uses a feature
	// this engine deliberately does not implement (erasure coding, RSA
	// envelope recipients, and similar).
	ErrUnsupportedFeature = errors.New("reposerr: unsupported repository feature")

	// ErrNoSnapshot is returned when a repository has no snapshot to
	// restore.
	ErrNoSnapshot = errors.New("reposerr: repository has no snapshots")
)
