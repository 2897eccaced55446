// Package duplicacy restores snapshots from a duplicacy repository: a
// PBKDF2-password-wrapped or plaintext JSON config naming four Blake2b-
// derived purpose keys, revision documents naming file- and chunk-index
// hashes, and an unframed MessagePack entry stream reassembled across a
// positionally addressed, content-hash-keyed chunk store.
package duplicacy

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/duskline/vaultreader/formats/reposerr"
	"github.com/duskline/vaultreader/internal/envelope/duplicacy"
	"github.com/duskline/vaultreader/internal/kdf"
)

var configMagic = []byte("duplicacy")

const (
	passwordWrapStaticSalt = "duplicacy"
	passwordWrapIterations = 16384
)

// config is duplicacy's repository-wide configuration document.
type config struct {
	CompressionLevel int    `json:"compression-level"`
	AverageChunkSize int    `json:"average-chunk-size"`
	MaxChunkSize     int    `json:"max-chunk-size"`
	MinChunkSize     int    `json:"min-chunk-size"`
	ChunkSeedHex     string `json:"chunk-seed"`
	FixedNesting     bool   `json:"fixed-nesting"`
	HashKeyHex       string `json:"hash-key"`
	IDKeyHex         string `json:"id-key"`
	ChunkKeyHex      string `json:"chunk-key"`
	FileKeyHex       string `json:"file-key"`
	DataShards       int    `json:"DataShards"`
	ParityShards     int    `json:"ParityShards"`
	RSAPublicKey     string `json:"rsa-public-key"`

	chunkSeed []byte
	hashKey   []byte
	idKey     []byte
	chunkKey  []byte
	fileKey   []byte
}

// decodeConfig reads raw as either a password-wrapped or plaintext config
// document and decodes the resulting JSON, rejecting any unknown field.
func decodeConfig(raw []byte, password []byte) (*config, error) {
	plaintext := raw
	if bytes.HasPrefix(raw, configMagic) {
		decoded, err := unwrapPassword(raw, password)
		if err != nil {
			return nil, err
		}
		plaintext = decoded
	}

	dec := json.NewDecoder(bytes.NewReader(plaintext))
	dec.DisallowUnknownFields()
	var c config
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("duplicacy: decoding config: %w: %v", reposerr.ErrMalformedMetadata, err)
	}

	var err error
	if c.chunkSeed, err = hex.DecodeString(c.ChunkSeedHex); err != nil {
		return nil, fmt.Errorf("duplicacy: decoding chunk_seed: %w: %v", reposerr.ErrMalformedMetadata, err)
	}
	if c.hashKey, err = hex.DecodeString(c.HashKeyHex); err != nil {
		return nil, fmt.Errorf("duplicacy: decoding hash_key: %w: %v", reposerr.ErrMalformedMetadata, err)
	}
	if c.idKey, err = hex.DecodeString(c.IDKeyHex); err != nil {
		return nil, fmt.Errorf("duplicacy: decoding id_key: %w: %v", reposerr.ErrMalformedMetadata, err)
	}
	if c.chunkKey, err = hex.DecodeString(c.ChunkKeyHex); err != nil {
		return nil, fmt.Errorf("duplicacy: decoding chunk_key: %w: %v", reposerr.ErrMalformedMetadata, err)
	}
	if c.fileKey, err = hex.DecodeString(c.FileKeyHex); err != nil {
		return nil, fmt.Errorf("duplicacy: decoding file_key: %w: %v", reposerr.ErrMalformedMetadata, err)
	}
	return &c, nil
}

// unwrapPassword parses duplicacy's password-wrapped config framing: a
// "duplicacy" magic, a wrap-version byte selecting the salt/iteration
// scheme, and a PBKDF2-HMAC-SHA256-derived key used to decrypt a synthetic
// version-0 envelope built from the remaining bytes.
func unwrapPassword(raw []byte, password []byte) ([]byte, error) {
	if len(raw) < len(configMagic)+1 {
		return nil, fmt.Errorf("duplicacy: password-wrapped config too short: %w", reposerr.ErrBadMagic)
	}
	rest := raw[len(configMagic):]
	wrapVersion := rest[0]
	rest = rest[1:]

	var salt []byte
	var iterations int
	switch wrapVersion {
	case 0:
		salt = []byte(passwordWrapStaticSalt)
		iterations = passwordWrapIterations
	case 1:
		if len(rest) < 32+4 {
			return nil, fmt.Errorf("duplicacy: truncated v1 password wrap: %w", reposerr.ErrMalformedMetadata)
		}
		salt = rest[:32]
		iterations = int(binary.LittleEndian.Uint32(rest[32:36]))
		rest = rest[36:]
	default:
		return nil, fmt.Errorf("duplicacy: password wrap version %d: %w", wrapVersion, reposerr.ErrBadVersion)
	}

	derived := kdf.PBKDF2SHA256(password, salt, iterations, 32)
	env, err := duplicacy.New(derived)
	if err != nil {
		return nil, fmt.Errorf("duplicacy: building password-unwrap envelope: %w", err)
	}

	synthetic := make([]byte, 0, len(configMagic)+1+len(rest))
	synthetic = append(synthetic, configMagic...)
	synthetic = append(synthetic, 0)
	synthetic = append(synthetic, rest...)

	plaintext, err := env.Decrypt(synthetic)
	if err != nil {
		return nil, fmt.Errorf("duplicacy: %w: %v", reposerr.ErrInvalidPassword, err)
	}
	return plaintext, nil
}
