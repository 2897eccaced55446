package duplicacy

import (
	"encoding/hex"
	"fmt"
	"path"

	"golang.org/x/crypto/blake2b"

	"github.com/duskline/vaultreader/internal/envelope/duplicacy"
)

// deriveKey computes a keyed Blake2b-256 digest of key, using derivation as
// the MAC key rather than as message data. duplicacy uses this both to
// derive a per-purpose AES key from one of the config's four key fields
// (derivation is then a content hash or a revision path) and, via
// chunkIDFromHash, to compute a chunk's storage identifier.
func deriveKey(key, derivation []byte) ([]byte, error) {
	h, err := blake2b.New256(derivation)
	if err != nil {
		return nil, fmt.Errorf("duplicacy: building keyed blake2b: %w", err)
	}
	h.Write(key)
	return h.Sum(nil), nil
}

// chunkIDFromHash computes the storage identifier for a chunk whose
// plaintext content hash is hash. Unlike deriveKey, this keys the Blake2b
// MAC with id_key itself and feeds hash as the message — the reverse
// argument order from every other derivation in this format.
func chunkIDFromHash(idKey, hash []byte) ([]byte, error) {
	h, err := blake2b.New256(idKey)
	if err != nil {
		return nil, fmt.Errorf("duplicacy: building keyed blake2b: %w", err)
	}
	h.Write(hash)
	return h.Sum(nil), nil
}

// chunkEnvelope builds the AES-256-GCM envelope used to decrypt the chunk
// whose content hash is hash, derived from the config's chunk_key.
func chunkEnvelope(c *config, hash []byte) (*duplicacy.Envelope, error) {
	key, err := deriveKey(c.chunkKey, hash)
	if err != nil {
		return nil, err
	}
	return duplicacy.New(key)
}

// fileEnvelope builds the AES-256-GCM envelope used to decrypt a revision
// file, derived from the config's file_key and the file's
// repository-relative derivation string. Entry-list chunks are decrypted
// with chunkEnvelope instead.
func fileEnvelope(c *config, derivation string) (*duplicacy.Envelope, error) {
	key, err := deriveKey(c.fileKey, []byte(derivation))
	if err != nil {
		return nil, err
	}
	return duplicacy.New(key)
}

// resolveChunkPath computes the repository-relative path of the chunk
// whose content hash is the hex string hash.
func resolveChunkPath(c *config, hexHash string) (string, error) {
	rawHash, err := hex.DecodeString(hexHash)
	if err != nil {
		return "", fmt.Errorf("duplicacy: decoding chunk hash %q: %w", hexHash, err)
	}
	chunkID, err := chunkIDFromHash(c.idKey, rawHash)
	if err != nil {
		return "", err
	}
	hexID := hex.EncodeToString(chunkID)
	return path.Join("chunks", hexID[:2], hexID[2:]), nil
}
