package blobbackup

import (
	"bytes"
	"fmt"
	"path"

	"github.com/duskline/vaultreader/internal/envelope/blobbackup"
	"github.com/duskline/vaultreader/internal/kdf"
	"github.com/duskline/vaultreader/internal/reposfs"
)

// scrypt cost parameters blobbackup uses to unwrap keys/master-key.
const (
	scryptLogN = 14
	scryptR    = 8
	scryptP    = 1
	scryptLen  = 32
)

// keys holds the two symmetric keys a blobbackup repository needs once
// opened: masterKey decrypts snapshot and chunk files, shaKey is the HMAC
// key this engine uses to verify chunk content integrity.
type keys struct {
	masterKey []byte
	shaKey    []byte
}

// loadKeys reads keys/key-salt, keys/master-key and keys/sha-key,
// decrypting masterKey under a key scrypt-derived from the repository
// password and salt, then decrypting shaKey under masterKey.
func loadKeys(fsys *reposfs.FS, password []byte) (*keys, error) {
	salt, err := fsys.ReadFile(path.Join("keys", "key-salt"))
	if err != nil {
		return nil, fmt.Errorf("blobbackup: reading key salt: %w", err)
	}

	derived, err := kdf.Scrypt(password, salt, 1<<scryptLogN, scryptR, scryptP, scryptLen)
	if err != nil {
		return nil, fmt.Errorf("blobbackup: deriving key-wrap key: %w", err)
	}
	wrapEnv, err := blobbackup.New(derived)
	if err != nil {
		return nil, fmt.Errorf("blobbackup: building key-wrap envelope: %w", err)
	}

	masterKeyBlob, err := fsys.ReadFile(path.Join("keys", "master-key"))
	if err != nil {
		return nil, fmt.Errorf("blobbackup: reading master key: %w", err)
	}
	masterKey, err := wrapEnv.Decrypt(masterKeyBlob)
	if err != nil {
		return nil, fmt.Errorf("blobbackup: unwrapping master key: %w", err)
	}

	masterEnv, err := blobbackup.New(masterKey)
	if err != nil {
		return nil, fmt.Errorf("blobbackup: building master-key envelope: %w", err)
	}
	shaKeyBlob, err := fsys.ReadFile(path.Join("keys", "sha-key"))
	if err != nil {
		return nil, fmt.Errorf("blobbackup: reading sha key: %w", err)
	}
	shaKey, err := masterEnv.Decrypt(shaKeyBlob)
	if err != nil {
		return nil, fmt.Errorf("blobbackup: unwrapping sha key: %w", err)
	}

	return &keys{masterKey: bytes.Clone(masterKey), shaKey: bytes.Clone(shaKey)}, nil
}
