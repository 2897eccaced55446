package knoxite

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/duskline/vaultreader/formats/reposerr"
)

// archiveType mirrors knoxite's repr(u8) ArchiveType enum.
type archiveType uint8

const (
	archiveTypeFile archiveType = iota
	archiveTypeDirectory
	archiveTypeSymlink
)

// truthyBool decodes a JSON field that is sometimes written as a 0/1
// integer rather than a boolean.
type truthyBool bool

func (b *truthyBool) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*b = n != 0
		return nil
	}
	var v bool
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("knoxite: decoding truthy bool: %w: %v", reposerr.ErrMalformedMetadata, err)
	}
	*b = truthyBool(v)
	return nil
}

// chunkRef names one data chunk an archive's content is split across.
type chunkRef struct {
	DataParts     uint32 `json:"data_parts"`
	ParityParts   uint32 `json:"parity_parts"`
	OriginalSize  int32  `json:"original_size"`
	Size          int32  `json:"size"`
	DecryptedHash string `json:"decrypted_hash"`
	Hash          string `json:"hash"`
	Num           uint32 `json:"num"`
}

// archive is one path entry of a snapshot.
type archive struct {
	Path            string      `json:"path"`
	PointsTo        *string     `json:"points_to,omitempty"`
	Mode            uint64      `json:"mode"`
	ModTime         int64       `json:"mod_time"`
	Size            uint64      `json:"size"`
	StorageSize     uint64      `json:"storage_size"`
	UID             uint32      `json:"uid"`
	GID             uint32      `json:"gid"`
	Chunks          []chunkRef  `json:"chunks,omitempty"`
	Encrypted       truthyBool  `json:"encrypted"`
	Compressed      truthyBool  `json:"compressed"`
	Type            archiveType `json:"type"`
}

// stats mirrors knoxite's per-snapshot counters, parsed but not consulted
// during restore.
type stats struct {
	Files       uint64 `json:"files"`
	Dirs        uint64 `json:"dirs"`
	Symlinks    uint64 `json:"symlinks"`
	Size        uint64 `json:"size"`
	StorageSize uint64 `json:"storage_size"`
	Transferred uint64 `json:"transferred"`
	Errors      uint64 `json:"errors"`
}

// snapshot is a knoxite point-in-time archive set.
type snapshot struct {
	ID          string             `json:"id"`
	Date        string             `json:"date"`
	Description string             `json:"description"`
	Stats       stats              `json:"stats"`
	Archives    map[string]archive `json:"archives"`
}

func decodeSnapshot(plaintext []byte) (*snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(plaintext))
	dec.DisallowUnknownFields()
	var s snapshot
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("knoxite: decoding snapshot: %w: %v", reposerr.ErrMalformedMetadata, err)
	}
	return &s, nil
}
