package blobbackup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/duskline/vaultreader/formats/reposerr"
	"github.com/duskline/vaultreader/internal/codec"
)

// itemType mirrors blobbackup's lowercase "type" discriminator.
type itemType string

const (
	itemTypeFile itemType = "file"
	itemTypeDir  itemType = "dir"
)

// chunkRange records the half-open byte range a file occupies across the
// snapshot's flat, positional chunk array. It is encoded on the wire as a
// bare 4-element JSON array, not an object.
type chunkRange struct {
	StartChunk  int
	StartOffset int
	EndChunk    int
	EndOffset   int
}

// UnmarshalJSON decodes chunkRange from its 4-element array form.
func (r *chunkRange) UnmarshalJSON(data []byte) error {
	var arr [4]int
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("blobbackup: decoding chunk range: %w: %v", reposerr.ErrMalformedMetadata, err)
	}
	r.StartChunk, r.StartOffset, r.EndChunk, r.EndOffset = arr[0], arr[1], arr[2], arr[3]
	return nil
}

// item is one path entry of a snapshot's flat name-to-metadata map.
type item struct {
	Type  itemType    `json:"type"`
	Mtime float64     `json:"mtime"`
	Range *chunkRange `json:"range,omitempty"`
}

// snapshot is blobbackup's decrypted, decompressed snapshot document.
type snapshot struct {
	DataFormatVersion uint32          `json:"data_format_version"`
	Items             map[string]item `json:"snapshot"`
	Chunks            []string        `json:"chunks"`
}

func decodeSnapshot(plaintext []byte) (*snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(plaintext))
	dec.DisallowUnknownFields()
	var s snapshot
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("blobbackup: decoding snapshot document: %w: %v", reposerr.ErrMalformedMetadata, err)
	}
	return &s, nil
}

// pickLatest returns the name of the snapshot whose embedded timestamp is
// most recent.
func pickLatest(names []string) (string, error) {
	var (
		best     string
		bestTime time.Time
		found    bool
	)
	for _, name := range names {
		t, err := codec.ParseBlobbackupSnapshotName(name)
		if err != nil {
			return "", err
		}
		if !found || t.After(bestTime) {
			best, bestTime, found = name, t, true
		}
	}
	if !found {
		return "", reposerr.ErrNoSnapshot
	}
	return best, nil
}
