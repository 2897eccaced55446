package knoxite

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/duskline/vaultreader/formats/reposerr"
)

// indexItem records bookkeeping knoxite keeps about a chunk independent of
// any particular snapshot: its erasure-coding shard counts and which
// snapshots reference it. Restoring a snapshot never needs to consult this
// document — archive entries name their chunks directly — so the restore
// driver does not read it; decodeChunkIndex decodes it on its own.
type indexItem struct {
	Hash         string   `json:"hash"`
	DataParts    uint32   `json:"data_parts"`
	ParityParts  *uint32  `json:"parity_parts,omitempty"`
	Size         int32    `json:"size"`
	Snapshots    []string `json:"snapshots"`
}

// index is knoxite's chunks/index document.
type index struct {
	Chunks map[string]indexItem `json:"chunks"`
}

func decodeChunkIndex(plaintext []byte) (*index, error) {
	dec := json.NewDecoder(bytes.NewReader(plaintext))
	dec.DisallowUnknownFields()
	var idx index
	if err := dec.Decode(&idx); err != nil {
		return nil, fmt.Errorf("knoxite: decoding chunk index: %w: %v", reposerr.ErrMalformedMetadata, err)
	}
	return &idx, nil
}
