package duplicacy

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/duskline/vaultreader/formats/reposerr"
)

// revision is one snapshot revision document: the manifest naming the
// entry-list and chunk-index hashes that together describe a point-in-time
// file tree.
type revision struct {
	Version         int      `json:"version"`
	ID              string   `json:"id"`
	Revision        int      `json:"revision"`
	Options         string   `json:"options"`
	Tag             string   `json:"tag"`
	StartTime       int64    `json:"start_time"`
	EndTime         int64    `json:"end_time"`
	FileSize        int64    `json:"file_size"`
	NumberOfFiles   int64    `json:"number_of_files"`
	Files           []string `json:"files"`
	Chunks          []string `json:"chunks"`
	Lengths         []string `json:"lengths"`
}

func decodeRevision(plaintext []byte) (*revision, error) {
	dec := json.NewDecoder(bytes.NewReader(plaintext))
	dec.DisallowUnknownFields()
	var rv revision
	if err := dec.Decode(&rv); err != nil {
		return nil, fmt.Errorf("duplicacy: decoding revision: %w: %v", reposerr.ErrMalformedMetadata, err)
	}
	return &rv, nil
}

// index is a chunk-index document: a bare JSON array of hex-encoded
// content hashes naming the data chunks one segment of the file tree's
// byte stream is split across.
type index struct {
	Hashes []string
}

func decodeIndex(plaintext []byte) (*index, error) {
	var hashes []string
	if err := json.Unmarshal(plaintext, &hashes); err != nil {
		return nil, fmt.Errorf("duplicacy: decoding chunk index: %w: %v", reposerr.ErrMalformedMetadata, err)
	}
	return &index{Hashes: hashes}, nil
}
