package restic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/duskline/vaultreader/formats/reposerr"
)

// snapshot is one restic snapshot document.
type snapshot struct {
	Time     time.Time `json:"time"`
	Tree     string    `json:"tree"`
	Paths    []string  `json:"paths"`
	Hostname string    `json:"hostname"`
	Username string    `json:"username"`
	UID      uint32    `json:"uid"`
	GID      uint32    `json:"gid"`
	Tags     []string  `json:"tags,omitempty"`
	Original string    `json:"original,omitempty"`
}

func decodeSnapshot(plaintext []byte) (*snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(plaintext))
	dec.DisallowUnknownFields()
	var s snapshot
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("restic: decoding snapshot: %w: %v", reposerr.ErrMalformedMetadata, err)
	}
	return &s, nil
}
