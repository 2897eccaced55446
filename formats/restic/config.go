// Package restic restores snapshots from a restic repository: a
// scrypt-wrapped keyfile naming an AES-256-CTR+Poly1305-AES master key, a
// merged pack index, and a snapshot's tree blobs walked breadth-first down
// to their data blobs.
package restic

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/duskline/vaultreader/formats/reposerr"
)

// config is restic's repository-wide config document.
type config struct {
	Version            int    `json:"version"`
	ID                 string `json:"id"`
	ChunkerPolynomial  string `json:"chunker_polynomial"`
}

func decodeConfig(plaintext []byte) (*config, error) {
	dec := json.NewDecoder(bytes.NewReader(plaintext))
	dec.DisallowUnknownFields()
	var c config
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("restic: decoding config: %w: %v", reposerr.ErrMalformedMetadata, err)
	}
	return &c, nil
}
