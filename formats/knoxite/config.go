// Package knoxite restores snapshots from a knoxite repository: a
// password-unlocked top-level config naming one repository-wide key, a
// compressed chunk index, and per-volume snapshots whose archive entries
// reassemble from chunk files stored under chunks/ in two hash-prefix
// directory levels.
package knoxite

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/duskline/vaultreader/formats/reposerr"
	envkx "github.com/duskline/vaultreader/internal/envelope/knoxite"
)

// volume is one backup target tracked by the repository, naming the
// snapshot ids taken of it over time.
type volume struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Snapshots   []string `json:"snapshots"`
}

// config is knoxite's top-level repository.knoxite document.
type config struct {
	Version int      `json:"version"`
	Volumes []volume `json:"volumes"`
	Paths   []string `json:"paths"`
	Key     string   `json:"key"`
}

func decodeConfig(plaintext []byte) (*config, error) {
	dec := json.NewDecoder(bytes.NewReader(plaintext))
	dec.DisallowUnknownFields()
	var c config
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("knoxite: decoding config: %w: %v", reposerr.ErrMalformedMetadata, err)
	}
	return &c, nil
}

// loadConfig reads and decrypts the repository.knoxite file using the
// repository password directly; this is the only document in a knoxite
// repository not keyed by config.Key, since the key isn't known until
// this file has been read.
func loadConfig(raw []byte, password []byte) (*config, error) {
	env := envkx.NewFromPassword(password)
	plaintext, err := env.Decrypt(raw)
	if err != nil {
		return nil, fmt.Errorf("knoxite: decrypting config: %w", err)
	}
	return decodeConfig(plaintext)
}
