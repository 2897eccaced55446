package restic

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/duskline/vaultreader/formats/reposerr"
)

// blobIndex locates one blob's bytes inside a pack file.
type blobIndex struct {
	ID                 string `json:"id"`
	Type                string `json:"type"`
	Offset              uint64 `json:"offset"`
	Length              uint64 `json:"length"`
	UncompressedLength  *uint64 `json:"uncompressed_length,omitempty"`
}

// packIndex names every blob stored in one pack file.
type packIndex struct {
	ID    string      `json:"id"`
	Blobs []blobIndex `json:"blobs"`
}

// repoIndex is the merge of every index/<id> document in the repository.
type repoIndex struct {
	Supersedes []string    `json:"supersedes"`
	Packs      []packIndex `json:"packs"`
}

func decodeIndexDoc(plaintext []byte) (*repoIndex, error) {
	dec := json.NewDecoder(bytes.NewReader(plaintext))
	dec.DisallowUnknownFields()
	var doc repoIndex
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("restic: decoding index: %w: %v", reposerr.ErrMalformedMetadata, err)
	}
	return &doc, nil
}

// mergeIndexes concatenates supersedes and packs across every decoded
// index document into a single logical index.
func mergeIndexes(docs []*repoIndex) *repoIndex {
	merged := &repoIndex{}
	for _, d := range docs {
		merged.Supersedes = append(merged.Supersedes, d.Supersedes...)
		merged.Packs = append(merged.Packs, d.Packs...)
	}
	return merged
}

// findPack returns the pack and blob index entries for the blob with the
// given id, searching every pack's blob list in order.
func (idx *repoIndex) findPack(id string) (*packIndex, *blobIndex, bool) {
	for i := range idx.Packs {
		pack := &idx.Packs[i]
		for j := range pack.Blobs {
			if pack.Blobs[j].ID == id {
				return pack, &pack.Blobs[j], true
			}
		}
	}
	return nil, nil, false
}
