package duplicacy

import (
	"encoding/hex"
	"fmt"

	"github.com/duskline/vaultreader/formats/reposerr"
	"github.com/duskline/vaultreader/internal/codec"
)

// entry is one file-tree record from a decoded entry-list chunk: a path
// with its metadata and, for regular files, the byte range it occupies
// across the repository's positionally addressed data-chunk list.
type entry struct {
	Path        string
	Size        int64
	Time        int64
	Mode        int64
	Link        string
	Hash        []byte
	StartChunk  int64
	StartOffset int64
	EndChunk    int64
	EndOffset   int64
	UID         int64
	GID         int64
	Attributes  map[string][]byte
}

// isSymlink reports whether this entry describes a symbolic link.
func (e *entry) isSymlink() bool {
	return e.Link != ""
}

// isDir reports whether this entry's mode bits mark it a directory, using
// the POSIX S_IFDIR bit duplicacy stores verbatim from the source OS.
func (e *entry) isDir() bool {
	const sIFDIR = 0o40000
	return e.Mode&sIFDIR != 0
}

// decodeEntries reads a decrypted entry-list chunk as a back-to-back
// sequence of unframed entry records, with no array or map wrapper, until
// every byte has been consumed.
func decodeEntries(data []byte) ([]entry, error) {
	r := codec.NewMsgpackReader(data)
	var entries []entry
	for !r.Done() {
		e, err := decodeEntry(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func decodeEntry(r *codec.MsgpackReader) (entry, error) {
	var e entry
	var err error

	if e.Path, err = r.ReadStr(); err != nil {
		return e, fmt.Errorf("duplicacy: entry path: %w", err)
	}
	if e.Size, err = r.ReadInt(); err != nil {
		return e, fmt.Errorf("duplicacy: entry size: %w", err)
	}
	if e.Time, err = r.ReadInt(); err != nil {
		return e, fmt.Errorf("duplicacy: entry time: %w", err)
	}
	if e.Mode, err = r.ReadInt(); err != nil {
		return e, fmt.Errorf("duplicacy: entry mode: %w", err)
	}
	if e.Link, err = r.ReadStr(); err != nil {
		return e, fmt.Errorf("duplicacy: entry link: %w", err)
	}

	hashHex, err := r.ReadStr()
	if err != nil {
		return e, fmt.Errorf("duplicacy: entry hash: %w", err)
	}
	if hashHex != "" {
		if e.Hash, err = hex.DecodeString(hashHex); err != nil {
			return e, fmt.Errorf("duplicacy: entry hash not valid hex: %w: %v", reposerr.ErrMalformedMetadata, err)
		}
	}

	if e.StartChunk, err = r.ReadInt(); err != nil {
		return e, fmt.Errorf("duplicacy: entry start_chunk: %w", err)
	}
	if e.StartOffset, err = r.ReadInt(); err != nil {
		return e, fmt.Errorf("duplicacy: entry start_offset: %w", err)
	}
	if e.EndChunk, err = r.ReadInt(); err != nil {
		return e, fmt.Errorf("duplicacy: entry end_chunk: %w", err)
	}
	if e.EndOffset, err = r.ReadInt(); err != nil {
		return e, fmt.Errorf("duplicacy: entry end_offset: %w", err)
	}
	if e.UID, err = r.ReadInt(); err != nil {
		return e, fmt.Errorf("duplicacy: entry uid: %w", err)
	}
	if e.GID, err = r.ReadInt(); err != nil {
		return e, fmt.Errorf("duplicacy: entry gid: %w", err)
	}

	numAttrs, err := r.ReadInt()
	if err != nil {
		return e, fmt.Errorf("duplicacy: entry attribute count: %w", err)
	}
	if numAttrs > 0 {
		e.Attributes = make(map[string][]byte, numAttrs)
	}
	for i := int64(0); i < numAttrs; i++ {
		key, err := r.ReadStr()
		if err != nil {
			return e, fmt.Errorf("duplicacy: entry attribute key: %w", err)
		}
		n, err := r.ReadStrLen()
		if err != nil {
			return e, fmt.Errorf("duplicacy: entry attribute value length: %w", err)
		}
		value, err := r.ReadRaw(n)
		if err != nil {
			return e, fmt.Errorf("duplicacy: entry attribute value: %w", err)
		}
		e.Attributes[key] = append([]byte(nil), value...)
	}

	return e, nil
}
