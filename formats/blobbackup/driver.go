// Package blobbackup restores snapshots from a blobbackup repository: a
// flat directory of scrypt-wrapped keys, AES-256-GCM-and-zstd snapshot and
// chunk blobs, and a snapshot document naming files by a byte-range window
// over a positionally-ordered chunk list.
package blobbackup

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"sort"

	envblob "github.com/duskline/vaultreader/internal/envelope/blobbackup"
	"github.com/duskline/vaultreader/internal/reposfs"

	"github.com/duskline/vaultreader/formats/reposerr"
	"github.com/duskline/vaultreader/log"
)

// Driver restores the latest snapshot of one opened blobbackup repository.
type Driver struct {
	fsys *reposfs.FS
	keys *keys
}

// Open authenticates against a blobbackup repository rooted at repoPath.
func Open(_ context.Context, repoPath string, password []byte) (*Driver, error) {
	fsys, err := reposfs.Open(repoPath)
	if err != nil {
		return nil, fmt.Errorf("blobbackup: %w", err)
	}
	k, err := loadKeys(fsys, password)
	if err != nil {
		return nil, fmt.Errorf("blobbackup: %w: %v", reposerr.ErrInvalidPassword, err)
	}
	return &Driver{fsys: fsys, keys: k}, nil
}

// RestoreLatest writes every regular file of the repository's most recent
// snapshot below outputDir, flattened to its leaf name.
func (d *Driver) RestoreLatest(ctx context.Context, outputDir string) error {
	names, err := d.listSnapshotNames()
	if err != nil {
		return err
	}
	latestName, err := pickLatest(names)
	if err != nil {
		return fmt.Errorf("blobbackup: %w", err)
	}
	log.Field("format", "blobbackup").Field("snapshot", latestName).Message("selected latest snapshot")

	snap, err := d.loadSnapshot(latestName)
	if err != nil {
		return err
	}

	chunkEnv, err := envblob.New(d.keys.masterKey)
	if err != nil {
		return fmt.Errorf("blobbackup: building chunk envelope: %w", err)
	}

	chunks := make([][]byte, len(snap.Chunks))
	for i, hash := range snap.Chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := d.loadChunk(chunkEnv, hash)
		if err != nil {
			return err
		}
		chunks[i] = data
	}

	out, err := reposfs.NewOutputWriter(outputDir)
	if err != nil {
		return fmt.Errorf("blobbackup: %w", err)
	}

	for name, it := range snap.Items {
		if it.Type != itemTypeFile {
			continue
		}
		if it.Range == nil {
			return fmt.Errorf("blobbackup: file entry %q has no chunk range: %w", name, reposerr.ErrMalformedMetadata)
		}
		data, err := reassemble(chunks, *it.Range)
		if err != nil {
			return fmt.Errorf("blobbackup: reassembling %q: %w", name, err)
		}
		if err := out.WriteFile(path.Base(name), data); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) listSnapshotNames() ([]string, error) {
	entries, err := d.fsys.ReadDir("snapshots")
	if err != nil {
		return nil, fmt.Errorf("blobbackup: listing snapshots: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (d *Driver) loadSnapshot(name string) (*snapshot, error) {
	blob, err := d.fsys.ReadFile(path.Join("snapshots", name))
	if err != nil {
		return nil, fmt.Errorf("blobbackup: reading snapshot %q: %w", name, err)
	}
	env, err := envblob.New(d.keys.masterKey)
	if err != nil {
		return nil, fmt.Errorf("blobbackup: building snapshot envelope: %w", err)
	}
	plaintext, err := env.DecryptAndDecompress(blob)
	if err != nil {
		return nil, fmt.Errorf("blobbackup: decrypting snapshot %q: %w", name, err)
	}
	return decodeSnapshot(plaintext)
}

// loadChunk reads, decrypts and decompresses the chunk file named by hash,
// then verifies its content against that same hash: blobbackup's reference
// tooling skips this check, but the repository's keyed sha-key exists for
// exactly this purpose, so this engine enforces it as an HMAC-SHA256 over
// the decrypted plaintext.
func (d *Driver) loadChunk(env *envblob.Envelope, hash string) ([]byte, error) {
	blob, err := d.fsys.ReadFile(path.Join("chunks", hash))
	if err != nil {
		return nil, fmt.Errorf("blobbackup: reading chunk %q: %w", hash, err)
	}
	data, err := env.DecryptAndDecompress(blob)
	if err != nil {
		return nil, fmt.Errorf("blobbackup: decrypting chunk %q: %w", hash, err)
	}

	mac := hmac.New(sha256.New, d.keys.shaKey)
	mac.Write(data)
	computed := hex.EncodeToString(mac.Sum(nil))
	if computed != hash {
		log.Error(reposerr.ErrMismatchedHash).Field("format", "blobbackup").Messagef("chunk %q failed content verification", hash)
		return nil, fmt.Errorf("blobbackup: chunk %q: %w", hash, reposerr.ErrMismatchedHash)
	}
	return data, nil
}

// reassemble concatenates the byte range [r.StartChunk:r.StartOffset,
// r.EndChunk:r.EndOffset) across the positional chunk list.
func reassemble(chunks [][]byte, r chunkRange) ([]byte, error) {
	if r.StartChunk < 0 || r.EndChunk >= len(chunks) || r.StartChunk > r.EndChunk {
		return nil, fmt.Errorf("chunk range [%d,%d] out of bounds for %d chunks: %w", r.StartChunk, r.EndChunk, len(chunks), reposerr.ErrMalformedMetadata)
	}
	if r.StartChunk == r.EndChunk {
		chunk := chunks[r.StartChunk]
		if r.StartOffset < 0 || r.EndOffset > len(chunk) || r.StartOffset > r.EndOffset {
			return nil, fmt.Errorf("offsets [%d,%d] out of bounds for chunk of length %d: %w", r.StartOffset, r.EndOffset, len(chunk), reposerr.ErrMalformedMetadata)
		}
		return append([]byte(nil), chunk[r.StartOffset:r.EndOffset]...), nil
	}

	var out []byte
	out = append(out, chunks[r.StartChunk][r.StartOffset:]...)
	for i := r.StartChunk + 1; i < r.EndChunk; i++ {
		out = append(out, chunks[i]...)
	}
	out = append(out, chunks[r.EndChunk][:r.EndOffset]...)
	return out, nil
}
