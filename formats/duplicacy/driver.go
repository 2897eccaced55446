package duplicacy

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/duskline/vaultreader/formats/reposerr"
	"github.com/duskline/vaultreader/internal/reposfs"
	"github.com/duskline/vaultreader/log"
)

// Driver restores the latest revision of every snapshot id held by one
// opened duplicacy repository.
type Driver struct {
	fsys *reposfs.FS
	cfg  *config
}

// Open authenticates against a duplicacy repository rooted at repoPath. A
// nil or empty password is valid for a repository whose config is stored
// in plaintext.
func Open(_ context.Context, repoPath string, password []byte) (*Driver, error) {
	fsys, err := reposfs.Open(repoPath)
	if err != nil {
		return nil, fmt.Errorf("duplicacy: %w", err)
	}
	raw, err := fsys.ReadFile("config")
	if err != nil {
		return nil, fmt.Errorf("duplicacy: reading config: %w", err)
	}
	cfg, err := decodeConfig(raw, password)
	if err != nil {
		return nil, err
	}
	return &Driver{fsys: fsys, cfg: cfg}, nil
}

// RestoreLatest writes the latest revision of every snapshot id in the
// repository below outputDir/<id>/, skipping symlinks and verifying every
// restored file's content against its recorded Blake2b-256 hash.
func (d *Driver) RestoreLatest(ctx context.Context, outputDir string) error {
	ids, err := d.listSnapshotIDs()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return reposerr.ErrNoSnapshot
	}

	out, err := reposfs.NewOutputWriter(outputDir)
	if err != nil {
		return fmt.Errorf("duplicacy: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		rev, err := d.latestRevision(id)
		if err != nil {
			return fmt.Errorf("duplicacy: snapshot %q: %w", id, err)
		}
		if err := d.restoreRevision(ctx, out, id, rev); err != nil {
			return fmt.Errorf("duplicacy: snapshot %q revision %d: %w", id, rev.Revision, err)
		}
	}
	return nil
}

func (d *Driver) listSnapshotIDs() ([]string, error) {
	entries, err := d.fsys.ReadDir("snapshots")
	if err != nil {
		return nil, fmt.Errorf("duplicacy: listing snapshots: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// latestRevision loads every revision file under snapshots/<id>/ and
// returns the one with the highest Revision number.
func (d *Driver) latestRevision(id string) (*revision, error) {
	entries, err := d.fsys.ReadDir(path.Join("snapshots", id))
	if err != nil {
		return nil, fmt.Errorf("listing revisions: %w", err)
	}

	var best *revision
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		relPath := path.Join("snapshots", id, e.Name())
		rv, err := d.loadRevision(relPath)
		if err != nil {
			return nil, err
		}
		if best == nil || rv.Revision > best.Revision {
			best = rv
		}
	}
	if best == nil {
		return nil, reposerr.ErrNoSnapshot
	}
	log.Field("format", "duplicacy").Field("snapshot", id).Field("revision", best.Revision).Message("selected latest revision")
	return best, nil
}

// revisionDerivation returns the last three path components of relPath
// joined by "/", the derivation string duplicacy uses as the Blake2b MAC key
// when deriving a revision file's decryption key from file_key.
func revisionDerivation(relPath string) string {
	parts := strings.Split(filepathToSlash(relPath), "/")
	if len(parts) <= 3 {
		return strings.Join(parts, "/")
	}
	return strings.Join(parts[len(parts)-3:], "/")
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, string(os.PathSeparator), "/")
}

func (d *Driver) loadRevision(relPath string) (*revision, error) {
	blob, err := d.fsys.ReadFile(relPath)
	if err != nil {
		return nil, fmt.Errorf("reading revision %q: %w", relPath, err)
	}
	env, err := fileEnvelope(d.cfg, revisionDerivation(relPath))
	if err != nil {
		return nil, err
	}
	plaintext, err := env.Decrypt(blob)
	if err != nil {
		return nil, fmt.Errorf("decrypting revision %q: %w", relPath, err)
	}
	return decodeRevision(plaintext)
}

// restoreRevision reassembles every regular file named by rev's entry list
// and writes it below out rooted at outputDir/<id>/.
func (d *Driver) restoreRevision(ctx context.Context, out *reposfs.OutputWriter, id string, rev *revision) error {
	entries, err := d.loadEntries(rev)
	if err != nil {
		return fmt.Errorf("loading entries: %w", err)
	}
	dataHashes, err := d.loadDataChunkHashes(rev)
	if err != nil {
		return fmt.Errorf("loading chunk index: %w", err)
	}

	dataChunks := make([][]byte, len(dataHashes))
	loaded := make(map[int]bool, len(dataHashes))

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.isSymlink() || e.isDir() {
			continue
		}
		if err := d.loadRange(dataChunks, loaded, dataHashes, e.StartChunk, e.EndChunk); err != nil {
			return fmt.Errorf("entry %q: %w", e.Path, err)
		}
		data, err := reassembleEntry(dataChunks, e)
		if err != nil {
			return fmt.Errorf("entry %q: %w", e.Path, err)
		}
		if len(e.Hash) > 0 {
			sum := blake2b.Sum256(data)
			if subtle.ConstantTimeCompare(sum[:], e.Hash) != 1 {
				log.Error(reposerr.ErrMismatchedHash).Field("format", "duplicacy").Messagef("entry %q failed content verification", e.Path)
				return fmt.Errorf("entry %q: %w", e.Path, reposerr.ErrMismatchedHash)
			}
		}
		if err := out.WriteFile(path.Join(id, e.Path), data); err != nil {
			return err
		}
	}
	return nil
}

// loadRange ensures every data chunk in [start, end] has been decrypted
// into dataChunks, fetching only chunks not already cached.
func (d *Driver) loadRange(dataChunks [][]byte, loaded map[int]bool, hashes []string, start, end int64) error {
	if start < 0 || end >= int64(len(hashes)) || start > end {
		return fmt.Errorf("chunk range [%d,%d] out of bounds for %d chunks: %w", start, end, len(hashes), reposerr.ErrMalformedMetadata)
	}
	for i := start; i <= end; i++ {
		if loaded[int(i)] {
			continue
		}
		data, err := d.loadDataChunk(hashes[i])
		if err != nil {
			return err
		}
		dataChunks[i] = data
		loaded[int(i)] = true
	}
	return nil
}

func (d *Driver) loadDataChunk(hexHash string) ([]byte, error) {
	relPath, err := resolveChunkPath(d.cfg, hexHash)
	if err != nil {
		return nil, err
	}
	blob, err := d.fsys.ReadFile(relPath)
	if err != nil {
		return nil, fmt.Errorf("reading data chunk %q: %w", hexHash, err)
	}
	env, err := chunkEnvelope(d.cfg, hashBytes(hexHash))
	if err != nil {
		return nil, err
	}
	return env.Decrypt(blob)
}

// loadEntries decrypts every entry-list chunk named by rev.Files and
// concatenates the entries each one decodes to, preserving order.
func (d *Driver) loadEntries(rev *revision) ([]entry, error) {
	var all []entry
	for _, hexHash := range rev.Files {
		relPath, err := resolveChunkPath(d.cfg, hexHash)
		if err != nil {
			return nil, err
		}
		blob, err := d.fsys.ReadFile(relPath)
		if err != nil {
			return nil, fmt.Errorf("reading entry-list chunk %q: %w", hexHash, err)
		}
		env, err := chunkEnvelope(d.cfg, hashBytes(hexHash))
		if err != nil {
			return nil, err
		}
		plaintext, err := env.Decrypt(blob)
		if err != nil {
			return nil, fmt.Errorf("decrypting entry-list chunk %q: %w", hexHash, err)
		}
		chunkEntries, err := decodeEntries(plaintext)
		if err != nil {
			return nil, err
		}
		all = append(all, chunkEntries...)
	}
	return all, nil
}

// loadDataChunkHashes decrypts every chunk-index document named by
// rev.Chunks and flattens their hash lists into one ordered slice.
func (d *Driver) loadDataChunkHashes(rev *revision) ([]string, error) {
	var all []string
	for _, hexHash := range rev.Chunks {
		relPath, err := resolveChunkPath(d.cfg, hexHash)
		if err != nil {
			return nil, err
		}
		blob, err := d.fsys.ReadFile(relPath)
		if err != nil {
			return nil, fmt.Errorf("reading chunk-index %q: %w", hexHash, err)
		}
		env, err := chunkEnvelope(d.cfg, hashBytes(hexHash))
		if err != nil {
			return nil, err
		}
		plaintext, err := env.Decrypt(blob)
		if err != nil {
			return nil, fmt.Errorf("decrypting chunk-index %q: %w", hexHash, err)
		}
		idx, err := decodeIndex(plaintext)
		if err != nil {
			return nil, err
		}
		all = append(all, idx.Hashes...)
	}
	return all, nil
}

func hashBytes(hexHash string) []byte {
	b, _ := hex.DecodeString(hexHash)
	return b
}

// reassembleEntry concatenates the byte range [e.StartChunk:e.StartOffset,
// e.EndChunk:e.EndOffset) across the positionally addressed data chunks.
func reassembleEntry(chunks [][]byte, e entry) ([]byte, error) {
	if e.StartChunk == e.EndChunk {
		chunk := chunks[e.StartChunk]
		if e.StartOffset < 0 || e.EndOffset > int64(len(chunk)) || e.StartOffset > e.EndOffset {
			return nil, fmt.Errorf("offsets [%d,%d] out of bounds for chunk of length %d: %w", e.StartOffset, e.EndOffset, len(chunk), reposerr.ErrMalformedMetadata)
		}
		return append([]byte(nil), chunk[e.StartOffset:e.EndOffset]...), nil
	}
	var out []byte
	out = append(out, chunks[e.StartChunk][e.StartOffset:]...)
	for i := e.StartChunk + 1; i < e.EndChunk; i++ {
		out = append(out, chunks[i]...)
	}
	out = append(out, chunks[e.EndChunk][:e.EndOffset]...)
	return out, nil
}
