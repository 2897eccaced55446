package restic

import (
	"context"
	"fmt"
	"path"

	"github.com/duskline/vaultreader/formats/reposerr"
	envres "github.com/duskline/vaultreader/internal/envelope/restic"
	"github.com/duskline/vaultreader/internal/reposfs"
	"github.com/duskline/vaultreader/log"
)

// Driver restores the latest snapshot of one opened restic repository.
type Driver struct {
	fsys *reposfs.FS
	env  *envres.Envelope
	cfg  *config
	idx  *repoIndex
}

// Open authenticates against a restic repository rooted at repoPath by
// trying every file under keys/ in turn until one unwraps under password.
func Open(_ context.Context, repoPath string, password []byte) (*Driver, error) {
	fsys, err := reposfs.Open(repoPath)
	if err != nil {
		return nil, fmt.Errorf("restic: %w", err)
	}

	env, err := unlockMasterKey(fsys, password)
	if err != nil {
		return nil, err
	}

	configBlob, err := fsys.ReadFile("config")
	if err != nil {
		return nil, fmt.Errorf("restic: reading config: %w", err)
	}
	configPlaintext, err := env.Decrypt(configBlob)
	if err != nil {
		return nil, fmt.Errorf("restic: decrypting config: %w", err)
	}
	cfg, err := decodeConfig(configPlaintext)
	if err != nil {
		return nil, err
	}

	idx, err := loadIndex(fsys, env)
	if err != nil {
		return nil, err
	}

	return &Driver{fsys: fsys, env: env, cfg: cfg, idx: idx}, nil
}

func unlockMasterKey(fsys *reposfs.FS, password []byte) (*envres.Envelope, error) {
	entries, err := fsys.ReadDir("keys")
	if err != nil {
		return nil, fmt.Errorf("restic: listing keys: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		raw, err := fsys.ReadFile(path.Join("keys", e.Name()))
		if err != nil {
			continue
		}
		kf, err := decodeKeyFile(raw)
		if err != nil {
			continue
		}
		enc, macK, macR, err := unwrapKeyFile(kf, password)
		if err != nil {
			continue
		}
		env, err := envres.New(enc, macK, macR)
		if err != nil {
			continue
		}
		return env, nil
	}
	return nil, reposerr.ErrInvalidPassword
}

func loadIndex(fsys *reposfs.FS, env *envres.Envelope) (*repoIndex, error) {
	entries, err := fsys.ReadDir("index")
	if err != nil {
		return nil, fmt.Errorf("restic: listing index: %w", err)
	}
	var docs []*repoIndex
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		blob, err := fsys.ReadFile(path.Join("index", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("restic: reading index %q: %w", e.Name(), err)
		}
		plaintext, err := env.DecryptAndDecompress(blob)
		if err != nil {
			return nil, fmt.Errorf("restic: decrypting index %q: %w", e.Name(), err)
		}
		doc, err := decodeIndexDoc(plaintext)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return mergeIndexes(docs), nil
}

// RestoreLatest resolves the most recent snapshot by its recorded time,
// walks its tree breadth-first, and writes every file it names flat below
// outputDir (restic repositories here are restored without directory
// structure, matching the reference tool's own flat single-pass writer).
func (d *Driver) RestoreLatest(ctx context.Context, outputDir string) error {
	snap, err := d.latestSnapshot()
	if err != nil {
		return err
	}

	blobs, err := d.walkTree(ctx, snap.Tree)
	if err != nil {
		return err
	}

	out, err := reposfs.NewOutputWriter(outputDir)
	if err != nil {
		return fmt.Errorf("restic: %w", err)
	}

	for _, b := range blobs {
		if b.Tree == nil {
			continue
		}
		for _, n := range b.Tree.Nodes {
			if n.Type != "file" {
				continue
			}
			data, err := concatContent(blobs, n.Content)
			if err != nil {
				return fmt.Errorf("restic: node %q: %w", n.Name, err)
			}
			if err := out.WriteFile(n.Name, data); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Driver) latestSnapshot() (*snapshot, error) {
	entries, err := d.fsys.ReadDir("snapshots")
	if err != nil {
		return nil, fmt.Errorf("restic: listing snapshots: %w", err)
	}

	var best *snapshot
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		blob, err := d.fsys.ReadFile(path.Join("snapshots", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("restic: reading snapshot %q: %w", e.Name(), err)
		}
		plaintext, err := d.env.DecryptAndDecompress(blob)
		if err != nil {
			return nil, fmt.Errorf("restic: decrypting snapshot %q: %w", e.Name(), err)
		}
		snap, err := decodeSnapshot(plaintext)
		if err != nil {
			return nil, err
		}
		if best == nil || snap.Time.After(best.Time) {
			best = snap
		}
	}
	if best == nil {
		return nil, reposerr.ErrNoSnapshot
	}
	log.Field("format", "restic").Field("tree", best.Tree).Message("selected latest snapshot")
	return best, nil
}

// walkTree performs a breadth-first walk of the blob DAG rooted at rootID,
// caching every visited blob exactly once and returning the accumulated
// cache keyed by blob id. The returned map carries no visitation order.
func (d *Driver) walkTree(ctx context.Context, rootID string) (map[string]blob, error) {
	cache := make(map[string]blob)
	visited := map[string]bool{rootID: true}
	queue := []string{rootID}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := queue[0]
		queue = queue[1:]

		b, err := d.loadBlobByID(id)
		if err != nil {
			return nil, fmt.Errorf("restic: loading blob %q: %w", id, err)
		}
		cache[id] = b

		if b.Tree == nil {
			continue
		}
		for _, n := range b.Tree.Nodes {
			if n.Subtree != nil && !visited[*n.Subtree] {
				visited[*n.Subtree] = true
				queue = append(queue, *n.Subtree)
			}
			for _, c := range n.Content {
				if !visited[c] {
					visited[c] = true
					queue = append(queue, c)
				}
			}
		}
	}
	return cache, nil
}

func (d *Driver) loadBlobByID(id string) (blob, error) {
	pack, bi, ok := d.idx.findPack(id)
	if !ok {
		return blob{}, fmt.Errorf("blob %q not found in index: %w", id, reposerr.ErrMalformedMetadata)
	}
	packFile, err := d.fsys.ReadFile(resolvePackPath(pack.ID))
	if err != nil {
		return blob{}, fmt.Errorf("reading pack %q: %w", pack.ID, err)
	}
	return loadBlob(d.env, packFile, *bi)
}

func resolvePackPath(id string) string {
	return path.Join("data", id[:2], id)
}

// concatContent concatenates the cached Data bytes of every blob id in
// order, the reassembly rule for a file node's content list.
func concatContent(cache map[string]blob, ids []string) ([]byte, error) {
	var out []byte
	for _, id := range ids {
		b, ok := cache[id]
		if !ok || b.Data == nil {
			return nil, fmt.Errorf("content blob %q not loaded", id)
		}
		out = append(out, b.Data...)
	}
	return out, nil
}
