package knoxite

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/duskline/vaultreader/formats/reposerr"
	envkx "github.com/duskline/vaultreader/internal/envelope/knoxite"
	"github.com/duskline/vaultreader/internal/reposfs"
	"github.com/duskline/vaultreader/log"
)

// Driver restores the latest snapshot of every volume in one opened
// knoxite repository.
type Driver struct {
	fsys *reposfs.FS
	cfg  *config
	keys *envkx.Envelope
}

// Open authenticates against a knoxite repository rooted at repoPath.
func Open(_ context.Context, repoPath string, password []byte) (*Driver, error) {
	fsys, err := reposfs.Open(repoPath)
	if err != nil {
		return nil, fmt.Errorf("knoxite: %w", err)
	}
	raw, err := fsys.ReadFile("repository.knoxite")
	if err != nil {
		return nil, fmt.Errorf("knoxite: reading config: %w", err)
	}
	cfg, err := loadConfig(raw, password)
	if err != nil {
		return nil, fmt.Errorf("knoxite: %w: %v", reposerr.ErrInvalidPassword, err)
	}
	return &Driver{fsys: fsys, cfg: cfg, keys: envkx.NewFromKey(cfg.Key)}, nil
}

// RestoreLatest writes the most recent snapshot of every volume below
// outputDir/<volume name>/, creating directories, writing regular files by
// concatenating their chunks in order, and silently skipping symlinks.
func (d *Driver) RestoreLatest(ctx context.Context, outputDir string) error {
	if len(d.cfg.Volumes) == 0 {
		return reposerr.ErrNoSnapshot
	}

	out, err := reposfs.NewOutputWriter(outputDir)
	if err != nil {
		return fmt.Errorf("knoxite: %w", err)
	}

	for _, vol := range d.cfg.Volumes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(vol.Snapshots) == 0 {
			continue
		}
		latestID := vol.Snapshots[len(vol.Snapshots)-1]
		snap, err := d.loadSnapshot(latestID)
		if err != nil {
			return fmt.Errorf("knoxite: volume %q: %w", vol.Name, err)
		}
		log.Field("format", "knoxite").Field("volume", vol.Name).Field("snapshot", latestID).Message("selected latest snapshot")
		if err := d.restoreSnapshot(ctx, out, vol.Name, snap); err != nil {
			return fmt.Errorf("knoxite: volume %q: %w", vol.Name, err)
		}
	}
	return nil
}

func (d *Driver) loadSnapshot(id string) (*snapshot, error) {
	blob, err := d.fsys.ReadFile(path.Join("snapshots", id))
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %q: %w", id, err)
	}
	plaintext, err := d.keys.DecryptAndDecompress(blob)
	if err != nil {
		return nil, fmt.Errorf("decrypting snapshot %q: %w", id, err)
	}
	return decodeSnapshot(plaintext)
}

func (d *Driver) restoreSnapshot(ctx context.Context, out *reposfs.OutputWriter, volumeName string, snap *snapshot) error {
	for name, a := range snap.Archives {
		if err := ctx.Err(); err != nil {
			return err
		}
		relPath := path.Join(volumeName, strings.TrimPrefix(a.Path, "/"))
		switch a.Type {
		case archiveTypeDirectory:
			if err := out.MkdirAll(relPath); err != nil {
				return err
			}
		case archiveTypeSymlink:
			// knoxite symlinks are not recreated; skip entirely.
			continue
		case archiveTypeFile:
			data, err := d.readChunks(a.Chunks)
			if err != nil {
				return fmt.Errorf("archive %q: %w", name, err)
			}
			if err := out.WriteFile(relPath, data); err != nil {
				return err
			}
		default:
			return fmt.Errorf("archive %q: unknown archive type %d: %w", name, a.Type, reposerr.ErrMalformedMetadata)
		}
	}
	return nil
}

// readChunks decrypts every chunk named by refs in order and concatenates
// their plaintext. knoxite's reference implementation reads every data
// chunk as decrypt-only regardless of an archive's encrypted/compressed
// flags, so this engine does the same.
func (d *Driver) readChunks(refs []chunkRef) ([]byte, error) {
	var out []byte
	for _, ref := range refs {
		relPath := resolveChunkPath(ref.Hash)
		blob, err := d.fsys.ReadFile(relPath)
		if err != nil {
			return nil, fmt.Errorf("reading chunk %q: %w", ref.Hash, err)
		}
		plaintext, err := d.keys.Decrypt(blob)
		if err != nil {
			return nil, fmt.Errorf("decrypting chunk %q: %w", ref.Hash, err)
		}
		out = append(out, plaintext...)
	}
	return out, nil
}

// resolveChunkPath computes chunks/<hash[0:2]>/<hash[2:4]>/<hash>.0_1, the
// literal ".0_1" suffix knoxite appends to every chunk filename.
func resolveChunkPath(hash string) string {
	if len(hash) < 4 {
		return path.Join("chunks", hash+".0_1")
	}
	return path.Join("chunks", hash[0:2], hash[2:4], hash+".0_1")
}
