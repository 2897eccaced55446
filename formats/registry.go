package formats

import (
	"context"
	"fmt"

	"github.com/duskline/vaultreader/formats/blobbackup"
	"github.com/duskline/vaultreader/formats/duplicacy"
	"github.com/duskline/vaultreader/formats/knoxite"
	"github.com/duskline/vaultreader/formats/restic"
)

// Format identifies one of the supported repository on-disk layouts.
type Format string

const (
	Blobbackup Format = "blobbackup"
	Duplicacy  Format = "duplicacy"
	Knoxite    Format = "knoxite"
	Restic     Format = "restic"
)

// Open authenticates against the repository at repoPath using password and
// returns a Driver ready to restore its latest snapshot. The repository's
// on-disk layout must match format; Open does not attempt to auto-detect it.
func Open(ctx context.Context, format Format, repoPath string, password []byte) (Driver, error) {
	switch format {
	case Blobbackup:
		return blobbackup.Open(ctx, repoPath, password)
	case Duplicacy:
		return duplicacy.Open(ctx, repoPath, password)
	case Knoxite:
		return knoxite.Open(ctx, repoPath, password)
	case Restic:
		return restic.Open(ctx, repoPath, password)
	default:
		return nil, fmt.Errorf("formats: unknown repository format %q", format)
	}
}
