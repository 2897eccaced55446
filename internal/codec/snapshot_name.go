package codec

import (
	"fmt"
	"time"
)

// blobbackupSnapshotLayout is the timestamp embedded in every blobbackup
// snapshot filename, e.g. "2023-11-02-14-30-05".
const blobbackupSnapshotLayout = "2006-01-02-15-04-05"

// ParseBlobbackupSnapshotName parses a blobbackup snapshot filename into the
// timestamp it encodes, so the newest snapshot can be picked by comparing
// parsed times rather than lexicographic filename order.
func ParseBlobbackupSnapshotName(name string) (time.Time, error) {
	t, err := time.Parse(blobbackupSnapshotLayout, name)
	if err != nil {
		return time.Time{}, fmt.Errorf("codec: invalid blobbackup snapshot name %q: %w", name, err)
	}
	return t, nil
}
