package formats

import "context"

// Driver restores the latest snapshot of one opened repository into a
// plaintext file tree, writing below outputDir. Each format package
// supplies its own Driver implementation; callers never depend on a
// concrete type.
type Driver interface {
	// RestoreLatest resolves the repository's most recent snapshot,
	// decrypts every chunk it references, and writes the reassembled files
	// below outputDir. The knoxite implementation does not hash-verify
	// chunks and reads a chunk once per archive that names it.
	RestoreLatest(ctx context.Context, outputDir string) error
}
