// Package vaultreader implements a read-only engine for content-addressed,
// encrypted, deduplicating backup repositories.
//
// It understands four on-disk formats (blobbackup, duplicacy, knoxite and
// restic), each exposed as a Driver obtained through formats.Open. A Driver
// resolves the most recent snapshot of its repository to an ordered chunk
// graph, decrypts every referenced chunk, and reassembles file bytes across
// chunk boundaries. The blobbackup, duplicacy and restic drivers verify
// content against its recorded hash; the knoxite driver decrypts chunks
// without any content check and reads a chunk again for every archive that
// names it.
//
// The package is read-only: it never writes back to a repository, never
// repairs damaged state, and never attempts garbage collection or pack
// rewriting. Its only output is the plaintext file tree of a restored
// snapshot.
package vaultreader
