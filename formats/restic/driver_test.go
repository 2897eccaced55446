package restic

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/poly1305"

	envres "github.com/duskline/vaultreader/internal/envelope/restic"
	"github.com/duskline/vaultreader/internal/kdf"
)

type resticKeys struct {
	enc, macK, macR []byte
}

func newResticKeys(t *testing.T) resticKeys {
	t.Helper()
	k := resticKeys{enc: make([]byte, 32), macK: make([]byte, 16), macR: make([]byte, 16)}
	for _, b := range [][]byte{k.enc, k.macK, k.macR} {
		_, err := rand.Read(b)
		require.NoError(t, err)
	}
	return k
}

// sealRestic builds restic's legacy iv+ciphertext+tag framing: AES-256-CTR
// over plaintext, authenticated with a Poly1305-AES tag whose "s" key half
// is the AES-ECB encryption of the nonce under the MAC sub-key.
func sealRestic(t *testing.T, k resticKeys, plaintext []byte) []byte {
	t.Helper()

	nonce := make([]byte, ivSize)
	_, err := rand.Read(nonce)
	require.NoError(t, err)

	encBlock, err := aes.NewCipher(k.enc)
	require.NoError(t, err)
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCTR(encBlock, nonce).XORKeyStream(ciphertext, plaintext)

	macBlock, err := aes.NewCipher(k.macK)
	require.NoError(t, err)
	var s [16]byte
	macBlock.Encrypt(s[:], nonce)

	var polyKey [32]byte
	copy(polyKey[:16], k.macR)
	copy(polyKey[16:], s[:])

	var tag [16]byte
	poly1305.Sum(&tag, ciphertext, &polyKey)

	out := append([]byte{}, nonce...)
	out = append(out, ciphertext...)
	out = append(out, tag[:]...)
	return out
}

func zstdCompress(t *testing.T, raw []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	out := enc.EncodeAll(raw, nil)
	require.NoError(t, enc.Close())
	return out
}

// buildRepo writes a minimal restic repository under dir with one key file,
// a config, one pack holding a data blob and a tree blob, one merged index
// document, and one snapshot pointing at the tree.
func buildRepo(t *testing.T, dir string) []byte {
	t.Helper()

	password := []byte("restic-test-password")
	keys := newResticKeys(t)

	const (
		logN = 12
		r    = 8
		p    = 1
	)
	salt := make([]byte, 16)
	_, err := rand.Read(salt)
	require.NoError(t, err)

	derived, err := kdf.Scrypt(password, salt, 1<<logN, r, p, 64)
	require.NoError(t, err)
	wrapKeys := resticKeys{enc: derived[:32], macK: derived[32:48], macR: derived[48:64]}

	masterDoc := struct {
		MAC struct {
			K string `json:"k"`
			R string `json:"r"`
		} `json:"mac"`
		Encrypt string `json:"encrypt"`
	}{}
	masterDoc.MAC.K = base64.StdEncoding.EncodeToString(keys.macK)
	masterDoc.MAC.R = base64.StdEncoding.EncodeToString(keys.macR)
	masterDoc.Encrypt = base64.StdEncoding.EncodeToString(keys.enc)
	masterDocJSON, err := json.Marshal(masterDoc)
	require.NoError(t, err)

	wrappedData := sealRestic(t, wrapKeys, masterDocJSON)

	kf := keyFile{
		Created:  time.Now().UTC().Format(time.RFC3339),
		Username: "tester",
		Hostname: "testhost",
		KDF:      "scrypt",
		N:        1 << logN,
		R:        r,
		P:        p,
		SaltB64:  base64.StdEncoding.EncodeToString(salt),
		DataB64:  base64.StdEncoding.EncodeToString(wrappedData),
	}
	kfJSON, err := json.Marshal(kf)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "keys"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keys", "mykey"), kfJSON, 0o644))

	cfg := config{Version: 2, ID: "repo-id-1", ChunkerPolynomial: "deadbeef"}
	cfgJSON, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config"), sealRestic(t, keys, cfgJSON), 0o644))

	content := []byte("restic legacy-format restored content")
	dataSum := sha256.Sum256(content)
	dataID := hex.EncodeToString(dataSum[:])
	dataRaw := sealRestic(t, keys, content)

	treeJSON, err := json.Marshal(tree{Nodes: []node{
		{Name: "restored.txt", Type: "file", Content: []string{dataID}},
	}})
	require.NoError(t, err)
	treeSum := sha256.Sum256(treeJSON)
	treeID := hex.EncodeToString(treeSum[:])
	treeCompressed := zstdCompress(t, treeJSON)
	treeRaw := sealRestic(t, keys, treeCompressed)

	packBytes := append([]byte{}, dataRaw...)
	packBytes = append(packBytes, treeRaw...)
	packSum := sha256.Sum256(packBytes)
	packID := hex.EncodeToString(packSum[:])

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data", packID[:2]), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", packID[:2], packID), packBytes, 0o644))

	uncompressedTreeLen := uint64(len(treeJSON))
	pIdx := repoIndex{
		Packs: []packIndex{
			{
				ID: packID,
				Blobs: []blobIndex{
					{ID: dataID, Type: blobTypeData, Offset: 0, Length: uint64(len(dataRaw))},
					{ID: treeID, Type: blobTypeTree, Offset: uint64(len(dataRaw)), Length: uint64(len(treeRaw)), UncompressedLength: &uncompressedTreeLen},
				},
			},
		},
	}
	idxJSON, err := json.Marshal(pIdx)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "index"), 0o755))
	idxBlob := sealRestic(t, keys, withTypeByte(zstdCompress(t, idxJSON)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index", "idx1"), idxBlob, 0o644))

	snap := snapshot{
		Time:     time.Now().UTC(),
		Tree:     treeID,
		Paths:    []string{"/home/tester"},
		Hostname: "testhost",
		Username: "tester",
	}
	snapJSON, err := json.Marshal(snap)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "snapshots"), 0o755))
	snapBlob := sealRestic(t, keys, withTypeByte(zstdCompress(t, snapJSON)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snapshots", "snap1"), snapBlob, 0o644))

	return password
}

func withTypeByte(compressed []byte) []byte {
	return append([]byte{0x02}, compressed...)
}

func TestDriverRestoreLatest(t *testing.T) {
	t.Parallel()

	repoDir := t.TempDir()
	password := buildRepo(t, repoDir)

	driver, err := Open(context.Background(), repoDir, password)
	require.NoError(t, err)

	outDir := t.TempDir()
	require.NoError(t, driver.RestoreLatest(context.Background(), outDir))

	data, err := os.ReadFile(filepath.Join(outDir, "restored.txt"))
	require.NoError(t, err)
	require.Equal(t, "restic legacy-format restored content", string(data))
}

func TestDriverOpenWrongPasswordFails(t *testing.T) {
	t.Parallel()

	repoDir := t.TempDir()
	buildRepo(t, repoDir)

	_, err := Open(context.Background(), repoDir, []byte("not the password"))
	require.Error(t, err)
}

func TestFindPackLinearSearch(t *testing.T) {
	t.Parallel()

	idx := &repoIndex{Packs: []packIndex{
		{ID: "pack-a", Blobs: []blobIndex{{ID: "blob-1"}, {ID: "blob-2"}}},
		{ID: "pack-b", Blobs: []blobIndex{{ID: "blob-3"}}},
	}}

	pack, bi, ok := idx.findPack("blob-3")
	require.True(t, ok)
	require.Equal(t, "pack-b", pack.ID)
	require.Equal(t, "blob-3", bi.ID)

	_, _, ok = idx.findPack("missing")
	require.False(t, ok)
}

func TestMergeIndexesConcatenates(t *testing.T) {
	t.Parallel()

	a := &repoIndex{Packs: []packIndex{{ID: "a"}}}
	b := &repoIndex{Packs: []packIndex{{ID: "b"}}, Supersedes: []string{"old"}}

	merged := mergeIndexes([]*repoIndex{a, b})
	require.Len(t, merged.Packs, 2)
	require.Equal(t, []string{"old"}, merged.Supersedes)
}

func TestReadPackHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	keys := newResticKeys(t)

	var hash1, hash2 [32]byte
	copy(hash1[:], []byte("0123456789abcdef0123456789abcde"))
	copy(hash2[:], []byte("fedcba9876543210fedcba9876543210"))

	var header []byte
	header = append(header, headerBlobTypeData)
	header = append(header, le32(1000)...)
	header = append(header, hash1[:]...)
	header = append(header, headerBlobTypeTreeCompr)
	header = append(header, le32(500)...)
	header = append(header, le32(200)...)
	header = append(header, hash2[:]...)

	encryptedHeader := sealRestic(t, keys, header)

	packFile := append([]byte{}, encryptedHeader...)
	packFile = append(packFile, le32(uint32(len(encryptedHeader)))...)

	env, err := envres.New(keys.enc, keys.macK, keys.macR)
	require.NoError(t, err)

	records, err := ReadPackHeader(env, packFile)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, uint8(headerBlobTypeData), records[0].Type)
	require.Equal(t, uint32(1000), records[0].EncryptedLength)
	require.Equal(t, uint8(headerBlobTypeTreeCompr), records[1].Type)
	require.Equal(t, uint32(500), records[1].EncryptedLength)
	require.Equal(t, uint32(200), records[1].PlaintextLength)
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
