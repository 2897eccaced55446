package blobbackup

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"github.com/duskline/vaultreader/formats/reposerr"
)

func sealBlob(t *testing.T, key, plaintext []byte) []byte {
	t.Helper()

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	require.NoError(t, err)

	nonce := make([]byte, nonceSize)
	_, err = rand.Read(nonce)
	require.NoError(t, err)

	return append(nonce, aead.Seal(nil, nonce, plaintext, nil)...)
}

func TestEnvelopeDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	env, err := New(key)
	require.NoError(t, err)

	blob := sealBlob(t, key, []byte("hello blobbackup"))
	plaintext, err := env.Decrypt(blob)
	require.NoError(t, err)
	require.Equal(t, []byte("hello blobbackup"), plaintext)
}

func TestEnvelopeDecryptAndDecompress(t *testing.T) {
	t.Parallel()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll([]byte("compress me please"), nil)
	require.NoError(t, enc.Close())

	env, err := New(key)
	require.NoError(t, err)

	blob := sealBlob(t, key, compressed)
	out, err := env.DecryptAndDecompress(blob)
	require.NoError(t, err)
	require.Equal(t, []byte("compress me please"), out)
}

func TestEnvelopeDecryptTooShort(t *testing.T) {
	t.Parallel()

	key := make([]byte, 32)
	env, err := New(key)
	require.NoError(t, err)

	_, err = env.Decrypt([]byte{0x01, 0x02})
	require.ErrorIs(t, err, reposerr.ErrBadMagic)
}

func TestEnvelopeDecryptWrongKeyFailsAuth(t *testing.T) {
	t.Parallel()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	blob := sealBlob(t, key, []byte("hello blobbackup"))

	otherKey := make([]byte, 32)
	_, err = rand.Read(otherKey)
	require.NoError(t, err)

	env, err := New(otherKey)
	require.NoError(t, err)

	_, err = env.Decrypt(blob)
	require.ErrorIs(t, err, reposerr.ErrInvalidAuth)
}
