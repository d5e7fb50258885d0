package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"testing"

	"github.com/arifainchtein/librespot-go/internal/streamerr"
	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) [KeySize]byte {
	t.Helper()
	var k [KeySize]byte
	_, err := rand.Read(k[:])
	require.NoError(t, err)
	return k
}

// referenceEncrypt encrypts the whole plaintext in one shot with CTR mode
// starting at baseIV, mirroring how a real file would have been encrypted
// before chunking; this is the independent oracle P3 checks against.
func referenceEncrypt(t *testing.T, key, baseIV [KeySize]byte, plaintext []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key[:])
	require.NoError(t, err)
	stream := cipher.NewCTR(block, baseIV[:])
	ct := make([]byte, len(plaintext))
	stream.XORKeyStream(ct, plaintext)
	return ct
}

func TestDecryptChunkMatchesWholeFileCTR(t *testing.T) {
	key := randomKey(t)
	baseIV := randomKey(t)

	plaintext := make([]byte, ChunkSize*3+1234)
	_, err := rand.Read(plaintext)
	require.NoError(t, err)

	ciphertext := referenceEncrypt(t, key, baseIV, plaintext)

	d, err := NewDecryptor(key, baseIV)
	require.NoError(t, err)

	chunks := splitChunks(ciphertext, ChunkSize)
	var recovered []byte
	for i, chunk := range chunks {
		pt, err := d.Decrypt(i, chunk, len(chunk))
		require.NoError(t, err)
		recovered = append(recovered, pt...)
	}

	require.Equal(t, plaintext, recovered)
}

func TestDecryptRejectsWrongLength(t *testing.T) {
	key := randomKey(t)
	baseIV := randomKey(t)
	d, err := NewDecryptor(key, baseIV)
	require.NoError(t, err)

	_, err = d.Decrypt(0, make([]byte, 10), 20)
	require.ErrorIs(t, err, streamerr.ErrInvalidChunkSize)
}

func TestDecryptIsOrderIndependentAcrossChunks(t *testing.T) {
	key := randomKey(t)
	baseIV := randomKey(t)
	plaintext := make([]byte, ChunkSize*4)
	_, err := rand.Read(plaintext)
	require.NoError(t, err)
	ciphertext := referenceEncrypt(t, key, baseIV, plaintext)
	chunks := splitChunks(ciphertext, ChunkSize)

	d, err := NewDecryptor(key, baseIV)
	require.NoError(t, err)

	// Decrypt chunk 3 before chunk 0: no shared state means no ordering
	// requirement.
	pt3, err := d.Decrypt(3, chunks[3], len(chunks[3]))
	require.NoError(t, err)
	pt0, err := d.Decrypt(0, chunks[0], len(chunks[0]))
	require.NoError(t, err)

	require.Equal(t, plaintext[3*ChunkSize:4*ChunkSize], pt3)
	require.Equal(t, plaintext[0:ChunkSize], pt0)
}

func splitChunks(data []byte, size int) [][]byte {
	var out [][]byte
	for i := 0; i < len(data); i += size {
		end := i + size
		if end > len(data) {
			end = len(data)
		}
		out = append(out, data[i:end])
	}
	return out
}
