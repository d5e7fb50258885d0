// Package crypto implements the Chunk Decryptor: a stateless,
// parallelizable function that turns ciphertext for one chunk into
// plaintext, keyed by the per-file AES key and the chunk's position in the
// file. Each chunk is decrypted with AES-CTR, where the counter for chunk
// i starts at a fixed IV advanced by (i*CHUNK_SIZE)/16 AES blocks.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/arifainchtein/librespot-go/internal/streamerr"
)

// KeySize is the width of the per-file AES key and the base IV, both in
// bytes.
const KeySize = 16

// blockSize is the AES block size; one CTR counter increment covers this
// many plaintext/ciphertext bytes.
const blockSize = aes.BlockSize

// Decryptor decrypts chunk ciphertext for a single file key. It holds no
// per-chunk state, so the same Decryptor may be shared across goroutines
// decrypting different chunks concurrently.
type Decryptor struct {
	block  cipher.Block
	baseIV [KeySize]byte
}

// NewDecryptor builds a Decryptor for one file key and base IV. The feeder
// passes StandardIV, the protocol-wide constant IV, as the base IV.
func NewDecryptor(key [KeySize]byte, baseIV [KeySize]byte) (*Decryptor, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: new AES cipher: %w", err)
	}
	return &Decryptor{block: block, baseIV: baseIV}, nil
}

// Decrypt decrypts one chunk's ciphertext. expectedLen must equal
// len(ciphertext); a mismatch is a caller bug and is reported as
// ErrInvalidChunkSize rather than silently truncating or padding.
func (d *Decryptor) Decrypt(chunkIndex int, ciphertext []byte, expectedLen int) ([]byte, error) {
	if chunkIndex < 0 {
		return nil, fmt.Errorf("crypto: negative chunk index %d", chunkIndex)
	}
	if len(ciphertext) != expectedLen {
		return nil, fmt.Errorf("%w: chunk %d: got %d bytes, want %d", streamerr.ErrInvalidChunkSize, chunkIndex, len(ciphertext), expectedLen)
	}

	counter := d.counterForChunk(chunkIndex)
	stream := cipher.NewCTR(d.block, counter[:])

	plaintext := make([]byte, len(ciphertext))
	stream.XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}

// counterForChunk derives the 16-byte initial counter block for chunk i by
// adding (i*CHUNK_SIZE)/16 to the base IV, treating the IV as a big-endian
// 128-bit integer.
func (d *Decryptor) counterForChunk(chunkIndex int) [KeySize]byte {
	blocksPerChunk := uint64(ChunkSize / blockSize)
	advance := blocksPerChunk * uint64(chunkIndex)
	return addBlocksBigEndian(d.baseIV, advance)
}

// addBlocksBigEndian returns iv + n, wrapping on overflow, treating iv as a
// 128-bit big-endian unsigned integer.
func addBlocksBigEndian(iv [KeySize]byte, n uint64) [KeySize]byte {
	var out [KeySize]byte
	copy(out[:], iv[:])

	carry := n
	for i := KeySize - 1; i >= 0 && carry > 0; i-- {
		sum := uint64(out[i]) + carry
		out[i] = byte(sum)
		carry = sum >> 8
	}
	return out
}
