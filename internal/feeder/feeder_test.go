package feeder

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arifainchtein/librespot-go/internal/cdn"
	"github.com/arifainchtein/librespot-go/internal/channel"
	"github.com/arifainchtein/librespot-go/internal/crypto"
	"github.com/arifainchtein/librespot-go/internal/metadata"
	"github.com/arifainchtein/librespot-go/internal/streamerr"
)

type fakeMetadata struct {
	item PlayableItem
	err  error
}

func (f *fakeMetadata) Resolve(ctx context.Context, id metadata.TrackID) (PlayableItem, error) {
	return f.item, f.err
}

type fakeAudioKey struct {
	key [crypto.KeySize]byte
	err error
}

func (f *fakeAudioKey) GetFileKey(ctx context.Context, trackID metadata.TrackID, fileID metadata.FileID) ([crypto.KeySize]byte, error) {
	return f.key, f.err
}

func encryptWithStandardIV(t *testing.T, key [crypto.KeySize]byte, plaintext []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key[:])
	require.NoError(t, err)
	s := cipher.NewCTR(block, crypto.StandardIV[:])
	ct := make([]byte, len(plaintext))
	s.XORKeyStream(ct, plaintext)
	return ct
}

func randomKey(t *testing.T) [crypto.KeySize]byte {
	t.Helper()
	var k [crypto.KeySize]byte
	_, err := rand.Read(k[:])
	require.NoError(t, err)
	return k
}

func testTrackID(t *testing.T) metadata.TrackID {
	t.Helper()
	id, err := metadata.NewTrackID(make([]byte, 16))
	require.NoError(t, err)
	return id
}

// TestLoadViaChannelSingleChunk builds one synthetic encrypted file short
// enough to fit entirely inside chunk 0 (header + preamble + normalization
// + short audio tail) and checks the full channel-path Load algorithm:
// metadata -> format selection -> audio key -> chunk 0 header parse ->
// buffer sizing -> preamble skip -> normalization read.
func TestLoadViaChannelSingleChunk(t *testing.T) {
	key := randomKey(t)
	fileID := metadata.FileID{7}
	trackID := testTrackID(t)

	audioTail := []byte("decoded-audio-bytes-go-here")
	normalization := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	preamble := make([]byte, crypto.PreambleSkip)
	for i := range preamble {
		preamble[i] = crypto.PreambleByte
	}
	content := append(append(append([]byte{}, preamble...), normalization...), audioTail...)
	// The header records the size in 4-byte words, so pad to a whole word.
	content = append(content, make([]byte, (4-len(content)%4)%4)...)

	header := buildHeaderBlock(int64(len(content)))
	chunk0Plaintext := append(append([]byte{}, header...), content...)
	chunk0Ciphertext := encryptWithStandardIV(t, key, chunk0Plaintext)

	store := channel.NewMapStore()
	store.Put(fileID, [][]byte{chunk0Ciphertext})
	channelClient := channel.NewClient(store, nil)

	item := PlayableItem{
		ID:    trackID,
		Files: []metadata.AudioFile{{ID: fileID, Format: metadata.FormatVorbis160}},
	}

	f := New(Deps{
		Metadata:  &fakeMetadata{item: item},
		AudioKey:  &fakeAudioKey{key: key},
		Channel:   channelClient,
		ChunkSize: 1 << 20, // large enough that this synthetic file is one chunk
	})

	loaded, err := f.Load(context.Background(), trackID, metadata.Quality160, false)
	require.NoError(t, err)
	defer loaded.Stream.Close()

	require.Equal(t, normalization, loaded.NormalizationData[:])

	got := make([]byte, len(audioTail))
	_, err = io.ReadFull(loaded.Stream, got)
	require.NoError(t, err)
	require.Equal(t, audioTail, got)
}

func TestLoadFailsWithMetadataNotFound(t *testing.T) {
	f := New(Deps{
		Metadata: &fakeMetadata{err: errors.New("boom")},
		AudioKey: &fakeAudioKey{},
	})

	_, err := f.Load(context.Background(), testTrackID(t), metadata.Quality160, false)
	require.ErrorIs(t, err, streamerr.ErrMetadataNotFound)
}

func TestLoadFailsWithUnsupportedFormatWhenNoVorbisFile(t *testing.T) {
	item := PlayableItem{
		ID:    testTrackID(t),
		Files: []metadata.AudioFile{{ID: metadata.FileID{1}, Format: metadata.FormatMP3_320}},
	}
	f := New(Deps{
		Metadata: &fakeMetadata{item: item},
		AudioKey: &fakeAudioKey{},
	})

	_, err := f.Load(context.Background(), testTrackID(t), metadata.Quality320, false)
	require.ErrorIs(t, err, streamerr.ErrUnsupportedFormat)
}

func TestLoadFailsWithNoAudioKey(t *testing.T) {
	item := PlayableItem{
		ID:    testTrackID(t),
		Files: []metadata.AudioFile{{ID: metadata.FileID{1}, Format: metadata.FormatVorbis160}},
	}
	f := New(Deps{
		Metadata: &fakeMetadata{item: item},
		AudioKey: &fakeAudioKey{err: errors.New("no key for you")},
	})

	_, err := f.Load(context.Background(), testTrackID(t), metadata.Quality160, false)
	require.ErrorIs(t, err, streamerr.ErrNoAudioKey)
}

// TestLoadViaCDNReadsNormalizationBeforePreamble exercises the CDN
// path's ordering: normalization data is read first, then the preamble
// is skipped, with no channel header block to parse at all.
func TestLoadViaCDNReadsNormalizationBeforePreamble(t *testing.T) {
	key := randomKey(t)
	trackID := testTrackID(t)
	fileID := metadata.FileID{9}

	normalization := []byte{0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70, 0x80, 0x90, 0xa0, 0xb0, 0xc0, 0xd0, 0xe0, 0xf0, 0x01}
	preamble := make([]byte, crypto.PreambleSkip)
	for i := range preamble {
		preamble[i] = crypto.PreambleByte
	}
	audioTail := []byte("cdn-episode-audio-bytes")
	plaintext := append(append(append([]byte{}, normalization...), preamble...), audioTail...)
	ciphertext := encryptWithStandardIV(t, key, plaintext)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", itoa(len(ciphertext)))
			w.WriteHeader(http.StatusOK)
			return
		}
		rng := r.Header.Get("Range")
		require.NotEmpty(t, rng)
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(ciphertext)
	}))
	defer srv.Close()

	item := PlayableItem{
		ID:          trackID,
		IsEpisode:   true,
		ExternalURL: srv.URL,
		Files:       []metadata.AudioFile{{ID: fileID, Format: metadata.FormatVorbis160}},
	}

	cdnClient := cdn.NewClient(srv.Client(), len(ciphertext))

	f := New(Deps{
		Metadata:  &fakeMetadata{item: item},
		AudioKey:  &fakeAudioKey{key: key},
		CDN:       cdnClient,
		CDNSizer:  cdnClient,
		ChunkSize: len(ciphertext),
	})

	loaded, err := f.Load(context.Background(), trackID, metadata.Quality160, true)
	require.NoError(t, err)
	defer loaded.Stream.Close()

	require.Equal(t, normalization, loaded.NormalizationData[:])

	got := make([]byte, len(audioTail))
	_, err = io.ReadFull(loaded.Stream, got)
	require.NoError(t, err)
	require.Equal(t, audioTail, got)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
