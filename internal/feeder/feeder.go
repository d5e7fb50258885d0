// Package feeder implements the Stream Feeder: it resolves a track or
// episode identifier into metadata, an audio-file key, and an open
// Chunked Stream ready for a decoder to read from. The blocking metadata
// and audio-key RPCs happen here; the result is handed off as a plain
// reader type the caller pulls from.
package feeder

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/blake2b"

	"github.com/arifainchtein/librespot-go/internal/chunkbuffer"
	"github.com/arifainchtein/librespot-go/internal/chunksource"
	"github.com/arifainchtein/librespot-go/internal/crypto"
	"github.com/arifainchtein/librespot-go/internal/metadata"
	"github.com/arifainchtein/librespot-go/internal/stream"
	"github.com/arifainchtein/librespot-go/internal/streamerr"
)

var tracer = otel.Tracer("librespot-go/feeder")

// PlayableItem unifies the subset of a Track or Episode record the feeder
// needs, regardless of which one the metadata RPC returned.
type PlayableItem struct {
	ID          metadata.TrackID
	Files       []metadata.AudioFile
	IsEpisode   bool
	ExternalURL string
}

// MetadataClient is the external metadata RPC collaborator.
type MetadataClient interface {
	Resolve(ctx context.Context, id metadata.TrackID) (PlayableItem, error)
}

// AudioKeyProvider is the external audio-key RPC collaborator.
type AudioKeyProvider interface {
	GetFileKey(ctx context.Context, trackID metadata.TrackID, fileID metadata.FileID) ([crypto.KeySize]byte, error)
}

// CDNSizer is satisfied by *cdn.Client: a HEAD request to learn a CDN
// resource's total size before the buffer can be allocated.
type CDNSizer interface {
	HeadSize(ctx context.Context, url string) (int64, error)
}

// LoadedStream is the result the feeder returns to the Track Handler.
type LoadedStream struct {
	Item              PlayableItem
	File              metadata.AudioFile
	Stream            *stream.Stream
	NormalizationData [crypto.NormalizationSize]byte
}

// Deps bundles the Feeder's collaborators. Channel and Cache are used for
// the channel path; CDN is used for the episode-external-URL path.
type Deps struct {
	Metadata  MetadataClient
	AudioKey  AudioKeyProvider
	Channel   chunksource.ChannelProvider
	Cache     chunksource.CacheProvider
	CDN       chunksource.CDNProvider
	CDNSizer  CDNSizer
	ChunkSize int

	PrefetchAhead int
	ChunkTimeout  time.Duration

	Log *logrus.Entry
}

// Feeder is the Stream Feeder (C5).
type Feeder struct {
	deps Deps
}

// New builds a Feeder over deps. ChunkSize defaults to crypto.ChunkSize.
func New(deps Deps) *Feeder {
	if deps.ChunkSize <= 0 {
		deps.ChunkSize = crypto.ChunkSize
	}
	if deps.Log == nil {
		deps.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Feeder{deps: deps}
}

// captureSink is a one-shot chunksource.Sink used to synchronously fetch
// chunk 0's raw ciphertext during Load, before the real Chunk Buffer can
// be sized.
type captureSink struct {
	ciphertext []byte
	got        bool
}

func (c *captureSink) WriteChunk(index int, ciphertext []byte, cached bool) error {
	c.ciphertext = append([]byte(nil), ciphertext...)
	c.got = true
	return nil
}

// Load resolves id's metadata and audio key, builds the decryptor, and
// returns an open stream positioned at the start of the audio data.
func (f *Feeder) Load(ctx context.Context, id metadata.TrackID, pref metadata.QualityPreference, useCDN bool) (*LoadedStream, error) {
	ctx, span := tracer.Start(ctx, "stream_feeder.load", trace.WithAttributes(
		attribute.String("track_id", id.String()),
	))
	defer span.End()

	item, err := f.resolveMetadata(ctx, id)
	if err != nil {
		return nil, err
	}

	file, ok := metadata.SelectBestVorbis(item.Files, pref)
	if !ok {
		return nil, fmt.Errorf("feeder: track %s: %w", id, streamerr.ErrUnsupportedFormat)
	}

	cdnPath := item.IsEpisode && useCDN && item.ExternalURL != ""

	key, err := f.resolveAudioKey(ctx, id, file)
	if err != nil {
		return nil, err
	}

	decryptor, err := crypto.NewDecryptor(key, crypto.StandardIV)
	if err != nil {
		return nil, fmt.Errorf("feeder: build decryptor: %w", err)
	}

	f.deps.Log.WithFields(logrus.Fields{
		"track_id":    id.String(),
		"file_id":     file.ID.String(),
		"file_key_fp": fileKeyFingerprint(key),
		"cdn_path":    cdnPath,
	}).Info("feeder: loading track")

	if cdnPath {
		return f.loadViaCDN(ctx, item, file, decryptor)
	}
	return f.loadViaChannel(ctx, item, file, decryptor)
}

func (f *Feeder) resolveMetadata(ctx context.Context, id metadata.TrackID) (PlayableItem, error) {
	_, span := tracer.Start(ctx, "stream_feeder.metadata_rpc")
	defer span.End()

	item, err := f.deps.Metadata.Resolve(ctx, id)
	if err != nil {
		f.deps.Log.WithError(err).WithField("track_id", id.String()).Warn("feeder: metadata rpc failed")
		return PlayableItem{}, fmt.Errorf("feeder: resolve %s: %w", id, streamerr.ErrMetadataNotFound)
	}
	return item, nil
}

func (f *Feeder) resolveAudioKey(ctx context.Context, id metadata.TrackID, file metadata.AudioFile) ([crypto.KeySize]byte, error) {
	_, span := tracer.Start(ctx, "stream_feeder.audio_key_rpc")
	defer span.End()

	key, err := f.deps.AudioKey.GetFileKey(ctx, id, file.ID)
	if err != nil {
		f.deps.Log.WithError(err).WithField("track_id", id.String()).Warn("feeder: audio key rpc failed")
		return key, fmt.Errorf("feeder: file key for %s/%s: %w", id, file.ID, streamerr.ErrNoAudioKey)
	}
	return key, nil
}

// loadViaChannel implements the channel-path construction: chunk 0 is
// fetched through the Chunk Source, its leading header block is parsed
// for file_size, the real buffer is allocated, and chunk 0's already
// decrypted bytes are seeded into it directly.
func (f *Feeder) loadViaChannel(ctx context.Context, item PlayableItem, file metadata.AudioFile, decryptor *crypto.Decryptor) (*LoadedStream, error) {
	source := chunksource.New(f.deps.Channel, f.deps.Cache, nil, file.ID, "", f.deps.Log)

	sink := &captureSink{}
	if err := source.RequestChunk(ctx, 0, sink); err != nil {
		return nil, fmt.Errorf("feeder: request chunk 0: %w", streamerr.ErrChannelError)
	}

	plaintext, err := decryptor.Decrypt(0, sink.ciphertext, len(sink.ciphertext))
	if err != nil {
		return nil, fmt.Errorf("feeder: decrypt chunk 0: %w", err)
	}

	var span trace.Span
	ctx, span = tracer.Start(ctx, "stream_feeder.parse_header")
	header, err := parseHeader(plaintext)
	span.End()
	if err != nil {
		return nil, fmt.Errorf("feeder: parse chunk 0 header: %w", err)
	}

	buf := chunkbuffer.New(decryptor, header.fileSize, f.deps.ChunkSize)
	chunk0Body := plaintext[header.consumed:]
	if err := buf.SeedPlaintext(0, chunk0Body); err != nil {
		return nil, fmt.Errorf("feeder: seed chunk 0: %w", err)
	}

	st := stream.New(buf, source, f.deps.ChunkSize, f.streamOptions()...)
	st.Seek(0)

	// On the channel path the preamble comes first, then the
	// normalization data that follows it.
	st.Skip(crypto.PreambleSkip)
	var norm [crypto.NormalizationSize]byte
	if _, err := io.ReadFull(st, norm[:]); err != nil {
		st.Close()
		return nil, fmt.Errorf("feeder: read normalization data: %w", err)
	}

	return &LoadedStream{Item: item, File: file, Stream: st, NormalizationData: norm}, nil
}

// loadViaCDN implements the CDN-path construction for episodes with an
// external URL: the total size comes from an HTTP HEAD, there is no
// channel header block to parse, and normalization data precedes the
// preamble skip.
func (f *Feeder) loadViaCDN(ctx context.Context, item PlayableItem, file metadata.AudioFile, decryptor *crypto.Decryptor) (*LoadedStream, error) {
	size, err := f.deps.CDNSizer.HeadSize(ctx, item.ExternalURL)
	if err != nil {
		return nil, fmt.Errorf("feeder: cdn head %s: %w", item.ExternalURL, err)
	}

	source := chunksource.New(nil, f.deps.Cache, f.deps.CDN, file.ID, item.ExternalURL, f.deps.Log)
	buf := chunkbuffer.New(decryptor, size, f.deps.ChunkSize)
	st := stream.New(buf, source, f.deps.ChunkSize, f.streamOptions()...)
	st.Seek(0)

	var norm [crypto.NormalizationSize]byte
	if _, err := io.ReadFull(st, norm[:]); err != nil {
		st.Close()
		return nil, fmt.Errorf("feeder: read normalization data: %w", err)
	}
	st.Skip(crypto.PreambleSkip)

	return &LoadedStream{Item: item, File: file, Stream: st, NormalizationData: norm}, nil
}

func (f *Feeder) streamOptions() []stream.Option {
	var opts []stream.Option
	if f.deps.PrefetchAhead > 0 {
		opts = append(opts, stream.WithPrefetchAhead(f.deps.PrefetchAhead))
	}
	if f.deps.ChunkTimeout > 0 {
		opts = append(opts, stream.WithChunkTimeout(f.deps.ChunkTimeout))
	}
	opts = append(opts, stream.WithLogger(f.deps.Log))
	return opts
}

// fileKeyFingerprint derives an 8-byte, non-reversible fingerprint of a
// file key for log fields, so the key itself is never written to logs.
func fileKeyFingerprint(key [crypto.KeySize]byte) string {
	sum := blake2b.Sum256(key[:])
	return fmt.Sprintf("%x", sum[:8])
}
