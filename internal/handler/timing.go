package handler

import "github.com/arifainchtein/librespot-go/internal/metadata"

// msToBytes and bytesToMS convert between the millisecond positions the
// outer player context deals in (Load's start_pos, Seek's pos_ms) and the
// byte offsets the Chunked Stream deals in. The conversion uses the
// selected file's nominal bitrate, a fixed-bitrate approximation
// documented in DESIGN.md — the same approximation a CBR Vorbis/MP3
// stream already assumes.
func msToBytes(posMS int64, file metadata.AudioFile) int64 {
	bitrate := file.Format.Bitrate()
	if bitrate <= 0 {
		return 0
	}
	return posMS * int64(bitrate) / 8
}

func bytesToMS(pos int64, file metadata.AudioFile) int64 {
	bitrate := file.Format.Bitrate()
	if bitrate <= 0 {
		return 0
	}
	return pos * 8 / int64(bitrate)
}
