package feeder

import (
	"encoding/binary"
	"fmt"
)

// Header record ids from the channel layer's chunk-0 framing. These
// share the leading bytes of chunk 0 with the audio data that follows;
// a reader must consume exactly the header bytes before treating the
// remainder as decrypted audio.
const (
	headerIDEnd      byte = 0x0
	headerIDFileSize byte = 0x3
)

// parsedHeader carries the fields the feeder needs out of chunk 0's
// header block.
type parsedHeader struct {
	// fileSize is the total decrypted size of the file, in bytes.
	fileSize int64
	// consumed is the number of leading bytes of chunk 0 occupied by the
	// header block; the stream feeder must treat bytes [0:consumed) as
	// off-limits to the decoder's own read/skip sequence, since the
	// Chunked Stream's position tracking begins after the header.
	consumed int
}

// parseHeader walks the (id: u8, length: u16, bytes) record sequence at
// the start of chunk 0 until the terminating headerIDEnd record. The file
// size record stores a 4-byte big-endian word count; the actual byte size
// is four times that value, matching the wire convention of the service
// this module's protocol is modeled on.
func parseHeader(chunk0 []byte) (parsedHeader, error) {
	var h parsedHeader
	var sawSize bool

	offset := 0
	for {
		if offset >= len(chunk0) {
			return h, fmt.Errorf("feeder: chunk 0 truncated before header terminator")
		}
		id := chunk0[offset]
		offset++

		if id == headerIDEnd {
			h.consumed = offset
			if !sawSize {
				return h, fmt.Errorf("feeder: header block never reported a file size")
			}
			return h, nil
		}

		if offset+2 > len(chunk0) {
			return h, fmt.Errorf("feeder: chunk 0 truncated reading header length for id %#x", id)
		}
		length := int(binary.BigEndian.Uint16(chunk0[offset : offset+2]))
		offset += 2

		if offset+length > len(chunk0) {
			return h, fmt.Errorf("feeder: chunk 0 truncated reading %d-byte payload for header id %#x", length, id)
		}
		payload := chunk0[offset : offset+length]
		offset += length

		if id == headerIDFileSize {
			if len(payload) != 4 {
				return h, fmt.Errorf("feeder: file size header has %d bytes, want 4", len(payload))
			}
			words := binary.BigEndian.Uint32(payload)
			h.fileSize = int64(words) * 4
			sawSize = true
		}
	}
}
