package crypto

// Wire constants shared by every layer of the streaming core.
const (
	// ChunkSize is the fixed size of a decrypted chunk, except the final
	// chunk of a file which may be shorter.
	ChunkSize = 131072

	// PreambleSkip is the length, in bytes, of the 0xA7 preamble that
	// precedes the OGG container's first page in the decrypted stream.
	PreambleSkip = 167

	// PreambleByte is the fixed byte value filling the OGG preamble.
	PreambleByte = 0xA7

	// NormalizationSize is the width, in bytes, of the little-endian
	// IEEE-754 float32 loudness-normalization block.
	NormalizationSize = 16
)

// StandardIV is the fixed initial counter block shared by every file's
// AES-CTR keystream. Only the per-file key varies; the IV itself is a
// protocol-wide constant.
var StandardIV = [KeySize]byte{
	0x72, 0xe0, 0x67, 0xfb, 0xdd, 0xcb, 0xcf, 0x77,
	0xeb, 0xe8, 0xbc, 0x64, 0x3f, 0x63, 0x0d, 0x93,
}
