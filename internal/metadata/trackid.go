// Package metadata holds the data model shared by the feeder and handler:
// track identifiers, audio file descriptors, and the track/episode records
// returned by the (external) metadata RPC.
package metadata

import (
	"encoding/hex"
	"fmt"
)

const gidLen = 16

// TrackID is an opaque 16-byte identifier shared by tracks and episodes.
// Two TrackIDs are equal iff their gid bytes are equal.
type TrackID struct {
	gid [gidLen]byte
}

// NewTrackID builds a TrackID from exactly 16 raw bytes.
func NewTrackID(gid []byte) (TrackID, error) {
	var id TrackID
	if len(gid) != gidLen {
		return id, fmt.Errorf("metadata: gid must be %d bytes, got %d", gidLen, len(gid))
	}
	copy(id.gid[:], gid)
	return id, nil
}

// Bytes returns a copy of the underlying 16-byte gid.
func (t TrackID) Bytes() []byte {
	out := make([]byte, gidLen)
	copy(out, t.gid[:])
	return out
}

// Equal reports whether two TrackIDs have identical gid bytes.
func (t TrackID) Equal(other TrackID) bool {
	return t.gid == other.gid
}

// IsZero reports whether this TrackID is the zero value (never a valid gid).
func (t TrackID) IsZero() bool {
	return t.gid == [gidLen]byte{}
}

// String renders the gid as lowercase hex, the form used in log fields.
func (t TrackID) String() string {
	return hex.EncodeToString(t.gid[:])
}

const base62Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// String62 renders the gid in the base-62 form used by share links and
// human-facing surfaces. It treats the gid as a big-endian unsigned integer.
func (t TrackID) String62() string {
	var n [gidLen]byte
	copy(n[:], t.gid[:])

	// big.Int would do this in three lines, but the pack carries no
	// bignum dependency worth pulling in for a 16-byte base conversion;
	// a manual byte-array division is the grounded, dependency-free choice.
	digits := make([]byte, 0, 22)
	allZero := func(b []byte) bool {
		for _, v := range b {
			if v != 0 {
				return false
			}
		}
		return true
	}
	buf := append([]byte(nil), n[:]...)
	for !allZero(buf) {
		var rem uint32
		for i := 0; i < len(buf); i++ {
			cur := rem<<8 | uint32(buf[i])
			buf[i] = byte(cur / 62)
			rem = cur % 62
		}
		digits = append(digits, base62Alphabet[rem])
	}
	if len(digits) == 0 {
		digits = append(digits, base62Alphabet[0])
	}
	// digits were produced least-significant first.
	out := make([]byte, len(digits))
	for i, d := range digits {
		out[len(digits)-1-i] = d
	}
	return string(out)
}

// ParseBase62 parses the base-62 form produced by String62 back into a
// TrackID, left-padding with zero bytes to the 16-byte gid width.
func ParseBase62(s string) (TrackID, error) {
	var id TrackID
	if s == "" {
		return id, fmt.Errorf("metadata: empty base62 id")
	}
	value := make([]byte, gidLen)
	for _, r := range s {
		digit := -1
		for i, c := range base62Alphabet {
			if c == r {
				digit = i
				break
			}
		}
		if digit < 0 {
			return id, fmt.Errorf("metadata: invalid base62 character %q", r)
		}
		carry := uint32(digit)
		for i := gidLen - 1; i >= 0; i-- {
			cur := uint32(value[i])*62 + carry
			value[i] = byte(cur & 0xff)
			carry = cur >> 8
		}
		if carry != 0 {
			return id, fmt.Errorf("metadata: base62 id overflows %d bytes", gidLen)
		}
	}
	return NewTrackID(value)
}
