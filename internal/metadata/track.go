package metadata

import "fmt"

// Format identifies an audio file's codec and bitrate tier.
type Format int

const (
	FormatUnknown Format = iota
	FormatVorbis96
	FormatVorbis160
	FormatVorbis320
	FormatMP3_96
	FormatMP3_160
	FormatMP3_256
	FormatMP3_320
)

func (f Format) String() string {
	switch f {
	case FormatVorbis96:
		return "OGG_VORBIS_96"
	case FormatVorbis160:
		return "OGG_VORBIS_160"
	case FormatVorbis320:
		return "OGG_VORBIS_320"
	case FormatMP3_96:
		return "MP3_96"
	case FormatMP3_160:
		return "MP3_160"
	case FormatMP3_256:
		return "MP3_256"
	case FormatMP3_320:
		return "MP3_320"
	default:
		return "UNKNOWN"
	}
}

// IsVorbis reports whether the format is one of the Ogg Vorbis tiers.
func (f Format) IsVorbis() bool {
	switch f {
	case FormatVorbis96, FormatVorbis160, FormatVorbis320:
		return true
	default:
		return false
	}
}

// Bitrate returns the nominal bitrate in kbps encoded by the format.
func (f Format) Bitrate() int {
	switch f {
	case FormatVorbis96, FormatMP3_96:
		return 96
	case FormatVorbis160, FormatMP3_160:
		return 160
	case FormatVorbis320, FormatMP3_320:
		return 320
	case FormatMP3_256:
		return 256
	default:
		return 0
	}
}

// FileID is the 20-byte identifier of a specific encoded audio file.
type FileID [20]byte

func (f FileID) String() string {
	return fmt.Sprintf("%x", f[:])
}

// AudioFile describes one encoded rendition of a track.
type AudioFile struct {
	ID     FileID
	Format Format
}

// Track is the subset of the metadata RPC's track record the feeder needs.
type Track struct {
	ID    TrackID
	Name  string
	Files []AudioFile
}

// Episode is the subset of the metadata RPC's episode record the feeder
// needs. Episodes may carry an external CDN URL in addition to file ids.
type Episode struct {
	ID          TrackID
	Name        string
	Files       []AudioFile
	ExternalURL string
}

// HasExternalURL reports whether this episode can be served over the CDN
// path instead of the channel path.
func (e Episode) HasExternalURL() bool {
	return e.ExternalURL != ""
}

// QualityPreference bounds AudioFile selection to at most this bitrate.
type QualityPreference int

const (
	Quality96  QualityPreference = 96
	Quality160 QualityPreference = 160
	Quality320 QualityPreference = 320
)

// SelectBestVorbis returns the highest-bitrate Vorbis file not exceeding
// pref, per the feeder's default "Vorbis-only" policy.
func SelectBestVorbis(files []AudioFile, pref QualityPreference) (AudioFile, bool) {
	var best AudioFile
	found := false
	for _, f := range files {
		if !f.Format.IsVorbis() {
			continue
		}
		if f.Format.Bitrate() > int(pref) {
			continue
		}
		if !found || f.Format.Bitrate() > best.Format.Bitrate() {
			best = f
			found = true
		}
	}
	return best, found
}
