// Package relname parses release and file names into structured attributes.
package relname

// Resolution represents the video resolution of a release.
type Resolution int

const (
	ResolutionUnknown Resolution = iota
	Resolution480p
	Resolution720p
	Resolution1080p
	Resolution2160p
)

// unknownStr is the string representation for unknown values.
const unknownStr = "unknown"

func (r Resolution) String() string {
	switch r {
	case Resolution480p:
		return "480p"
	case Resolution720p:
		return "720p"
	case Resolution1080p:
		return "1080p"
	case Resolution2160p:
		return "2160p"
	default:
		return unknownStr
	}
}

// Source represents the media source type of a release.
type Source int

const (
	SourceUnknown Source = iota
	SourceCAM
	SourceHDTV
	SourceWEBRip
	SourceWEBDL
	SourceBluRay
	SourceRemux
)

func (s Source) String() string {
	switch s {
	case SourceCAM:
		return "cam"
	case SourceHDTV:
		return "hdtv"
	case SourceWEBRip:
		return "webrip"
	case SourceWEBDL:
		return "webdl"
	case SourceBluRay:
		return "bluray"
	case SourceRemux:
		return "remux"
	default:
		return unknownStr
	}
}

// Codec represents the video codec used in a release.
type Codec int

const (
	CodecUnknown Codec = iota
	CodecXviD
	CodecX264
	CodecX265
	CodecAV1
)

func (c Codec) String() string {
	switch c {
	case CodecXviD:
		return "xvid"
	case CodecX264:
		return "x264"
	case CodecX265:
		return "x265"
	case CodecAV1:
		return "av1"
	default:
		return unknownStr
	}
}

// HDRFormat represents HDR/Dolby Vision formats.
type HDRFormat int

const (
	HDRNone HDRFormat = iota
	HDRGeneric
	HDR10
	HDR10Plus
	DolbyVision
)

func (h HDRFormat) String() string {
	switch h {
	case HDRGeneric:
		return "HDR"
	case HDR10:
		return "HDR10"
	case HDR10Plus:
		return "HDR10+"
	case DolbyVision:
		return "DV"
	default:
		return ""
	}
}

// Info contains parsed attributes from a release or file name.
type Info struct {
	Name     string // show, artist, album, or book name
	Title    string // trailing episode/track title, if present
	Year     int
	Season   int
	Episodes []int // all episodes in the release (e.g. [5,6] for S01E05E06)
	Track    int
	Disc     int

	Resolution    Resolution
	Source        Source
	Codec         Codec
	HDR           HDRFormat
	AudioChannels int // 2, 6, 8; 0 if unknown
	Group         string

	Proper bool
	Repack bool

	// Normalized name for matching.
	CleanName string
}

// Episode returns the primary (first) episode number, or 0.
func (i *Info) Episode() int {
	if len(i.Episodes) == 0 {
		return 0
	}
	return i.Episodes[0]
}
