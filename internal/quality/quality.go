// Package quality decides whether a candidate file should replace an
// existing library file.
package quality

import (
	"fmt"
	"strings"

	"github.com/vmunix/grabarr/internal/config"
	"github.com/vmunix/grabarr/internal/library"
	"github.com/vmunix/grabarr/pkg/relname"
)

// Decision is the outcome of comparing a candidate against an
// existing file.
type Decision int

const (
	// Equivalent means neither file wins on any ranked attribute.
	Equivalent Decision = iota
	// Upgrade means the candidate should replace the existing file.
	Upgrade
	// Reject means the existing file stays.
	Reject
)

func (d Decision) String() string {
	switch d {
	case Upgrade:
		return "upgrade"
	case Reject:
		return "reject"
	default:
		return "equivalent"
	}
}

// Equivalent-quality policies.
const (
	PolicyKeepFirst = "keep_first"
	PolicyKeepBoth  = "keep_both"
)

// defaultRanking orders attributes by significance when a profile
// does not say otherwise.
var defaultRanking = []string{"resolution", "source", "codec", "hdr", "audio_channels"}

// Attributes are the quality-relevant properties of a file.
type Attributes struct {
	Resolution    relname.Resolution
	Source        relname.Source
	Codec         relname.Codec
	HDR           relname.HDRFormat
	AudioChannels int
	Proper        bool
	Repack        bool
}

// FromInfo extracts quality attributes from parsed name info.
func FromInfo(info *relname.Info) Attributes {
	return Attributes{
		Resolution:    info.Resolution,
		Source:        info.Source,
		Codec:         info.Codec,
		HDR:           info.HDR,
		AudioChannels: info.AudioChannels,
		Proper:        info.Proper,
		Repack:        info.Repack,
	}
}

// FromFile reconstructs quality attributes from a stored library file.
func FromFile(f *library.File) Attributes {
	return Attributes{
		Resolution:    parseResolution(f.Resolution),
		Source:        parseSource(f.Source),
		Codec:         parseCodec(f.Codec),
		HDR:           parseHDR(f.HDR),
		AudioChannels: f.AudioChannels,
		Proper:        f.Proper,
		Repack:        f.Repack,
	}
}

// rank returns the ordinal of the named attribute. Larger is better;
// unknown values rank lowest.
func (a Attributes) rank(attr string) int {
	switch attr {
	case "resolution":
		return int(a.Resolution)
	case "source":
		return int(a.Source)
	case "codec":
		return int(a.Codec)
	case "hdr":
		return int(a.HDR)
	case "audio_channels":
		return a.AudioChannels
	default:
		return 0
	}
}

// value returns the attribute's string form for reject-list checks.
func (a Attributes) value(attr string) string {
	switch attr {
	case "resolution":
		return a.Resolution.String()
	case "source":
		return a.Source.String()
	case "codec":
		return a.Codec.String()
	case "hdr":
		return strings.ToLower(a.HDR.String())
	case "audio_channels":
		return fmt.Sprintf("%d", a.AudioChannels)
	default:
		return ""
	}
}

// Evaluator compares candidate files against existing library files
// using named quality profiles.
type Evaluator struct {
	cfg config.QualityConfig
}

// NewEvaluator creates an evaluator.
func NewEvaluator(cfg config.QualityConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Policy returns the configured equivalent-quality policy.
func (e *Evaluator) Policy() string {
	if e.cfg.EquivalentPolicy == "" {
		return PolicyKeepFirst
	}
	return e.cfg.EquivalentPolicy
}

func (e *Evaluator) profile(name string) config.QualityProfile {
	if name == "" {
		name = e.cfg.Default
	}
	if p, ok := e.cfg.Profiles[name]; ok {
		return p
	}
	return config.QualityProfile{}
}

// Rejected checks the candidate's attributes against the profile's
// reject list before any comparison happens.
func (e *Evaluator) Rejected(profileName string, candidate Attributes) (bool, string) {
	p := e.profile(profileName)
	for _, rejected := range p.Reject {
		rejected = strings.ToLower(strings.TrimSpace(rejected))
		if rejected == "" {
			continue
		}
		for _, attr := range defaultRanking {
			if candidate.value(attr) == rejected {
				return true, fmt.Sprintf("%s %q is rejected by profile", attr, rejected)
			}
		}
	}
	return false, ""
}

// Evaluate compares a candidate against an existing file. Attributes
// are compared in the profile's ranking order; the first attribute
// where the files differ decides. Fully equal attributes fall through
// to the proper/repack tiebreak, then to Equivalent.
func (e *Evaluator) Evaluate(profileName string, candidate, existing Attributes) (Decision, string) {
	if rejected, reason := e.Rejected(profileName, candidate); rejected {
		return Reject, reason
	}

	ranking := e.profile(profileName).Ranking
	if len(ranking) == 0 {
		ranking = defaultRanking
	}

	for _, attr := range ranking {
		c, x := candidate.rank(attr), existing.rank(attr)
		if c == x {
			continue
		}
		if c > x {
			return Upgrade, fmt.Sprintf("%s: %s beats %s", attr, candidate.value(attr), existing.value(attr))
		}
		return Reject, fmt.Sprintf("%s: existing %s beats %s", attr, existing.value(attr), candidate.value(attr))
	}

	if (candidate.Proper || candidate.Repack) && !existing.Proper && !existing.Repack {
		return Upgrade, "proper/repack of same quality"
	}
	if (existing.Proper || existing.Repack) && !candidate.Proper && !candidate.Repack {
		return Reject, "existing file is a proper/repack"
	}
	return Equivalent, "no ranked attribute differs"
}

func parseResolution(s string) relname.Resolution {
	switch strings.ToLower(s) {
	case "480p":
		return relname.Resolution480p
	case "720p":
		return relname.Resolution720p
	case "1080p":
		return relname.Resolution1080p
	case "2160p":
		return relname.Resolution2160p
	default:
		return relname.ResolutionUnknown
	}
}

func parseSource(s string) relname.Source {
	switch strings.ToLower(s) {
	case "cam":
		return relname.SourceCAM
	case "hdtv":
		return relname.SourceHDTV
	case "webrip":
		return relname.SourceWEBRip
	case "webdl":
		return relname.SourceWEBDL
	case "bluray":
		return relname.SourceBluRay
	case "remux":
		return relname.SourceRemux
	default:
		return relname.SourceUnknown
	}
}

func parseCodec(s string) relname.Codec {
	switch strings.ToLower(s) {
	case "xvid":
		return relname.CodecXviD
	case "x264":
		return relname.CodecX264
	case "x265":
		return relname.CodecX265
	case "av1":
		return relname.CodecAV1
	default:
		return relname.CodecUnknown
	}
}

func parseHDR(s string) relname.HDRFormat {
	switch strings.ToLower(s) {
	case "hdr":
		return relname.HDRGeneric
	case "hdr10":
		return relname.HDR10
	case "hdr10+":
		return relname.HDR10Plus
	case "dv":
		return relname.DolbyVision
	default:
		return relname.HDRNone
	}
}
