package relname

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Episode numbering patterns, tried in order. First match wins.
var (
	// S01E05, S01E05E06, S01E05-E07, s01.e05
	seRegex = regexp.MustCompile(`(?i)\bS(\d{1,2})[ ._]?E(\d{1,3})((?:[-._ ]?E\d{1,3})*)`)
	// 1x05, 12x103
	xRegex = regexp.MustCompile(`(?i)\b(\d{1,2})x(\d{2,3})\b`)
	// bare 105-style fallback: first digit is the season, last two the episode
	bareRegex = regexp.MustCompile(`\b([1-9])(\d{2})\b`)

	extraEpRegex = regexp.MustCompile(`(?i)E(\d{1,3})`)

	yearRegex  = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	trackRegex = regexp.MustCompile(`^(\d{1,2})\s*[-.]\s+`)
	discRegex  = regexp.MustCompile(`(?i)\b(?:cd|dis[ck])\s*(\d{1,2})\b`)

	channelsRegex = regexp.MustCompile(`\b(2\.0|5\.1|7\.1)\b`)
	groupRegex    = regexp.MustCompile(`-([A-Za-z0-9]+)$`)
)

// mediaExtensions are stripped before parsing.
var mediaExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".m4v": true, ".ts": true,
	".flac": true, ".mp3": true, ".m4a": true, ".ogg": true, ".opus": true,
	".m4b": true, ".wav": true,
}

// Parse extracts structured attributes from a release or file name.
func Parse(name string) *Info {
	info := &Info{}

	raw := name
	if ext := strings.ToLower(filepath.Ext(raw)); mediaExtensions[ext] {
		raw = strings.TrimSuffix(raw, filepath.Ext(raw))
	}

	// Audio channels and release group need the raw form, before dots
	// are folded into spaces.
	if m := channelsRegex.FindString(raw); m != "" {
		switch m {
		case "2.0":
			info.AudioChannels = 2
		case "5.1":
			info.AudioChannels = 6
		case "7.1":
			info.AudioChannels = 8
		}
	}
	if m := groupRegex.FindStringSubmatch(raw); m != nil && !isQualityToken(m[1]) {
		info.Group = m[1]
	}

	// Normalize separators for token scanning.
	s := strings.ReplaceAll(raw, ".", " ")
	s = strings.ReplaceAll(s, "_", " ")

	info.Resolution = parseResolution(s)
	info.Source = parseSource(s)
	info.Codec = parseCodec(s)
	info.HDR = parseHDR(s)
	info.Proper = containsToken(s, "proper")
	info.Repack = containsToken(s, "repack") || containsToken(s, "rerip")

	// nameEnd tracks where the leading name portion stops.
	nameEnd := len(s)
	titleStart := -1

	// Season/episode: ordered pattern attempts.
	if loc := seRegex.FindStringSubmatchIndex(s); loc != nil {
		m := seRegex.FindStringSubmatch(s)
		info.Season = atoi(m[1])
		info.Episodes = append(info.Episodes, atoi(m[2]))
		for _, extra := range extraEpRegex.FindAllStringSubmatch(m[3], -1) {
			info.Episodes = append(info.Episodes, atoi(extra[1]))
		}
		nameEnd = min(nameEnd, loc[0])
		titleStart = loc[1]
	} else if loc := xRegex.FindStringSubmatchIndex(s); loc != nil {
		m := xRegex.FindStringSubmatch(s)
		info.Season = atoi(m[1])
		info.Episodes = append(info.Episodes, atoi(m[2]))
		nameEnd = min(nameEnd, loc[0])
		titleStart = loc[1]
	}

	// Track/disc numbering (music, audiobooks).
	if m := trackRegex.FindStringSubmatch(s); m != nil {
		info.Track = atoi(m[1])
		trimmed := trackRegex.ReplaceAllString(s, "")
		nameEnd -= len(s) - len(trimmed)
		s = trimmed
	}
	if m := discRegex.FindStringSubmatch(s); m != nil {
		info.Disc = atoi(m[1])
		if loc := discRegex.FindStringIndex(s); loc != nil {
			nameEnd = min(nameEnd, loc[0])
		}
	}

	// Year: take the last occurrence so leading title numbers survive
	// ("2001 A Space Odyssey 1968").
	if years := yearRegex.FindAllStringIndex(s, -1); len(years) > 0 {
		last := years[len(years)-1]
		info.Year = atoi(s[last[0]:last[1]])
		nameEnd = min(nameEnd, last[0])
	}

	// Bare 105-style fallback, only when nothing else matched and the
	// number is not a resolution or year.
	if info.Season == 0 && len(info.Episodes) == 0 && info.Track == 0 {
		for _, loc := range bareRegex.FindAllStringSubmatchIndex(s, -1) {
			tok := s[loc[0]:loc[1]]
			if isQualityToken(tok) || yearRegex.MatchString(tok) {
				continue
			}
			info.Season = atoi(s[loc[2]:loc[3]])
			info.Episodes = []int{atoi(s[loc[4]:loc[5]])}
			nameEnd = min(nameEnd, loc[0])
			break
		}
	}

	// Quality tokens also bound the name portion.
	if idx := firstQualityIndex(s); idx >= 0 {
		nameEnd = min(nameEnd, idx)
		if titleStart >= 0 && titleStart < idx {
			info.Title = strings.TrimSpace(strings.Trim(s[titleStart:idx], "- "))
		}
	} else if titleStart >= 0 {
		info.Title = strings.TrimSpace(strings.Trim(s[titleStart:], "- "))
	}

	if nameEnd > 0 {
		info.Name = strings.TrimSpace(strings.Trim(s[:nameEnd], "- ("))
	}
	info.CleanName = Clean(info.Name)

	return info
}

// qualityTokens bound the title portion of a release name.
var qualityTokens = []string{
	"2160p", "1080p", "720p", "480p", "4k", "uhd",
	"bluray", "blu-ray", "bdrip", "brrip", "remux",
	"web-dl", "webdl", "webrip", "web-rip", "hdtv", "dvdrip",
	"x264", "x265", "h264", "h265", "hevc", "avc", "av1", "xvid",
	"hdr", "hdr10", "dv", "dovi",
	"aac", "ac3", "eac3", "dts", "truehd", "atmos", "flac", "opus",
	"proper", "repack", "rerip", "internal", "limited",
}

func isQualityToken(tok string) bool {
	tok = strings.ToLower(tok)
	for _, q := range qualityTokens {
		if tok == q {
			return true
		}
	}
	return false
}

func firstQualityIndex(s string) int {
	lower := strings.ToLower(s)
	first := -1
	for _, q := range qualityTokens {
		idx := indexToken(lower, q)
		if idx >= 0 && (first < 0 || idx < first) {
			first = idx
		}
	}
	return first
}

// indexToken finds q in s at a word boundary.
func indexToken(s, q string) int {
	from := 0
	for {
		idx := strings.Index(s[from:], q)
		if idx < 0 {
			return -1
		}
		idx += from
		startOK := idx == 0 || !isAlnum(s[idx-1])
		end := idx + len(q)
		endOK := end == len(s) || !isAlnum(s[end])
		if startOK && endOK {
			return idx
		}
		from = idx + 1
	}
}

func containsToken(s, tok string) bool {
	return indexToken(strings.ToLower(s), tok) >= 0
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func parseResolution(s string) Resolution {
	switch {
	case containsToken(s, "2160p") || containsToken(s, "4k") || containsToken(s, "uhd"):
		return Resolution2160p
	case containsToken(s, "1080p"):
		return Resolution1080p
	case containsToken(s, "720p"):
		return Resolution720p
	case containsToken(s, "480p"):
		return Resolution480p
	default:
		return ResolutionUnknown
	}
}

func parseSource(s string) Source {
	switch {
	case containsToken(s, "remux"):
		return SourceRemux
	case containsToken(s, "bluray") || containsToken(s, "blu-ray") ||
		containsToken(s, "bdrip") || containsToken(s, "brrip"):
		return SourceBluRay
	case containsToken(s, "web-dl") || containsToken(s, "webdl"):
		return SourceWEBDL
	case containsToken(s, "webrip") || containsToken(s, "web-rip"):
		return SourceWEBRip
	case containsToken(s, "hdtv"):
		return SourceHDTV
	case containsToken(s, "cam") || containsToken(s, "camrip") || containsToken(s, "hdcam"):
		return SourceCAM
	default:
		return SourceUnknown
	}
}

func parseCodec(s string) Codec {
	switch {
	case containsToken(s, "av1"):
		return CodecAV1
	case containsToken(s, "x265") || containsToken(s, "h265") || containsToken(s, "hevc"):
		return CodecX265
	case containsToken(s, "x264") || containsToken(s, "h264") || containsToken(s, "avc"):
		return CodecX264
	case containsToken(s, "xvid") || containsToken(s, "divx"):
		return CodecXviD
	default:
		return CodecUnknown
	}
}

func parseHDR(s string) HDRFormat {
	switch {
	case containsToken(s, "dv") || containsToken(s, "dovi") || containsToken(s, "dolby vision"):
		return DolbyVision
	case containsToken(s, "hdr10+") || containsToken(s, "hdr10plus"):
		return HDR10Plus
	case containsToken(s, "hdr10"):
		return HDR10
	case containsToken(s, "hdr"):
		return HDRGeneric
	default:
		return HDRNone
	}
}
