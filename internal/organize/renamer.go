package organize

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/vmunix/grabarr/internal/config"
	"github.com/vmunix/grabarr/internal/library"
)

// Default naming templates per library type.
const (
	DefaultTVTemplate        = "{name}/Season {season:02}/{name} - S{season:02}E{episode:02} - {quality}.{ext}"
	DefaultMovieTemplate     = "{name} ({year})/{name} ({year}) - {quality}.{ext}"
	DefaultMusicTemplate     = "{name}/Disc {disc:02}/{track:02} - {title}.{ext}"
	DefaultAudiobookTemplate = "{name}/{track:02} - {title}.{ext}"
)

// Renamer applies naming templates to generate destination paths
// relative to a library root.
type Renamer struct {
	templates map[library.Type]string
}

// NewRenamer creates a renamer from naming config. Empty template
// strings use the defaults.
func NewRenamer(cfg config.NamingConfig) *Renamer {
	templates := map[library.Type]string{
		library.TypeTV:        cfg.TV,
		library.TypeMovie:     cfg.Movie,
		library.TypeMusic:     cfg.Music,
		library.TypeAudiobook: cfg.Audiobook,
	}
	defaults := map[library.Type]string{
		library.TypeTV:        DefaultTVTemplate,
		library.TypeMovie:     DefaultMovieTemplate,
		library.TypeMusic:     DefaultMusicTemplate,
		library.TypeAudiobook: DefaultAudiobookTemplate,
	}
	for t, tmpl := range templates {
		if tmpl == "" {
			templates[t] = defaults[t]
		}
	}
	return &Renamer{templates: templates}
}

// DestPath generates the relative destination path for a wanted item's
// file. Name parts are sanitized before substitution.
func (r *Renamer) DestPath(libType library.Type, w *library.WantedItem, quality, ext string) string {
	title := SanitizeFilename(w.Title)
	if title == "" {
		title = "Untitled"
	}
	vars := map[string]any{
		"name":    SanitizeFilename(w.Name),
		"title":   title,
		"year":    w.Year,
		"season":  w.Season,
		"episode": w.Episode,
		"track":   w.Track,
		"disc":    w.Disc,
		"quality": quality,
		"ext":     ext,
	}
	return applyTemplate(r.templates[libType], vars)
}

// formatPattern matches {name} or {name:02} style placeholders.
var formatPattern = regexp.MustCompile(`\{(\w+)(?::(\d+))?\}`)

// applyTemplate substitutes variables into a template string.
// Supports {name} for simple substitution and {name:02} for zero-padded integers.
func applyTemplate(template string, vars map[string]any) string {
	return formatPattern.ReplaceAllStringFunc(template, func(match string) string {
		parts := formatPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		val, ok := vars[name]
		if !ok {
			return match
		}

		if len(parts) >= 3 && parts[2] != "" {
			width, err := strconv.Atoi(parts[2])
			if err == nil {
				switch v := val.(type) {
				case int:
					return fmt.Sprintf("%0*d", width, v)
				case int64:
					return fmt.Sprintf("%0*d", width, v)
				}
			}
		}

		return fmt.Sprintf("%v", val)
	})
}
