package config

import (
	"fmt"
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true, "": true,
}

var validLibraryTypes = map[string]bool{
	"tv": true, "movie": true, "music": true, "audiobook": true,
}

var validEquivalentPolicies = map[string]bool{
	"keep_first": true, "keep_both": true, "": true,
}

var validRankingAttrs = map[string]bool{
	"resolution": true, "source": true, "codec": true, "hdr": true, "audio_channels": true,
}

// Validate checks the configuration for errors.
// Returns a slice of error messages (empty if valid).
func (c *Config) Validate() []string {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port: must be between 1 and 65535, got %d", c.Server.Port))
	}
	if !validLogLevels[c.Server.LogLevel] {
		errs = append(errs, fmt.Sprintf("server.log_level: must be one of debug, info, warn, error; got %q", c.Server.LogLevel))
	}

	if len(c.Libraries) == 0 {
		errs = append(errs, "libraries: at least one library must be configured")
	}
	for name, lib := range c.Libraries {
		if !validLibraryTypes[lib.Type] {
			errs = append(errs, fmt.Sprintf("libraries.%s.type: must be one of tv, movie, music, audiobook; got %q", name, lib.Type))
		}
		if lib.Root == "" {
			errs = append(errs, fmt.Sprintf("libraries.%s.root: required", name))
		}
	}

	if c.Matching.AutoAcceptThreshold < 0 || c.Matching.AutoAcceptThreshold > 1 {
		errs = append(errs, fmt.Sprintf("matching.auto_accept_threshold: must be in [0,1], got %g", c.Matching.AutoAcceptThreshold))
	}

	if !validEquivalentPolicies[c.Quality.EquivalentPolicy] {
		errs = append(errs, fmt.Sprintf("quality.equivalent_policy: must be keep_first or keep_both; got %q", c.Quality.EquivalentPolicy))
	}
	if c.Quality.Default != "" {
		if _, ok := c.Quality.Profiles[c.Quality.Default]; !ok {
			errs = append(errs, fmt.Sprintf("quality.default: profile %q not defined", c.Quality.Default))
		}
	}
	for name, p := range c.Quality.Profiles {
		for _, attr := range p.Ranking {
			if !validRankingAttrs[attr] {
				errs = append(errs, fmt.Sprintf("quality.profiles.%s.ranking: unknown attribute %q", name, attr))
			}
		}
	}

	for name, idx := range c.Indexers {
		if idx.URL == "" {
			errs = append(errs, fmt.Sprintf("indexers.%s.url: required", name))
		}
		if idx.APIKey == "" {
			errs = append(errs, fmt.Sprintf("indexers.%s.api_key: required", name))
		}
	}

	if c.Torznab.Enabled && c.Torznab.APIKey == "" {
		errs = append(errs, "torznab.api_key: required when torznab endpoint is enabled")
	}

	return errs
}
