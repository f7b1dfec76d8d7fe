// Package config handles TOML configuration loading with environment variable substitution.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig             `toml:"server"`
	Database  DatabaseConfig           `toml:"database"`
	Libraries map[string]LibraryConfig `toml:"libraries"`
	Naming    NamingConfig             `toml:"naming"`
	Matching  MatchingConfig           `toml:"matching"`
	Quality   QualityConfig            `toml:"quality"`
	Downloads DownloadsConfig          `toml:"downloads"`
	Queues    QueuesConfig             `toml:"queues"`
	Indexers  map[string]IndexerConfig `toml:"indexers"`
	Torznab   TorznabConfig            `toml:"torznab"`
	Notify    NotifyConfig             `toml:"notify"`
}

type ServerConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"` // rotated; empty disables file logging
	LockFile string `toml:"lock_file"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LibraryConfig describes one library root. The map key is the library name.
type LibraryConfig struct {
	Type string `toml:"type"` // tv, movie, music, audiobook
	Root string `toml:"root"`
}

// NamingConfig holds destination path templates per library type.
type NamingConfig struct {
	TV        string `toml:"tv"`
	Movie     string `toml:"movie"`
	Music     string `toml:"music"`
	Audiobook string `toml:"audiobook"`
}

// MatchingConfig tunes the file matcher.
type MatchingConfig struct {
	AutoAcceptThreshold float64 `toml:"auto_accept_threshold"`
	MatchAttemptCap     int     `toml:"match_attempt_cap"`
	CopyAttemptCap      int     `toml:"copy_attempt_cap"`
	Weights             Weights `toml:"weights"`
}

// Weights are the per-field scoring weights. They need not sum to 1;
// scores are normalized by the total weight.
type Weights struct {
	Name   float64 `toml:"name"`
	Title  float64 `toml:"title"`
	Number float64 `toml:"number"`
	Season float64 `toml:"season"`
	Year   float64 `toml:"year"`
}

type QualityConfig struct {
	Default          string                    `toml:"default"`
	EquivalentPolicy string                    `toml:"equivalent_policy"` // keep_first, keep_both
	Profiles         map[string]QualityProfile `toml:"profiles"`
}

// QualityProfile ranks quality attributes, most significant first.
type QualityProfile struct {
	Ranking []string `toml:"ranking"` // resolution, source, codec, hdr, audio_channels
	Reject  []string `toml:"reject"`
}

type DownloadsConfig struct {
	MaxConcurrent  int           `toml:"max_concurrent"`
	PollInterval   time.Duration `toml:"poll_interval"`
	DeleteOnCancel bool          `toml:"delete_on_cancel"`
	WatchDir       string        `toml:"watch_dir"`
	CompleteDir    string        `toml:"complete_dir"`
}

type QueuesConfig struct {
	SearchConcurrency  int `toml:"search_concurrency"`
	AnalyzeConcurrency int `toml:"analyze_concurrency"`
	RetryAttempts      int `toml:"retry_attempts"`
}

type IndexerConfig struct {
	URL      string `toml:"url"`
	APIKey   string `toml:"api_key"`
	Priority int    `toml:"priority"`
}

// TorznabConfig configures the exposed Torznab-compatible endpoint.
type TorznabConfig struct {
	Enabled bool   `toml:"enabled"`
	APIKey  string `toml:"api_key"`
}

type NotifyConfig struct {
	WebhookURL string `toml:"webhook_url"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	content := substituteEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(content, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8787
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/grabarr.db"
	}
	if c.Naming.TV == "" {
		c.Naming.TV = "{name}/Season {season:02}/{name} - S{season:02}E{episode:02} - {quality}.{ext}"
	}
	if c.Naming.Movie == "" {
		c.Naming.Movie = "{name} ({year})/{name} ({year}) - {quality}.{ext}"
	}
	if c.Naming.Music == "" {
		c.Naming.Music = "{name}/Disc {disc:02}/{track:02} - {title}.{ext}"
	}
	if c.Naming.Audiobook == "" {
		c.Naming.Audiobook = "{name}/{track:02} - {title}.{ext}"
	}
	if c.Matching.AutoAcceptThreshold == 0 {
		c.Matching.AutoAcceptThreshold = 0.70
	}
	if c.Matching.MatchAttemptCap == 0 {
		c.Matching.MatchAttemptCap = 3
	}
	if c.Matching.CopyAttemptCap == 0 {
		c.Matching.CopyAttemptCap = 3
	}
	if c.Matching.Weights == (Weights{}) {
		c.Matching.Weights = Weights{Name: 0.50, Title: 0.15, Number: 0.20, Season: 0.10, Year: 0.05}
	}
	if c.Quality.EquivalentPolicy == "" {
		c.Quality.EquivalentPolicy = "keep_first"
	}
	if c.Quality.Default == "" {
		c.Quality.Default = "standard"
	}
	if c.Quality.Profiles == nil {
		c.Quality.Profiles = map[string]QualityProfile{
			"standard": {Ranking: []string{"resolution", "source", "codec", "hdr", "audio_channels"}},
		}
	}
	if c.Downloads.MaxConcurrent == 0 {
		c.Downloads.MaxConcurrent = 3
	}
	if c.Downloads.PollInterval == 0 {
		c.Downloads.PollInterval = 15 * time.Second
	}
	if c.Downloads.WatchDir == "" {
		c.Downloads.WatchDir = "./data/watch"
	}
	if c.Downloads.CompleteDir == "" {
		c.Downloads.CompleteDir = "./data/complete"
	}
	if c.Queues.SearchConcurrency == 0 {
		c.Queues.SearchConcurrency = 4
	}
	if c.Queues.AnalyzeConcurrency == 0 {
		c.Queues.AnalyzeConcurrency = 2
	}
	if c.Queues.RetryAttempts == 0 {
		c.Queues.RetryAttempts = 3
	}
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1]
		if value, ok := os.LookupEnv(varName); ok {
			return value
		}
		return match
	})
}
