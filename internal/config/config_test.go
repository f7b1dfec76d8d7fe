package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9090
log_level = "debug"

[database]
path = "/tmp/test.db"

[libraries.shows]
type = "tv"
root = "/media/shows"

[libraries.films]
type = "movie"
root = "/media/films"

[matching]
auto_accept_threshold = 0.8

[indexers.primary]
url = "https://indexer.example.com"
api_key = "secret"
priority = 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Len(t, cfg.Libraries, 2)
	assert.Equal(t, "tv", cfg.Libraries["shows"].Type)
	assert.Equal(t, 0.8, cfg.Matching.AutoAcceptThreshold)
	assert.Equal(t, 10, cfg.Indexers["primary"].Priority)

	// Defaults fill the rest.
	assert.Equal(t, 3, cfg.Matching.MatchAttemptCap)
	assert.Equal(t, 3, cfg.Downloads.MaxConcurrent)
	assert.Equal(t, "keep_first", cfg.Quality.EquivalentPolicy)
	assert.NotZero(t, cfg.Matching.Weights.Name)

	assert.Empty(t, cfg.Validate())
}

func TestLoad_EnvSubstitution(t *testing.T) {
	t.Setenv("TEST_INDEXER_KEY", "from-env")

	path := writeConfig(t, `
[libraries.shows]
type = "tv"
root = "/media/shows"

[indexers.primary]
url = "https://indexer.example.com"
api_key = "${TEST_INDEXER_KEY}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Indexers["primary"].APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	require.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 8787, cfg.Server.Port)
	assert.Equal(t, 0.70, cfg.Matching.AutoAcceptThreshold)
	assert.Contains(t, cfg.Quality.Profiles, "standard")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		problem string
	}{
		{
			"bad port",
			func(c *Config) { c.Server.Port = -1 },
			"server.port",
		},
		{
			"bad log level",
			func(c *Config) { c.Server.LogLevel = "verbose" },
			"server.log_level",
		},
		{
			"no libraries",
			func(c *Config) { c.Libraries = nil },
			"libraries",
		},
		{
			"bad library type",
			func(c *Config) { c.Libraries = map[string]LibraryConfig{"x": {Type: "podcast", Root: "/x"}} },
			"libraries.x.type",
		},
		{
			"threshold out of range",
			func(c *Config) { c.Matching.AutoAcceptThreshold = 1.5 },
			"matching.auto_accept_threshold",
		},
		{
			"bad policy",
			func(c *Config) { c.Quality.EquivalentPolicy = "keep_newest" },
			"quality.equivalent_policy",
		},
		{
			"unknown default profile",
			func(c *Config) { c.Quality.Default = "nope" },
			"quality.default",
		},
		{
			"bad ranking attr",
			func(c *Config) {
				c.Quality.Profiles["standard"] = QualityProfile{Ranking: []string{"bitrate"}}
			},
			"ranking",
		},
		{
			"indexer missing key",
			func(c *Config) { c.Indexers = map[string]IndexerConfig{"i": {URL: "https://x"}} },
			"indexers.i.api_key",
		},
		{
			"torznab enabled without key",
			func(c *Config) { c.Torznab.Enabled = true },
			"torznab.api_key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Libraries = map[string]LibraryConfig{"shows": {Type: "tv", Root: "/media"}}
			tt.mutate(cfg)

			problems := cfg.Validate()
			require.NotEmpty(t, problems)
			found := false
			for _, p := range problems {
				if strings.Contains(p, tt.problem) {
					found = true
				}
			}
			assert.True(t, found, "no problem mentioning %q in %v", tt.problem, problems)
		})
	}
}
