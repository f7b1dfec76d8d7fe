// Package indexer abstracts searching external sources for releases.
package indexer

import (
	"context"
	"errors"
	"time"
)

// ErrNoSources is returned when a search has no sources to query.
var ErrNoSources = errors.New("no sources available")

// QueryType is a Torznab-style query function.
type QueryType string

const (
	QuerySearch   QueryType = "search"
	QueryTVSearch QueryType = "tvsearch"
	QueryMovie    QueryType = "movie"
	QueryMusic    QueryType = "music"
	QueryBook     QueryType = "book"
)

// Query describes one search against a source.
type Query struct {
	Type       QueryType
	Text       string
	Season     int
	Episode    int
	Year       int
	Categories []int
}

// Release is a search result from a source.
type Release struct {
	Title       string
	GUID        string
	DownloadURL string
	Size        int64
	Seeders     int // availability signal; -1 if the source has none
	PublishDate time.Time
	Source      string // source identifier
}

// Gateway is the capability interface every source backend implements.
// Concrete backends (torrent swarms, NNTP retrieval, remote Torznab
// indexers) plug in behind it; selection is configuration, not type
// hierarchy.
type Gateway interface {
	// Name returns the source identifier.
	Name() string
	// Capabilities returns the query types the source supports.
	Capabilities(ctx context.Context) ([]QueryType, error)
	// CanHandle reports whether the source can serve the query.
	CanHandle(q Query) bool
	// Search queries the source for releases.
	Search(ctx context.Context, q Query) ([]Release, error)
}
