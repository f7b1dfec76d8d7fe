// Package library manages libraries, wanted items, and organized files.
package library

import "time"

// Type is a library content type.
type Type string

const (
	TypeTV        Type = "tv"
	TypeMovie     Type = "movie"
	TypeMusic     Type = "music"
	TypeAudiobook Type = "audiobook"
)

// Library is a user-owned collection rooted at one directory.
type Library struct {
	ID     int64
	UserID string
	Name   string
	Type   Type
	Root   string
}

// WantedItem is a library slot known to be missing its file. The slot
// fields used depend on the library type: season/episode for tv, year
// for movies, track/disc for music and audiobooks.
type WantedItem struct {
	ID        int64
	LibraryID int64
	Name      string // show, artist, album, or book name
	Title     string // episode/track title, if known
	Season    int
	Episode   int
	Track     int
	Disc      int
	Year      int
	ClaimedBy *int64 // pending match id that committed this slot
	CreatedAt time.Time
}

// File is a file organized into a library, with media metadata
// attached after analysis.
type File struct {
	ID            int64
	LibraryID     int64
	WantedItemID  *int64
	Path          string
	SizeBytes     int64
	Resolution    string
	Source        string
	Codec         string
	HDR           string
	AudioChannels int
	Proper        bool
	Repack        bool
	MediaCodec    string
	DurationSecs  int
	AnalyzedAt    *time.Time
	CreatedAt     time.Time
}

// WantedFilter selects wanted items.
type WantedFilter struct {
	LibraryID *int64
	Unclaimed bool
}

// FileFilter selects library files.
type FileFilter struct {
	LibraryID    *int64
	WantedItemID *int64
}
