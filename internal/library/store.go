package library

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Store persists libraries, wanted items, and files.
type Store struct {
	db *sql.DB
}

// NewStore creates a library store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// AddLibrary inserts a library.
func (s *Store) AddLibrary(l *Library) error {
	result, err := s.db.Exec(`
		INSERT INTO libraries (user_id, name, type, root)
		VALUES (?, ?, ?, ?)`,
		l.UserID, l.Name, l.Type, l.Root,
	)
	if err != nil {
		return fmt.Errorf("insert library: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	l.ID = id
	return nil
}

// GetLibrary retrieves a library by ID.
func (s *Store) GetLibrary(id int64) (*Library, error) {
	l := &Library{}
	err := s.db.QueryRow(`
		SELECT id, user_id, name, type, root FROM libraries WHERE id = ?`, id,
	).Scan(&l.ID, &l.UserID, &l.Name, &l.Type, &l.Root)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("get library %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get library %d: %w", id, err)
	}
	return l, nil
}

// ListLibraries returns all libraries, optionally scoped to a user.
func (s *Store) ListLibraries(userID string) ([]*Library, error) {
	query := "SELECT id, user_id, name, type, root FROM libraries"
	var args []any
	if userID != "" {
		query += " WHERE user_id = ?"
		args = append(args, userID)
	}
	rows, err := s.db.Query(query+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Library
	for rows.Next() {
		l := &Library{}
		if err := rows.Scan(&l.ID, &l.UserID, &l.Name, &l.Type, &l.Root); err != nil {
			return nil, fmt.Errorf("scan library: %w", err)
		}
		results = append(results, l)
	}
	return results, rows.Err()
}

// AddWanted inserts a wanted item.
func (s *Store) AddWanted(w *WantedItem) error {
	now := time.Now()
	result, err := s.db.Exec(`
		INSERT INTO wanted_items (library_id, name, title, season, episode, track, disc, year, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.LibraryID, w.Name, w.Title, w.Season, w.Episode, w.Track, w.Disc, w.Year, now,
	)
	if err != nil {
		return fmt.Errorf("insert wanted item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	w.ID = id
	w.CreatedAt = now
	return nil
}

const wantedColumns = "id, library_id, name, title, season, episode, track, disc, year, claimed_by, created_at"

// GetWanted retrieves a wanted item by ID.
func (s *Store) GetWanted(id int64) (*WantedItem, error) {
	w := &WantedItem{}
	err := s.db.QueryRow(
		"SELECT "+wantedColumns+" FROM wanted_items WHERE id = ?", id,
	).Scan(&w.ID, &w.LibraryID, &w.Name, &w.Title, &w.Season, &w.Episode,
		&w.Track, &w.Disc, &w.Year, &w.ClaimedBy, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("get wanted item %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get wanted item %d: %w", id, err)
	}
	return w, nil
}

// ListWanted returns wanted items matching the filter, oldest first.
func (s *Store) ListWanted(f WantedFilter) ([]*WantedItem, error) {
	var conditions []string
	var args []any

	if f.LibraryID != nil {
		conditions = append(conditions, "library_id = ?")
		args = append(args, *f.LibraryID)
	}
	if f.Unclaimed {
		conditions = append(conditions, "claimed_by IS NULL")
	}

	query := "SELECT " + wantedColumns + " FROM wanted_items"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list wanted items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*WantedItem
	for rows.Next() {
		w := &WantedItem{}
		if err := rows.Scan(&w.ID, &w.LibraryID, &w.Name, &w.Title, &w.Season, &w.Episode,
			&w.Track, &w.Disc, &w.Year, &w.ClaimedBy, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan wanted item: %w", err)
		}
		results = append(results, w)
	}
	return results, rows.Err()
}

// ClaimWanted atomically assigns a wanted item to a pending match.
// Returns ErrAlreadyClaimed if another match committed first. This is
// the exclusive check-and-commit that keeps at most one committed match
// per wanted item under concurrent completions.
func (s *Store) ClaimWanted(itemID, matchID int64) error {
	result, err := s.db.Exec(`
		UPDATE wanted_items SET claimed_by = ?
		WHERE id = ? AND claimed_by IS NULL`,
		matchID, itemID,
	)
	if err != nil {
		return fmt.Errorf("claim wanted item %d: %w", itemID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		// Distinguish missing from claimed
		var claimed sql.NullInt64
		err := s.db.QueryRow("SELECT claimed_by FROM wanted_items WHERE id = ?", itemID).Scan(&claimed)
		if err == sql.ErrNoRows {
			return fmt.Errorf("claim wanted item %d: %w", itemID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("claim wanted item %d: %w", itemID, err)
		}
		return fmt.Errorf("claim wanted item %d: %w", itemID, ErrAlreadyClaimed)
	}
	return nil
}

// ReleaseWanted clears the claim on a wanted item, but only if held by
// the given match. Used when organizing a committed match fails
// terminally and the slot should become wanted again.
func (s *Store) ReleaseWanted(itemID, matchID int64) error {
	_, err := s.db.Exec(`
		UPDATE wanted_items SET claimed_by = NULL
		WHERE id = ? AND claimed_by = ?`,
		itemID, matchID,
	)
	if err != nil {
		return fmt.Errorf("release wanted item %d: %w", itemID, err)
	}
	return nil
}

// DeleteWanted removes a wanted item. Idempotent.
func (s *Store) DeleteWanted(id int64) error {
	_, err := s.db.Exec("DELETE FROM wanted_items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete wanted item %d: %w", id, err)
	}
	return nil
}

const fileColumns = `id, library_id, wanted_item_id, path, size_bytes, resolution, source,
	codec, hdr, audio_channels, proper, repack, media_codec, duration_secs, analyzed_at, created_at`

// AddFile inserts an organized file record.
func (s *Store) AddFile(f *File) error {
	now := time.Now()
	result, err := s.db.Exec(`
		INSERT INTO library_files (library_id, wanted_item_id, path, size_bytes, resolution,
			source, codec, hdr, audio_channels, proper, repack, media_codec, duration_secs, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.LibraryID, f.WantedItemID, f.Path, f.SizeBytes, f.Resolution,
		f.Source, f.Codec, f.HDR, f.AudioChannels, f.Proper, f.Repack,
		f.MediaCodec, f.DurationSecs, now,
	)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	f.ID = id
	f.CreatedAt = now
	return nil
}

// GetFile retrieves a file by ID.
func (s *Store) GetFile(id int64) (*File, error) {
	f := &File{}
	err := s.db.QueryRow(
		"SELECT "+fileColumns+" FROM library_files WHERE id = ?", id,
	).Scan(&f.ID, &f.LibraryID, &f.WantedItemID, &f.Path, &f.SizeBytes, &f.Resolution,
		&f.Source, &f.Codec, &f.HDR, &f.AudioChannels, &f.Proper, &f.Repack,
		&f.MediaCodec, &f.DurationSecs, &f.AnalyzedAt, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("get file %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get file %d: %w", id, err)
	}
	return f, nil
}

// ListFiles returns files matching the filter.
func (s *Store) ListFiles(f FileFilter) ([]*File, error) {
	var conditions []string
	var args []any

	if f.LibraryID != nil {
		conditions = append(conditions, "library_id = ?")
		args = append(args, *f.LibraryID)
	}
	if f.WantedItemID != nil {
		conditions = append(conditions, "wanted_item_id = ?")
		args = append(args, *f.WantedItemID)
	}

	query := "SELECT " + fileColumns + " FROM library_files"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*File
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.ID, &f.LibraryID, &f.WantedItemID, &f.Path, &f.SizeBytes, &f.Resolution,
			&f.Source, &f.Codec, &f.HDR, &f.AudioChannels, &f.Proper, &f.Repack,
			&f.MediaCodec, &f.DurationSecs, &f.AnalyzedAt, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		results = append(results, f)
	}
	return results, rows.Err()
}

// SetFileMetadata attaches analysis results to a file.
func (s *Store) SetFileMetadata(id int64, mediaCodec string, durationSecs int) error {
	now := time.Now()
	result, err := s.db.Exec(`
		UPDATE library_files SET media_codec = ?, duration_secs = ?, analyzed_at = ?
		WHERE id = ?`,
		mediaCodec, durationSecs, now, id,
	)
	if err != nil {
		return fmt.Errorf("update file %d metadata: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update file %d metadata: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteFile removes a file record. Idempotent.
func (s *Store) DeleteFile(id int64) error {
	_, err := s.db.Exec("DELETE FROM library_files WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete file %d: %w", id, err)
	}
	return nil
}

// OrphanedFiles returns files left without an owning wanted item.
// Deleting a wanted item nulls the ownership of its files, so these
// are the leftovers cleanup may remove from disk.
func (s *Store) OrphanedFiles() ([]*File, error) {
	rows, err := s.db.Query(`
		SELECT ` + fileColumns + ` FROM library_files
		WHERE wanted_item_id IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("list orphaned files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*File
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.ID, &f.LibraryID, &f.WantedItemID, &f.Path, &f.SizeBytes, &f.Resolution,
			&f.Source, &f.Codec, &f.HDR, &f.AudioChannels, &f.Proper, &f.Repack,
			&f.MediaCodec, &f.DurationSecs, &f.AnalyzedAt, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		results = append(results, f)
	}
	return results, rows.Err()
}
