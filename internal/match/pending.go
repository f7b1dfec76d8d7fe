// Package match scores downloaded files against wanted library entries
// and records the outcome.
package match

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Verification states for a pending match.
const (
	VerificationPending   = "pending"
	VerificationConfirmed = "confirmed"
	VerificationRejected  = "rejected"
)

// Copy states for a committed match.
const (
	CopyPending = "pending"
	CopyDone    = "done"
	CopyFailed  = "failed"
)

// PendingMatch is one source file's in-progress or resolved matching
// decision. Retained indefinitely for audit after resolution.
type PendingMatch struct {
	ID                 int64
	TaskID             int64
	SourcePath         string
	SizeBytes          int64
	SourceType         string
	SourceID           string
	WantedItemID       *int64
	UnmatchedReason    string
	MatchType          string // auto, manual
	Confidence         float64
	MatchAttempts      int
	NeedsReview        bool
	Verification       string
	VerificationReason string
	Parsed             string // JSON-encoded parsed attributes
	CopyStatus         string
	CopyError          string
	CopyAttempts       int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Committed reports whether the match has a target wanted item.
func (m *PendingMatch) Committed() bool {
	return m.WantedItemID != nil
}

// PendingFilter selects pending matches.
type PendingFilter struct {
	TaskID      *int64
	NeedsReview bool
	Unresolved  bool // no target and not flagged for review
}

// PendingStore persists pending matches.
type PendingStore struct {
	db *sql.DB
}

// NewPendingStore creates a pending match store.
func NewPendingStore(db *sql.DB) *PendingStore {
	return &PendingStore{db: db}
}

const pendingColumns = `id, task_id, source_path, size_bytes, source_type, source_id,
	wanted_item_id, unmatched_reason, match_type, confidence, match_attempts,
	needs_review, verification, verification_reason, parsed,
	copy_status, copy_error, copy_attempts, created_at, updated_at`

func scanPending(row interface{ Scan(...any) error }) (*PendingMatch, error) {
	m := &PendingMatch{}
	err := row.Scan(&m.ID, &m.TaskID, &m.SourcePath, &m.SizeBytes, &m.SourceType, &m.SourceID,
		&m.WantedItemID, &m.UnmatchedReason, &m.MatchType, &m.Confidence, &m.MatchAttempts,
		&m.NeedsReview, &m.Verification, &m.VerificationReason, &m.Parsed,
		&m.CopyStatus, &m.CopyError, &m.CopyAttempts, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CreateOrGet returns the pending match for (task, path), creating it
// if absent. This is what makes completion dispatch idempotent.
func (s *PendingStore) CreateOrGet(taskID int64, sourcePath string, sizeBytes int64, sourceType, sourceID string) (*PendingMatch, error) {
	now := time.Now()
	if _, err := s.db.Exec(`
		INSERT INTO pending_matches (task_id, source_path, size_bytes, source_type, source_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (task_id, source_path) DO NOTHING`,
		taskID, sourcePath, sizeBytes, sourceType, sourceID, now, now,
	); err != nil {
		return nil, fmt.Errorf("insert pending match: %w", err)
	}

	m, err := scanPending(s.db.QueryRow(
		"SELECT "+pendingColumns+" FROM pending_matches WHERE task_id = ? AND source_path = ?",
		taskID, sourcePath,
	))
	if err != nil {
		return nil, fmt.Errorf("get pending match: %w", err)
	}
	return m, nil
}

// Get retrieves a pending match by ID.
func (s *PendingStore) Get(id int64) (*PendingMatch, error) {
	m, err := scanPending(s.db.QueryRow("SELECT "+pendingColumns+" FROM pending_matches WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("get pending match %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pending match %d: %w", id, err)
	}
	return m, nil
}

// List returns pending matches matching the filter.
func (s *PendingStore) List(f PendingFilter) ([]*PendingMatch, error) {
	var conditions []string
	var args []any

	if f.TaskID != nil {
		conditions = append(conditions, "task_id = ?")
		args = append(args, *f.TaskID)
	}
	if f.NeedsReview {
		conditions = append(conditions, "needs_review = 1")
	}
	if f.Unresolved {
		conditions = append(conditions, "wanted_item_id IS NULL AND needs_review = 0")
	}

	query := "SELECT " + pendingColumns + " FROM pending_matches"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending matches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*PendingMatch
	for rows.Next() {
		m, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending match: %w", err)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// IncrementAttempts bumps the match attempt counter.
func (s *PendingStore) IncrementAttempts(m *PendingMatch) error {
	if _, err := s.db.Exec(`
		UPDATE pending_matches SET match_attempts = match_attempts + 1, updated_at = ?
		WHERE id = ?`, time.Now(), m.ID); err != nil {
		return fmt.Errorf("increment attempts for match %d: %w", m.ID, err)
	}
	m.MatchAttempts++
	return nil
}

// Commit records the match target. Guarded so a match that already has
// a target is immutable. Verification starts pending; the organizer
// confirms or rejects it after the quality decision, and from then on
// only copy bookkeeping may change.
func (s *PendingStore) Commit(m *PendingMatch, wantedItemID int64, matchType string, confidence float64, parsed string) error {
	result, err := s.db.Exec(`
		UPDATE pending_matches
		SET wanted_item_id = ?, match_type = ?, confidence = ?, parsed = ?,
			verification = ?, verification_reason = '', unmatched_reason = '',
			needs_review = 0, copy_status = ?, updated_at = ?
		WHERE id = ? AND wanted_item_id IS NULL`,
		wantedItemID, matchType, confidence, parsed,
		VerificationPending, CopyPending, time.Now(), m.ID,
	)
	if err != nil {
		return fmt.Errorf("commit match %d: %w", m.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("commit match %d: %w", m.ID, ErrAlreadyResolved)
	}

	m.WantedItemID = &wantedItemID
	m.MatchType = matchType
	m.Confidence = confidence
	m.Parsed = parsed
	m.Verification = VerificationPending
	m.NeedsReview = false
	m.CopyStatus = CopyPending
	return nil
}

// Confirm marks verification passed. A rejected match cannot be
// confirmed, and a confirmed match stays confirmed.
func (s *PendingStore) Confirm(m *PendingMatch) error {
	result, err := s.db.Exec(`
		UPDATE pending_matches
		SET verification = ?, verification_reason = '', updated_at = ?
		WHERE id = ? AND wanted_item_id IS NOT NULL AND verification != ?`,
		VerificationConfirmed, time.Now(), m.ID, VerificationRejected,
	)
	if err != nil {
		return fmt.Errorf("confirm match %d: %w", m.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("confirm match %d: %w", m.ID, ErrVerificationFinal)
	}
	m.Verification = VerificationConfirmed
	m.VerificationReason = ""
	return nil
}

// RecordUnmatched stores a below-threshold or conflicting outcome with
// a human-readable reason. No target is set and no automatic action is
// taken.
func (s *PendingStore) RecordUnmatched(m *PendingMatch, reason string, confidence float64) error {
	if _, err := s.db.Exec(`
		UPDATE pending_matches
		SET unmatched_reason = ?, confidence = ?, updated_at = ?
		WHERE id = ? AND wanted_item_id IS NULL`,
		reason, confidence, time.Now(), m.ID,
	); err != nil {
		return fmt.Errorf("record unmatched for match %d: %w", m.ID, err)
	}
	m.UnmatchedReason = reason
	m.Confidence = confidence
	return nil
}

// FlagManual marks the match for mandatory manual resolution.
// Automatic re-attempts stop once this is set.
func (s *PendingStore) FlagManual(m *PendingMatch, reason string) error {
	if _, err := s.db.Exec(`
		UPDATE pending_matches
		SET needs_review = 1, unmatched_reason = ?, updated_at = ?
		WHERE id = ? AND wanted_item_id IS NULL`,
		reason, time.Now(), m.ID,
	); err != nil {
		return fmt.Errorf("flag match %d for review: %w", m.ID, err)
	}
	m.NeedsReview = true
	m.UnmatchedReason = reason
	return nil
}

// Reject records a verification rejection (e.g. quality evaluation
// decided the existing file wins). A confirmed match cannot be flipped
// back to rejected.
func (s *PendingStore) Reject(m *PendingMatch, reason string) error {
	result, err := s.db.Exec(`
		UPDATE pending_matches
		SET verification = ?, verification_reason = ?, updated_at = ?
		WHERE id = ? AND verification != ?`,
		VerificationRejected, reason, time.Now(), m.ID, VerificationConfirmed,
	)
	if err != nil {
		return fmt.Errorf("reject match %d: %w", m.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("reject match %d: %w", m.ID, ErrVerificationFinal)
	}
	m.Verification = VerificationRejected
	m.VerificationReason = reason
	return nil
}

// SetCopyStatus updates copy bookkeeping. Allowed on committed matches.
func (s *PendingStore) SetCopyStatus(m *PendingMatch, status, copyErr string) error {
	attempts := m.CopyAttempts
	if status == CopyFailed {
		attempts++
	}
	if _, err := s.db.Exec(`
		UPDATE pending_matches
		SET copy_status = ?, copy_error = ?, copy_attempts = ?, updated_at = ?
		WHERE id = ?`,
		status, copyErr, attempts, time.Now(), m.ID,
	); err != nil {
		return fmt.Errorf("set copy status for match %d: %w", m.ID, err)
	}
	m.CopyStatus = status
	m.CopyError = copyErr
	m.CopyAttempts = attempts
	return nil
}
