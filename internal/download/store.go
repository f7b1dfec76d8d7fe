package download

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Store persists task records.
type Store struct {
	db *sql.DB
}

// NewStore creates a task store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const taskColumns = `id, provider_id, library_id, release_name, indexer, download_url, state,
	priority, bytes_done, bytes_total, resume_data, error, dispatched,
	added_at, completed_at, last_transition_at`

func scanTask(row interface{ Scan(...any) error }) (*Task, error) {
	t := &Task{}
	err := row.Scan(&t.ID, &t.ProviderID, &t.LibraryID, &t.ReleaseName, &t.Indexer,
		&t.DownloadURL, &t.State, &t.Priority, &t.BytesDone, &t.BytesTotal,
		&t.ResumeData, &t.Error, &t.Dispatched, &t.AddedAt, &t.CompletedAt, &t.LastTransitionAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Add records a new task in the queued state. Idempotent: a task with
// the same library and release name returns the existing record.
func (s *Store) Add(t *Task) error {
	existing, err := scanTask(s.db.QueryRow(
		"SELECT "+taskColumns+" FROM tasks WHERE library_id = ? AND release_name = ?",
		t.LibraryID, t.ReleaseName,
	))
	if err == nil {
		*t = *existing
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("check existing task: %w", err)
	}

	now := time.Now()
	t.State = StateQueued
	result, err := s.db.Exec(`
		INSERT INTO tasks (provider_id, library_id, release_name, indexer, download_url,
			state, priority, bytes_done, bytes_total, resume_data, error, dispatched,
			added_at, completed_at, last_transition_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, ?, '', 0, ?, NULL, ?)`,
		t.ProviderID, t.LibraryID, t.ReleaseName, t.Indexer, t.DownloadURL,
		t.State, t.Priority, t.ResumeData, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	t.ID = id
	t.AddedAt = now
	t.LastTransitionAt = now
	return nil
}

// Get retrieves a task by ID.
func (s *Store) Get(id int64) (*Task, error) {
	t, err := scanTask(s.db.QueryRow("SELECT "+taskColumns+" FROM tasks WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("get task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return t, nil
}

// List returns tasks matching the filter, FIFO within priority.
func (s *Store) List(f Filter) ([]*Task, error) {
	var conditions []string
	var args []any

	if f.State != nil {
		conditions = append(conditions, "state = ?")
		args = append(args, *f.State)
	}
	if f.Active {
		conditions = append(conditions, "state IN (?, ?)")
		args = append(args, StateChecking, StateDownloading)
	}
	if f.Pending {
		conditions = append(conditions, "state = ?")
		args = append(args, StateQueued)
	}
	if f.Polled {
		conditions = append(conditions, "state IN (?, ?, ?)")
		args = append(args, StateChecking, StateDownloading, StatePaused)
	}

	query := "SELECT " + taskColumns + " FROM tasks"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY priority DESC, added_at, id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

// Transition changes a task's state with validation.
func (s *Store) Transition(t *Task, to State) error {
	if !t.State.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.State, to)
	}

	now := time.Now()
	var completedAt *time.Time
	if to == StateCompleted {
		completedAt = &now
	} else {
		completedAt = t.CompletedAt
	}

	result, err := s.db.Exec(`
		UPDATE tasks SET state = ?, completed_at = ?, last_transition_at = ?
		WHERE id = ? AND state = ?`,
		to, completedAt, now, t.ID, t.State,
	)
	if err != nil {
		return fmt.Errorf("update task %d: %w", t.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		// Either the row is gone or a concurrent writer moved it first.
		return fmt.Errorf("transition task %d: %w", t.ID, ErrInvalidTransition)
	}

	t.State = to
	t.CompletedAt = completedAt
	t.LastTransitionAt = now
	return nil
}

// SetError transitions a task to the error state with a reason.
func (s *Store) SetError(t *Task, reason string) error {
	if err := s.Transition(t, StateError); err != nil {
		return err
	}
	if _, err := s.db.Exec("UPDATE tasks SET error = ? WHERE id = ?", reason, t.ID); err != nil {
		return fmt.Errorf("set task %d error: %w", t.ID, err)
	}
	t.Error = reason
	return nil
}

// SetProviderID records the backend-assigned id after Add.
func (s *Store) SetProviderID(t *Task, providerID string) error {
	if _, err := s.db.Exec("UPDATE tasks SET provider_id = ? WHERE id = ?", providerID, t.ID); err != nil {
		return fmt.Errorf("set task %d provider id: %w", t.ID, err)
	}
	t.ProviderID = providerID
	return nil
}

// SetProgress updates byte counters.
func (s *Store) SetProgress(t *Task, done, total int64) error {
	if _, err := s.db.Exec("UPDATE tasks SET bytes_done = ?, bytes_total = ? WHERE id = ?",
		done, total, t.ID); err != nil {
		return fmt.Errorf("set task %d progress: %w", t.ID, err)
	}
	t.BytesDone = done
	t.BytesTotal = total
	return nil
}

// MarkDispatched flags the task's completion as processed.
// Returns false if it was already flagged, making dispatch idempotent.
func (s *Store) MarkDispatched(taskID int64) (bool, error) {
	result, err := s.db.Exec("UPDATE tasks SET dispatched = 1 WHERE id = ? AND dispatched = 0", taskID)
	if err != nil {
		return false, fmt.Errorf("mark task %d dispatched: %w", taskID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return rows > 0, nil
}

// ReplaceFiles stores the task's constituent files, replacing any
// previous snapshot.
func (s *Store) ReplaceFiles(taskID int64, files []TaskFile) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM task_files WHERE task_id = ?", taskID); err != nil {
		return fmt.Errorf("clear task files: %w", err)
	}
	for _, f := range files {
		if _, err := tx.Exec(`
			INSERT INTO task_files (task_id, path, size_bytes, progress, excluded)
			VALUES (?, ?, ?, ?, ?)`,
			taskID, f.Path, f.SizeBytes, f.Progress, f.Excluded,
		); err != nil {
			return fmt.Errorf("insert task file: %w", err)
		}
	}
	return tx.Commit()
}

// Files returns the task's constituent files.
func (s *Store) Files(taskID int64) ([]TaskFile, error) {
	rows, err := s.db.Query(`
		SELECT id, task_id, path, size_bytes, progress, excluded
		FROM task_files WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []TaskFile
	for rows.Next() {
		var f TaskFile
		if err := rows.Scan(&f.ID, &f.TaskID, &f.Path, &f.SizeBytes, &f.Progress, &f.Excluded); err != nil {
			return nil, fmt.Errorf("scan task file: %w", err)
		}
		results = append(results, f)
	}
	return results, rows.Err()
}

// Delete removes a task. Idempotent.
func (s *Store) Delete(id int64) error {
	if _, err := s.db.Exec("DELETE FROM tasks WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return nil
}
