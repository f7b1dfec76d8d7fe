package download

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AddIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db)
	libID := testLibraryID(t, db)

	t1 := &Task{LibraryID: libID, ReleaseName: "Show.S01E01.720p", DownloadURL: "magnet:?xt=1"}
	require.NoError(t, s.Add(t1))
	assert.NotZero(t, t1.ID)
	assert.Equal(t, StateQueued, t1.State)

	t2 := &Task{LibraryID: libID, ReleaseName: "Show.S01E01.720p", DownloadURL: "magnet:?xt=1"}
	require.NoError(t, s.Add(t2))
	assert.Equal(t, t1.ID, t2.ID, "same release should return the existing task")

	t3 := &Task{LibraryID: libID, ReleaseName: "Show.S01E02.720p"}
	require.NoError(t, s.Add(t3))
	assert.NotEqual(t, t1.ID, t3.ID)
}

func TestStore_Transition(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db)
	libID := testLibraryID(t, db)

	task := &Task{LibraryID: libID, ReleaseName: "r1"}
	require.NoError(t, s.Add(task))

	require.NoError(t, s.Transition(task, StateChecking))
	assert.Equal(t, StateChecking, task.State)

	err := s.Transition(task, StateCompleted)
	require.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, s.Transition(task, StateDownloading))
	require.NoError(t, s.Transition(task, StateCompleted))
	assert.NotNil(t, task.CompletedAt)
}

func TestStore_TransitionGuardsAgainstStaleState(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db)
	libID := testLibraryID(t, db)

	task := &Task{LibraryID: libID, ReleaseName: "r1"}
	require.NoError(t, s.Add(task))

	stale, err := s.Get(task.ID)
	require.NoError(t, err)

	require.NoError(t, s.Transition(task, StateChecking))

	// The stale copy still thinks the task is queued; its write must lose.
	err = s.Transition(stale, StateChecking)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStore_SetError(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db)
	libID := testLibraryID(t, db)

	task := &Task{LibraryID: libID, ReleaseName: "r1"}
	require.NoError(t, s.Add(task))
	require.NoError(t, s.Transition(task, StateChecking))

	require.NoError(t, s.SetError(task, "backend exploded"))
	assert.Equal(t, StateError, task.State)
	assert.Equal(t, "backend exploded", task.Error)

	// Errored tasks can requeue for a retry.
	require.NoError(t, s.Transition(task, StateQueued))
}

func TestStore_MarkDispatched(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db)
	libID := testLibraryID(t, db)

	task := &Task{LibraryID: libID, ReleaseName: "r1"}
	require.NoError(t, s.Add(task))

	first, err := s.MarkDispatched(task.ID)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := s.MarkDispatched(task.ID)
	require.NoError(t, err)
	assert.False(t, second, "second dispatch must be a no-op")
}

func TestStore_ListOrdering(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db)
	libID := testLibraryID(t, db)

	low := &Task{LibraryID: libID, ReleaseName: "low", Priority: 0}
	high := &Task{LibraryID: libID, ReleaseName: "high", Priority: 5}
	require.NoError(t, s.Add(low))
	require.NoError(t, s.Add(high))

	pending, err := s.List(Filter{Pending: true})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "high", pending[0].ReleaseName, "higher priority first")
	assert.Equal(t, "low", pending[1].ReleaseName)
}

func TestStore_Files(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db)
	libID := testLibraryID(t, db)

	task := &Task{LibraryID: libID, ReleaseName: "pack"}
	require.NoError(t, s.Add(task))

	require.NoError(t, s.ReplaceFiles(task.ID, []TaskFile{
		{TaskID: task.ID, Path: "ep1.mkv", SizeBytes: 100, Progress: 1},
		{TaskID: task.ID, Path: "sample/sample.mkv", SizeBytes: 5, Progress: 1, Excluded: true},
	}))

	files, err := s.Files(task.ID)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "ep1.mkv", files[0].Path)
	assert.True(t, files[1].Excluded)

	// Replacing swaps the whole snapshot.
	require.NoError(t, s.ReplaceFiles(task.ID, []TaskFile{
		{TaskID: task.ID, Path: "ep1.mkv", SizeBytes: 200, Progress: 1},
	}))
	files, err = s.Files(task.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, int64(200), files[0].SizeBytes)
}
