package match

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vmunix/grabarr/internal/config"
	"github.com/vmunix/grabarr/internal/events"
	"github.com/vmunix/grabarr/internal/library"
	"github.com/vmunix/grabarr/internal/store"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testWeights() config.Weights {
	return config.Weights{Name: 0.5, Title: 0.15, Number: 0.2, Season: 0.1, Year: 0.05}
}

func testMatchingConfig() config.MatchingConfig {
	return config.MatchingConfig{
		AutoAcceptThreshold: 0.7,
		MatchAttemptCap:     3,
		CopyAttemptCap:      3,
		Weights:             testWeights(),
	}
}

// testHarness wires a matcher against a real database.
type testHarness struct {
	db      *sql.DB
	pending *PendingStore
	lib     *library.Store
	bus     *events.Bus
	matcher *Matcher
	libRec  *library.Library
}

func newTestHarness(t *testing.T, libType library.Type, cfg config.MatchingConfig) *testHarness {
	t.Helper()
	db := setupTestDB(t)
	bus := events.NewBus(nil)
	t.Cleanup(func() { _ = bus.Close() })

	libStore := library.NewStore(db)
	l := &library.Library{UserID: "u1", Name: "main", Type: libType, Root: "/media/main"}
	require.NoError(t, libStore.AddLibrary(l))

	// Task row satisfies the pending match foreign key.
	_, err := db.Exec(`
		INSERT INTO tasks (provider_id, library_id, release_name, indexer, download_url,
			state, priority, bytes_done, bytes_total, resume_data, error, dispatched,
			added_at, last_transition_at)
		VALUES ('', ?, 'release', '', '', 'completed', 0, 0, 0, '', '', 1,
			CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`, l.ID)
	require.NoError(t, err)

	pending := NewPendingStore(db)
	return &testHarness{
		db:      db,
		pending: pending,
		lib:     libStore,
		bus:     bus,
		matcher: NewMatcher(pending, libStore, cfg, bus, nil),
		libRec:  l,
	}
}

func (h *testHarness) taskID(t *testing.T) int64 {
	t.Helper()
	var id int64
	require.NoError(t, h.db.QueryRow("SELECT id FROM tasks LIMIT 1").Scan(&id))
	return id
}

func (h *testHarness) addWanted(t *testing.T, w *library.WantedItem) *library.WantedItem {
	t.Helper()
	w.LibraryID = h.libRec.ID
	require.NoError(t, h.lib.AddWanted(w))
	return w
}

func (h *testHarness) addPending(t *testing.T, path string) *PendingMatch {
	t.Helper()
	pm, err := h.pending.CreateOrGet(h.taskID(t), path, 1000, "task", "")
	require.NoError(t, err)
	return pm
}
