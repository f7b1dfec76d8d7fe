package download

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vmunix/grabarr/internal/store"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testLibraryID(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO libraries (user_id, name, type, root) VALUES ('u1', 'shows', 'tv', '/media/shows')`)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

// fakeClient is an in-memory download backend.
type fakeClient struct {
	mu        sync.Mutex
	nextID    int
	statuses  map[string]ProviderStatus
	files     map[string][]ProviderFile
	addErr    error
	statusErr error
	removed   []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		statuses: make(map[string]ProviderStatus),
		files:    make(map[string][]ProviderFile),
	}
}

func (c *fakeClient) Name() string { return "fake" }

func (c *fakeClient) Add(ctx context.Context, downloadURL, resumeData string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.addErr != nil {
		return "", c.addErr
	}
	c.nextID++
	id := fmt.Sprintf("p%d", c.nextID)
	c.statuses[id] = ProviderStatus{ProviderID: id, State: StateDownloading}
	return id, nil
}

func (c *fakeClient) Status(ctx context.Context, providerID string) (*ProviderStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statusErr != nil {
		return nil, c.statusErr
	}
	st, ok := c.statuses[providerID]
	if !ok {
		return nil, fmt.Errorf("unknown provider id %s", providerID)
	}
	return &st, nil
}

func (c *fakeClient) Files(ctx context.Context, providerID string) ([]ProviderFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.files[providerID], nil
}

func (c *fakeClient) Pause(ctx context.Context, providerID string) error {
	c.setState(providerID, StatePaused)
	return nil
}

func (c *fakeClient) Resume(ctx context.Context, providerID string) error {
	c.setState(providerID, StateDownloading)
	return nil
}

func (c *fakeClient) Remove(ctx context.Context, providerID string, deleteFiles bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.statuses, providerID)
	c.removed = append(c.removed, providerID)
	return nil
}

func (c *fakeClient) setState(providerID string, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.statuses[providerID]
	st.ProviderID = providerID
	st.State = state
	c.statuses[providerID] = st
}

func (c *fakeClient) setStatus(providerID string, st ProviderStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[providerID] = st
}
