package library

import (
	"database/sql"
	"testing"

	"github.com/vmunix/grabarr/internal/store"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testLibrary(t *testing.T, s *Store, typ Type) *Library {
	t.Helper()
	l := &Library{UserID: "u1", Name: "test " + string(typ), Type: typ, Root: "/media/" + string(typ)}
	if err := s.AddLibrary(l); err != nil {
		t.Fatalf("AddLibrary: %v", err)
	}
	return l
}
