package library

import (
	"errors"
	"sync"
	"testing"
)

func TestStore_AddAndGetLibrary(t *testing.T) {
	s := NewStore(setupTestDB(t))

	l := testLibrary(t, s, TypeTV)
	if l.ID == 0 {
		t.Error("ID should be set after AddLibrary")
	}

	got, err := s.GetLibrary(l.ID)
	if err != nil {
		t.Fatalf("GetLibrary: %v", err)
	}
	if got.Name != l.Name || got.Type != TypeTV || got.Root != l.Root {
		t.Errorf("got %+v, want %+v", got, l)
	}

	if _, err := s.GetLibrary(9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ListLibraries_ScopedToUser(t *testing.T) {
	s := NewStore(setupTestDB(t))

	if err := s.AddLibrary(&Library{UserID: "u1", Name: "a", Type: TypeTV, Root: "/a"}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddLibrary(&Library{UserID: "u2", Name: "b", Type: TypeMovie, Root: "/b"}); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListLibraries("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("got %d libraries, want 2", len(all))
	}

	scoped, err := s.ListLibraries("u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(scoped) != 1 || scoped[0].Name != "a" {
		t.Errorf("got %+v", scoped)
	}
}

func TestStore_WantedLifecycle(t *testing.T) {
	s := NewStore(setupTestDB(t))
	l := testLibrary(t, s, TypeTV)

	w := &WantedItem{LibraryID: l.ID, Name: "Breaking Bad", Season: 2, Episode: 5}
	if err := s.AddWanted(w); err != nil {
		t.Fatalf("AddWanted: %v", err)
	}
	if w.ID == 0 {
		t.Error("ID should be set")
	}

	items, err := s.ListWanted(WantedFilter{LibraryID: &l.ID, Unclaimed: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d wanted items, want 1", len(items))
	}

	if err := s.DeleteWanted(w.ID); err != nil {
		t.Fatalf("DeleteWanted: %v", err)
	}
	if _, err := s.GetWanted(w.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ClaimWanted(t *testing.T) {
	s := NewStore(setupTestDB(t))
	l := testLibrary(t, s, TypeTV)

	w := &WantedItem{LibraryID: l.ID, Name: "Show", Season: 1, Episode: 1}
	if err := s.AddWanted(w); err != nil {
		t.Fatal(err)
	}

	if err := s.ClaimWanted(w.ID, 101); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := s.ClaimWanted(w.ID, 102); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("second claim: expected ErrAlreadyClaimed, got %v", err)
	}

	// Claimed items disappear from the unclaimed view.
	items, err := s.ListWanted(WantedFilter{LibraryID: &l.ID, Unclaimed: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("got %d unclaimed items, want 0", len(items))
	}

	if err := s.ReleaseWanted(w.ID, 101); err != nil {
		t.Fatalf("ReleaseWanted: %v", err)
	}
	if err := s.ClaimWanted(w.ID, 103); err != nil {
		t.Errorf("claim after release: %v", err)
	}
}

func TestStore_ClaimWanted_Concurrent(t *testing.T) {
	s := NewStore(setupTestDB(t))
	l := testLibrary(t, s, TypeTV)

	w := &WantedItem{LibraryID: l.ID, Name: "Show", Season: 1, Episode: 1}
	if err := s.AddWanted(w); err != nil {
		t.Fatal(err)
	}

	const claimers = 8
	var wg sync.WaitGroup
	results := make([]error, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.ClaimWanted(w.ID, int64(i+1))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrAlreadyClaimed) {
			t.Errorf("unexpected claim error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("%d claims succeeded, want exactly 1", wins)
	}
}

func TestStore_Files(t *testing.T) {
	s := NewStore(setupTestDB(t))
	l := testLibrary(t, s, TypeMovie)

	w := &WantedItem{LibraryID: l.ID, Name: "Dune", Year: 2021}
	if err := s.AddWanted(w); err != nil {
		t.Fatal(err)
	}

	f := &File{
		LibraryID:    l.ID,
		WantedItemID: &w.ID,
		Path:         "/media/movie/Dune (2021)/Dune (2021) - 1080p.mkv",
		SizeBytes:    4 << 30,
		Resolution:   "1080p",
		Source:       "webdl",
		Codec:        "x265",
	}
	if err := s.AddFile(f); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	got, err := s.GetFile(f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Resolution != "1080p" || got.WantedItemID == nil || *got.WantedItemID != w.ID {
		t.Errorf("got %+v", got)
	}
	if got.AnalyzedAt != nil {
		t.Error("AnalyzedAt should be nil before analysis")
	}

	if err := s.SetFileMetadata(f.ID, "matroska", 7200); err != nil {
		t.Fatalf("SetFileMetadata: %v", err)
	}
	got, err = s.GetFile(f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MediaCodec != "matroska" || got.DurationSecs != 7200 {
		t.Errorf("metadata not stored: %+v", got)
	}
	if got.AnalyzedAt == nil {
		t.Error("AnalyzedAt should be set after analysis")
	}

	byItem, err := s.ListFiles(FileFilter{WantedItemID: &w.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(byItem) != 1 {
		t.Errorf("got %d files, want 1", len(byItem))
	}
}

func TestStore_OrphanedFiles(t *testing.T) {
	s := NewStore(setupTestDB(t))
	l := testLibrary(t, s, TypeTV)

	w := &WantedItem{LibraryID: l.ID, Name: "Show", Season: 1, Episode: 1}
	if err := s.AddWanted(w); err != nil {
		t.Fatal(err)
	}
	f := &File{LibraryID: l.ID, WantedItemID: &w.ID, Path: "/media/shows/Show/S01E01.mkv", SizeBytes: 1}
	if err := s.AddFile(f); err != nil {
		t.Fatal(err)
	}

	orphans, err := s.OrphanedFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(orphans) != 0 {
		t.Fatalf("got %d orphans before delete, want 0", len(orphans))
	}

	// Deleting the wanted item releases its files.
	if err := s.DeleteWanted(w.ID); err != nil {
		t.Fatalf("DeleteWanted: %v", err)
	}
	orphans, err = s.OrphanedFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(orphans) != 1 || orphans[0].ID != f.ID {
		t.Fatalf("got %+v, want the released file", orphans)
	}
	if orphans[0].WantedItemID != nil {
		t.Error("ownership should be cleared")
	}
}
