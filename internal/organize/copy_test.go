package organize

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src", "file.mkv")
	dst := filepath.Join(dir, "dst", "Show", "file.mkv")
	writeFile(t, src, "content")

	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if string(got) != "content" {
		t.Errorf("dest content = %q", got)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source still exists after move")
	}
}

func TestMoveFile_DestinationExists(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.mkv")
	dst := filepath.Join(dir, "dst.mkv")
	writeFile(t, src, "new")
	writeFile(t, dst, "old")

	if err := MoveFile(src, dst); !errors.Is(err, ErrDestinationExists) {
		t.Fatalf("MoveFile = %v, want ErrDestinationExists", err)
	}

	got, _ := os.ReadFile(dst)
	if string(got) != "old" {
		t.Error("existing destination was overwritten")
	}
}

func TestCopyVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.mkv")
	dst := filepath.Join(dir, "out", "dst.mkv")
	writeFile(t, src, "verified content")
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		t.Fatal(err)
	}

	if err := copyVerified(src, dst); err != nil {
		t.Fatalf("copyVerified: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "verified content" {
		t.Errorf("dest content = %q", got)
	}

	// No partial files left behind.
	entries, err := os.ReadDir(filepath.Dir(dst))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the destination file, found %d entries", len(entries))
	}
}

func TestCopyVerified_FailedVerifyLeavesNoDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.mkv")
	dst := filepath.Join(dir, "out", "dst.mkv")
	writeFile(t, src, "payload")
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		t.Fatal(err)
	}

	verifyHash = func(string) (uint64, error) { return 0, nil }
	defer func() { verifyHash = hashFile }()

	if err := copyVerified(src, dst); !errors.Is(err, ErrVerifyFailed) {
		t.Fatalf("copyVerified = %v, want ErrVerifyFailed", err)
	}

	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("destination exists after failed verification")
	}
	entries, err := os.ReadDir(filepath.Dir(dst))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("partial files left behind: %d entries", len(entries))
	}

	got, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("source unreadable after failed verification: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("source content = %q, want untouched original", got)
	}
}

func TestSweepEmptyDirs(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "a", "b", "c"), 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(root, "d", "file.mkv"), "x")

	sweepEmptyDirs(root)

	if _, err := os.Stat(filepath.Join(root, "a")); !os.IsNotExist(err) {
		t.Error("empty directory chain not removed")
	}
	if _, err := os.Stat(filepath.Join(root, "d", "file.mkv")); err != nil {
		t.Error("populated directory was touched")
	}
	if _, err := os.Stat(root); err != nil {
		t.Error("root was removed")
	}
}

func TestRemoveEmptyParents(t *testing.T) {
	dir := t.TempDir()
	leaf := filepath.Join(dir, "a", "b", "c", "file.mkv")
	writeFile(t, leaf, "x")
	keep := filepath.Join(dir, "a", "keep.txt")
	writeFile(t, keep, "x")

	if err := os.Remove(leaf); err != nil {
		t.Fatal(err)
	}
	RemoveEmptyParents(leaf, dir)

	if _, err := os.Stat(filepath.Join(dir, "a", "b")); !os.IsNotExist(err) {
		t.Error("empty parent directories not removed")
	}
	if _, err := os.Stat(keep); err != nil {
		t.Error("non-empty directory was touched")
	}
}
