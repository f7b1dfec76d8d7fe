package organize

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// verifyHash is indirected for tests.
var verifyHash = hashFile

// MoveFile places src at dst. A same-filesystem rename is tried first;
// across filesystems it falls back to a verified copy followed by
// source deletion. Returns ErrDestinationExists if dst already exists.
func MoveFile(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return ErrDestinationExists
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("%w: create directory: %v", ErrCopyFailed, err)
	}

	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	if err := copyVerified(src, dst); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove source after copy: %w", err)
	}
	return nil
}

// copyVerified copies src into a temporary file next to dst, verifies
// the checksum against the source, then renames into place. A failed
// verify removes the temporary file and leaves no destination behind.
func copyVerified(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open source: %v", ErrCopyFailed, err)
	}
	defer func() { _ = srcFile.Close() }()

	// Temp file lives in the destination directory so the final rename
	// stays on one filesystem.
	tmp := filepath.Join(filepath.Dir(dst), ".partial-"+uuid.NewString())
	tmpFile, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrCopyFailed, err)
	}

	srcHash := xxhash.New()
	_, err = io.Copy(tmpFile, io.TeeReader(srcFile, srcHash))
	if err == nil {
		err = tmpFile.Sync()
	}
	if closeErr := tmpFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: copy content: %v", ErrCopyFailed, err)
	}

	dstSum, err := verifyHash(tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: hash copy: %v", ErrCopyFailed, err)
	}
	if dstSum != srcHash.Sum64() {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: checksum mismatch copying %s", ErrVerifyFailed, filepath.Base(src))
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: rename into place: %v", ErrCopyFailed, err)
	}
	return nil
}

func hashFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// RemoveEmptyParents deletes empty directories above path up to (not
// including) stop. Best effort.
func RemoveEmptyParents(path, stop string) {
	stop = filepath.Clean(stop)
	dir := filepath.Dir(filepath.Clean(path))
	for dir != stop && len(dir) > len(stop) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// sweepEmptyDirs removes empty directories below root, deepest first.
// The root itself is kept. Best effort.
func sweepEmptyDirs(root string) {
	var dirs []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != filepath.Clean(root) {
			dirs = append(dirs, path)
		}
		return nil
	})

	// WalkDir visits parents before children; deleting in reverse
	// order empties nested chains bottom-up.
	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := os.ReadDir(dirs[i])
		if err == nil && len(entries) == 0 {
			_ = os.Remove(dirs[i])
		}
	}
}
