package download

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// doneMarker is the file an external client drops when a transfer is
// finished.
const doneMarker = ".done"

// BlackholeClient hands acquisitions to an external download client
// through the filesystem: Add drops a grab file into a watch
// directory, and progress is read back from the completion directory.
type BlackholeClient struct {
	watchDir    string
	completeDir string
}

// NewBlackholeClient creates a blackhole backend.
func NewBlackholeClient(watchDir, completeDir string) *BlackholeClient {
	return &BlackholeClient{watchDir: watchDir, completeDir: completeDir}
}

func (c *BlackholeClient) Name() string { return "blackhole" }

// Add writes a grab file for the external client and returns the
// generated provider id. ResumeData is ignored; the external client
// owns transfer state.
func (c *BlackholeClient) Add(ctx context.Context, downloadURL, resumeData string) (string, error) {
	if err := os.MkdirAll(c.watchDir, 0755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	id := uuid.NewString()
	grab := filepath.Join(c.watchDir, id+".grab")
	if err := os.WriteFile(grab, []byte(downloadURL+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write grab file: %w", err)
	}
	return id, nil
}

// Status derives task state from the filesystem: a completion
// directory with a done marker is completed, without one it is
// downloading, a still-present grab file means the client has not
// picked the task up yet.
func (c *BlackholeClient) Status(ctx context.Context, providerID string) (*ProviderStatus, error) {
	dir := filepath.Join(c.completeDir, providerID)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		st := &ProviderStatus{ProviderID: providerID, Path: dir}
		if _, err := os.Stat(filepath.Join(dir, doneMarker)); err == nil {
			st.State = StateCompleted
		} else {
			st.State = StateDownloading
		}
		var total int64
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || d.Name() == doneMarker {
				return nil
			}
			if fi, err := d.Info(); err == nil {
				total += fi.Size()
			}
			return nil
		})
		st.BytesDone = total
		st.BytesTotal = total
		return st, nil
	}

	if _, err := os.Stat(filepath.Join(c.watchDir, providerID+".grab")); err == nil {
		return &ProviderStatus{ProviderID: providerID, State: StateChecking}, nil
	}
	return nil, fmt.Errorf("provider id %s unknown to backend", providerID)
}

// Files lists delivered files under the completion directory.
func (c *BlackholeClient) Files(ctx context.Context, providerID string) ([]ProviderFile, error) {
	dir := filepath.Join(c.completeDir, providerID)
	var files []ProviderFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == doneMarker {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, ProviderFile{Path: rel, SizeBytes: fi.Size(), Progress: 1})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list delivered files: %w", err)
	}
	return files, nil
}

// Pause is not supported; the external client owns the transfer.
func (c *BlackholeClient) Pause(ctx context.Context, providerID string) error {
	return fmt.Errorf("pause: %w", ErrBackendUnavailable)
}

// Resume is not supported; the external client owns the transfer.
func (c *BlackholeClient) Resume(ctx context.Context, providerID string) error {
	return fmt.Errorf("resume: %w", ErrBackendUnavailable)
}

// Remove withdraws the grab file and optionally deletes delivered data.
func (c *BlackholeClient) Remove(ctx context.Context, providerID string, deleteFiles bool) error {
	if err := os.Remove(filepath.Join(c.watchDir, providerID+".grab")); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove grab file: %w", err)
	}
	if deleteFiles {
		if err := os.RemoveAll(filepath.Join(c.completeDir, providerID)); err != nil {
			return fmt.Errorf("remove delivered files: %w", err)
		}
	}
	return nil
}
