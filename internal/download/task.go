// Package download owns the state machine of in-flight acquisition tasks.
package download

import (
	"context"
	"time"
)

// State tracks task progress through the acquisition lifecycle.
type State string

const (
	StateQueued      State = "queued"
	StateChecking    State = "checking"
	StateDownloading State = "downloading"
	StatePaused      State = "paused"
	StateCompleted   State = "completed"
	StateSeeding     State = "seeding"
	StateError       State = "error"
	StateCanceled    State = "canceled"
)

// validTransitions defines allowed state transitions.
// Transitions are monotonic forward except Pause/Cancel/Error; error
// allows a retry back to queued.
var validTransitions = map[State][]State{
	StateQueued:      {StateChecking, StateError, StateCanceled},
	StateChecking:    {StateDownloading, StateError, StateCanceled},
	StateDownloading: {StatePaused, StateCompleted, StateError, StateCanceled},
	StatePaused:      {StateDownloading, StateError, StateCanceled},
	StateCompleted:   {StateSeeding},
	StateSeeding:     {StateCanceled},
	StateError:       {StateQueued},
	StateCanceled:    {},
}

// CanTransitionTo returns true if transitioning from s to target is valid.
func (s State) CanTransitionTo(target State) bool {
	valid, ok := validTransitions[s]
	if !ok {
		return false
	}
	for _, v := range valid {
		if v == target {
			return true
		}
	}
	return false
}

// Active reports whether the state occupies a concurrency slot.
func (s State) Active() bool {
	return s == StateChecking || s == StateDownloading
}

// Terminal reports whether the state admits no further work.
func (s State) Terminal() bool {
	return s == StateCanceled || s == StateError
}

// Task is one in-flight acquisition.
type Task struct {
	ID               int64
	ProviderID       string // content hash or backend-assigned id
	LibraryID        int64
	ReleaseName      string
	Indexer          string
	DownloadURL      string
	State            State
	Priority         int
	BytesDone        int64
	BytesTotal       int64
	ResumeData       string
	Error            string
	Dispatched       bool
	AddedAt          time.Time
	CompletedAt      *time.Time
	LastTransitionAt time.Time
}

// TaskFile is one constituent file of a task.
type TaskFile struct {
	ID        int64
	TaskID    int64
	Path      string
	SizeBytes int64
	Progress  float64 // 0-1
	Excluded  bool
}

// Filter specifies criteria for listing tasks.
type Filter struct {
	State   *State
	Active  bool // only states occupying a slot
	Pending bool // queued tasks awaiting admission
	Polled  bool // states with a live backend handle to sync against
}

// ProviderStatus is a backend's view of a task.
type ProviderStatus struct {
	ProviderID string
	State      State
	BytesDone  int64
	BytesTotal int64
	Path       string // completed download path
}

// ProviderFile is a backend's view of one contained file.
type ProviderFile struct {
	Path      string
	SizeBytes int64
	Progress  float64
}

// Downloader is the capability interface download backends implement.
type Downloader interface {
	// Name returns the backend identifier.
	Name() string
	// Add starts an acquisition, optionally resuming from prior state.
	Add(ctx context.Context, downloadURL, resumeData string) (providerID string, err error)
	// Status returns the backend's view of a task.
	Status(ctx context.Context, providerID string) (*ProviderStatus, error)
	// Files lists the task's constituent files.
	Files(ctx context.Context, providerID string) ([]ProviderFile, error)
	// Pause suspends a task.
	Pause(ctx context.Context, providerID string) error
	// Resume continues a paused task.
	Resume(ctx context.Context, providerID string) error
	// Remove cancels a task, optionally deleting partial data.
	Remove(ctx context.Context, providerID string, deleteFiles bool) error
}
