package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/vmunix/grabarr/internal/events"
)

// Coordinator drives acquisition tasks through their state machine and
// enforces the global concurrency cap. All transitions go through the
// coordinator, so each task has at most one writer at a time.
type Coordinator struct {
	client         Downloader
	store          *Store
	bus            *events.Bus
	maxConcurrent  int
	deleteOnCancel bool
	log            *slog.Logger

	mu sync.Mutex // serializes transitions and admission
}

// NewCoordinator creates a coordinator.
func NewCoordinator(client Downloader, store *Store, bus *events.Bus, maxConcurrent int, deleteOnCancel bool, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Coordinator{
		client:         client,
		store:          store,
		bus:            bus,
		maxConcurrent:  maxConcurrent,
		deleteOnCancel: deleteOnCancel,
		log:            log.With("component", "coordinator"),
	}
}

// Enqueue accepts a new acquisition task. Tasks beyond the concurrency
// cap sit queued and are admitted FIFO within priority as slots free.
func (c *Coordinator) Enqueue(ctx context.Context, t *Task) error {
	if err := c.store.Add(t); err != nil {
		return fmt.Errorf("save task: %w", err)
	}

	c.bus.Publish(&events.TaskQueued{
		BaseEvent:   events.NewBaseEvent(events.EventTaskQueued, events.EntityTask, t.ID),
		TaskID:      t.ID,
		ReleaseName: t.ReleaseName,
	})
	c.log.Info("task queued", "task_id", t.ID, "release", t.ReleaseName)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.admitLocked(ctx)
}

// admitLocked starts queued tasks while slots are free. Callers hold c.mu.
func (c *Coordinator) admitLocked(ctx context.Context) error {
	active, err := c.store.List(Filter{Active: true})
	if err != nil {
		return fmt.Errorf("list active: %w", err)
	}
	slots := c.maxConcurrent - len(active)
	if slots <= 0 {
		return nil
	}

	pending, err := c.store.List(Filter{Pending: true})
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}

	for _, t := range pending {
		if slots <= 0 {
			break
		}
		if err := c.transitionLocked(t, StateChecking); err != nil {
			c.log.Error("admit failed", "task_id", t.ID, "error", err)
			continue
		}
		slots--

		providerID, err := c.client.Add(ctx, t.DownloadURL, t.ResumeData)
		if err != nil {
			c.failLocked(t, fmt.Sprintf("add to backend: %v", err))
			slots++
			continue
		}
		if err := c.store.SetProviderID(t, providerID); err != nil {
			c.log.Error("save provider id failed", "task_id", t.ID, "error", err)
		}
		c.log.Info("task admitted", "task_id", t.ID, "provider_id", providerID)
	}
	return nil
}

// Refresh polls the backend for status and syncs task state, paused
// tasks included so externally resumed or finished downloads are
// picked up. Completion is published exactly once: the downloading ->
// completed transition can only succeed for one observer.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tasks, err := c.store.List(Filter{Polled: true})
	if err != nil {
		return fmt.Errorf("list polled: %w", err)
	}

	var lastErr error
	for _, t := range tasks {
		if t.ProviderID == "" {
			continue
		}
		status, err := c.client.Status(ctx, t.ProviderID)
		if err != nil {
			c.log.Error("status poll failed", "task_id", t.ID, "error", err)
			lastErr = err
			continue
		}

		if err := c.store.SetProgress(t, status.BytesDone, status.BytesTotal); err != nil {
			c.log.Error("save progress failed", "task_id", t.ID, "error", err)
		}

		if status.State == t.State {
			continue
		}

		switch status.State {
		case StateCompleted:
			c.completeLocked(ctx, t, status)
		case StateError:
			c.failLocked(t, "backend reported failure")
		default:
			if t.State.CanTransitionTo(status.State) {
				if err := c.transitionLocked(t, status.State); err != nil {
					c.log.Error("sync transition failed", "task_id", t.ID, "error", err)
					lastErr = err
				}
			}
		}
	}

	return errors.Join(lastErr, c.admitLocked(ctx))
}

// completeLocked finalizes a finished task: snapshots its files, moves
// it to completed, and announces the completion.
func (c *Coordinator) completeLocked(ctx context.Context, t *Task, status *ProviderStatus) {
	files, err := c.client.Files(ctx, t.ProviderID)
	if err != nil {
		c.log.Error("list backend files failed", "task_id", t.ID, "error", err)
	} else {
		snapshot := make([]TaskFile, 0, len(files))
		for _, f := range files {
			snapshot = append(snapshot, TaskFile{
				TaskID:    t.ID,
				Path:      f.Path,
				SizeBytes: f.SizeBytes,
				Progress:  f.Progress,
				Excluded:  strings.Contains(strings.ToLower(f.Path), "sample"),
			})
		}
		if err := c.store.ReplaceFiles(t.ID, snapshot); err != nil {
			c.log.Error("save task files failed", "task_id", t.ID, "error", err)
		}
	}

	// A paused task the backend finished anyway passes through
	// downloading so the completed transition stays single-step.
	if t.State == StatePaused {
		if err := c.transitionLocked(t, StateDownloading); err != nil {
			c.log.Debug("complete transition rejected", "task_id", t.ID, "error", err)
			return
		}
	}

	if err := c.transitionLocked(t, StateCompleted); err != nil {
		// Lost the race with another observer; completion already announced.
		c.log.Debug("complete transition rejected", "task_id", t.ID, "error", err)
		return
	}

	c.bus.Publish(&events.TaskCompleted{
		BaseEvent:  events.NewBaseEvent(events.EventTaskCompleted, events.EntityTask, t.ID),
		TaskID:     t.ID,
		LibraryID:  t.LibraryID,
		SourcePath: status.Path,
	})
	c.log.Info("task completed", "task_id", t.ID, "release", t.ReleaseName, "path", status.Path)
}

// Pause suspends a downloading task.
func (c *Coordinator) Pause(ctx context.Context, taskID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.store.Get(taskID)
	if err != nil {
		return err
	}
	if err := c.client.Pause(ctx, t.ProviderID); err != nil {
		return fmt.Errorf("pause in backend: %w", err)
	}
	if err := c.transitionLocked(t, StatePaused); err != nil {
		return err
	}
	// Pausing frees a slot
	return c.admitLocked(ctx)
}

// Resume continues a paused task.
func (c *Coordinator) Resume(ctx context.Context, taskID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.store.Get(taskID)
	if err != nil {
		return err
	}
	if err := c.client.Resume(ctx, t.ProviderID); err != nil {
		return fmt.Errorf("resume in backend: %w", err)
	}
	return c.transitionLocked(t, StateDownloading)
}

// Cancel terminates a task, releasing backend resources and optionally
// deleting partial data. Terminal; canceled tasks are not retried.
func (c *Coordinator) Cancel(ctx context.Context, taskID int64, deleteFiles bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.store.Get(taskID)
	if err != nil {
		return err
	}
	if t.State == StateCanceled {
		return nil
	}

	// Best effort; the backend may not know the task anymore
	if t.ProviderID != "" {
		_ = c.client.Remove(ctx, t.ProviderID, deleteFiles || c.deleteOnCancel)
	}

	if err := c.transitionLocked(t, StateCanceled); err != nil {
		return err
	}
	return c.admitLocked(ctx)
}

// Restore reconstructs persisted tasks after a restart. Tasks whose
// resume fails move to the error state with a reason instead of
// silently disappearing.
func (c *Coordinator) Restore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tasks, err := c.store.List(Filter{})
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	for _, t := range tasks {
		if t.State.Terminal() || t.State == StateQueued ||
			t.State == StateCompleted || t.State == StateSeeding {
			continue
		}
		if t.ProviderID == "" {
			c.failLocked(t, "resume failed: no provider id persisted")
			continue
		}
		if _, err := c.client.Status(ctx, t.ProviderID); err != nil {
			c.failLocked(t, fmt.Sprintf("resume failed: %v", err))
			continue
		}
		c.log.Info("task restored", "task_id", t.ID, "state", t.State)
	}

	return c.admitLocked(ctx)
}

// transitionLocked validates and persists a transition and announces it.
func (c *Coordinator) transitionLocked(t *Task, to State) error {
	from := t.State
	if err := c.store.Transition(t, to); err != nil {
		return err
	}
	c.bus.Publish(&events.TaskStateChanged{
		BaseEvent: events.NewBaseEvent(events.EventTaskStateChanged, events.EntityTask, t.ID),
		TaskID:    t.ID,
		From:      string(from),
		To:        string(to),
	})
	return nil
}

func (c *Coordinator) failLocked(t *Task, reason string) {
	if err := c.store.SetError(t, reason); err != nil {
		c.log.Error("set error failed", "task_id", t.ID, "error", err)
		return
	}
	c.bus.Publish(&events.TaskFailed{
		BaseEvent: events.NewBaseEvent(events.EventTaskFailed, events.EntityTask, t.ID),
		TaskID:    t.ID,
		Reason:    reason,
	})
	c.log.Warn("task failed", "task_id", t.ID, "reason", reason)
}
