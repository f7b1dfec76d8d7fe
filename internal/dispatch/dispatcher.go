// Package dispatch turns completed acquisition tasks into file
// matching work.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/vmunix/grabarr/internal/download"
	"github.com/vmunix/grabarr/internal/events"
	"github.com/vmunix/grabarr/internal/library"
	"github.com/vmunix/grabarr/internal/match"
	"github.com/vmunix/grabarr/internal/organize"
	"github.com/vmunix/grabarr/internal/queue"
)

// Dispatcher reacts to task completions: it records one pending match
// per delivered file and runs matching and organizing for each.
// Dispatch is exactly-once per task; duplicate completion events are
// absorbed by the persisted dispatched flag and an in-flight guard.
type Dispatcher struct {
	tasks     *download.Store
	libs      *library.Store
	pending   *match.PendingStore
	matcher   *match.Matcher
	organizer *organize.Organizer
	q         *queue.Queue
	bus       *events.Bus
	log       *slog.Logger

	inflight sync.Map // task id -> struct{}
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(tasks *download.Store, libs *library.Store, pending *match.PendingStore, matcher *match.Matcher, organizer *organize.Organizer, q *queue.Queue, bus *events.Bus, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		tasks:     tasks,
		libs:      libs,
		pending:   pending,
		matcher:   matcher,
		organizer: organizer,
		q:         q,
		bus:       bus,
		log:       log.With("component", "dispatcher"),
	}
}

// Run consumes task completions until the context ends.
func (d *Dispatcher) Run(ctx context.Context) error {
	ch := d.bus.Subscribe(events.EventTaskCompleted, 16)
	defer d.bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			tc, ok := ev.(*events.TaskCompleted)
			if !ok {
				continue
			}
			if err := d.Dispatch(ctx, tc.TaskID, tc.SourcePath); err != nil {
				d.log.Error("dispatch failed", "task_id", tc.TaskID, "error", err)
			}
		}
	}
}

// Dispatch processes one completed task. Safe to call more than once
// for the same task.
func (d *Dispatcher) Dispatch(ctx context.Context, taskID int64, sourcePath string) error {
	if _, loaded := d.inflight.LoadOrStore(taskID, struct{}{}); loaded {
		return nil
	}
	defer d.inflight.Delete(taskID)

	t, err := d.tasks.Get(taskID)
	if err != nil {
		return err
	}
	lib, err := d.libs.GetLibrary(t.LibraryID)
	if err != nil {
		return fmt.Errorf("library for task %d: %w", taskID, err)
	}

	// Pending matches are recorded before the dispatched flag flips, so
	// a crash in between loses nothing: the rows survive for recovery.
	matches, err := d.recordMatches(t, sourcePath)
	if err != nil {
		return err
	}

	first, err := d.tasks.MarkDispatched(taskID)
	if err != nil {
		return err
	}
	if !first {
		d.log.Debug("task already dispatched", "task_id", taskID)
		return nil
	}

	for _, pm := range matches {
		d.submit(ctx, pm.ID, lib)
	}
	d.log.Info("task dispatched", "task_id", taskID, "files", len(matches))
	return nil
}

// recordMatches creates one pending match per non-excluded task file.
// A task with no file snapshot counts as a single file at the
// completion path.
func (d *Dispatcher) recordMatches(t *download.Task, sourcePath string) ([]*match.PendingMatch, error) {
	files, err := d.tasks.Files(t.ID)
	if err != nil {
		return nil, err
	}

	var matches []*match.PendingMatch
	for _, f := range files {
		if f.Excluded {
			continue
		}
		path := f.Path
		if !filepath.IsAbs(path) && sourcePath != "" {
			path = filepath.Join(sourcePath, path)
		}
		pm, err := d.pending.CreateOrGet(t.ID, path, f.SizeBytes, "task", t.Indexer)
		if err != nil {
			return nil, err
		}
		matches = append(matches, pm)
	}

	if len(matches) == 0 && sourcePath != "" {
		pm, err := d.pending.CreateOrGet(t.ID, sourcePath, 0, "task", t.Indexer)
		if err != nil {
			return nil, err
		}
		matches = append(matches, pm)
	}
	return matches, nil
}

// submit schedules match-then-organize for one pending match.
func (d *Dispatcher) submit(ctx context.Context, matchID int64, lib *library.Library) {
	if _, err := d.q.Submit(ctx, fmt.Sprintf("match %d", matchID), func(ctx context.Context) error {
		return d.process(ctx, matchID, lib)
	}); err != nil {
		d.log.Error("submit match job failed", "match_id", matchID, "error", err)
	}
}

// process runs one pending match to its next resting state.
func (d *Dispatcher) process(ctx context.Context, matchID int64, lib *library.Library) error {
	pm, err := d.pending.Get(matchID)
	if err != nil {
		return err
	}

	w, err := d.matcher.Match(ctx, pm, lib)
	if err != nil {
		return err
	}
	if w == nil {
		if pm.WantedItemID == nil {
			return nil
		}
		// Committed on a previous run; only the copy is outstanding.
		w, err = d.libs.GetWanted(*pm.WantedItemID)
		if err != nil {
			return fmt.Errorf("wanted item for match %d: %w", matchID, err)
		}
	}

	return d.organizer.Organize(ctx, pm, lib, w)
}

// Recover resweeps work interrupted by a restart: completed tasks that
// never dispatched, and pending matches still awaiting resolution or
// copy.
func (d *Dispatcher) Recover(ctx context.Context) error {
	state := download.StateCompleted
	tasks, err := d.tasks.List(download.Filter{State: &state})
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if t.Dispatched {
			continue
		}
		if err := d.Dispatch(ctx, t.ID, ""); err != nil {
			d.log.Error("recover dispatch failed", "task_id", t.ID, "error", err)
		}
	}

	matches, err := d.pending.List(match.PendingFilter{Unresolved: true})
	if err != nil {
		return err
	}
	pendingCopy, err := d.pending.List(match.PendingFilter{})
	if err != nil {
		return err
	}
	for _, pm := range pendingCopy {
		if pm.Committed() && pm.CopyStatus != match.CopyDone {
			matches = append(matches, pm)
		}
	}

	for _, pm := range matches {
		t, err := d.tasks.Get(pm.TaskID)
		if err != nil {
			d.log.Error("recover match failed", "match_id", pm.ID, "error", err)
			continue
		}
		lib, err := d.libs.GetLibrary(t.LibraryID)
		if err != nil {
			d.log.Error("recover match failed", "match_id", pm.ID, "error", err)
			continue
		}
		d.submit(ctx, pm.ID, lib)
	}
	return nil
}
