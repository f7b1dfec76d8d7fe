// Package organize moves committed files into their library locations.
package organize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmunix/grabarr/internal/events"
	"github.com/vmunix/grabarr/internal/library"
	"github.com/vmunix/grabarr/internal/match"
	"github.com/vmunix/grabarr/internal/quality"
	"github.com/vmunix/grabarr/pkg/relname"
)

// Organizer places committed matches into library roots, replacing
// existing files when the quality evaluator says the new file wins.
type Organizer struct {
	lib            *library.Store
	pending        *match.PendingStore
	evaluator      *quality.Evaluator
	renamer        *Renamer
	copyAttemptCap int
	bus            *events.Bus
	log            *slog.Logger
}

// NewOrganizer creates an organizer.
func NewOrganizer(lib *library.Store, pending *match.PendingStore, evaluator *quality.Evaluator, renamer *Renamer, copyAttemptCap int, bus *events.Bus, log *slog.Logger) *Organizer {
	if log == nil {
		log = slog.Default()
	}
	return &Organizer{
		lib:            lib,
		pending:        pending,
		evaluator:      evaluator,
		renamer:        renamer,
		copyAttemptCap: copyAttemptCap,
		bus:            bus,
		log:            log.With("component", "organizer"),
	}
}

// Organize moves a committed match's file into the library. Idempotent
// on completed copies; failed copies retry up to the attempt cap.
func (o *Organizer) Organize(ctx context.Context, pm *match.PendingMatch, lib *library.Library, w *library.WantedItem) error {
	if !pm.Committed() {
		return fmt.Errorf("match %d has no target", pm.ID)
	}
	if pm.Verification == match.VerificationRejected || pm.CopyStatus == match.CopyDone {
		return nil
	}
	if o.copyAttemptCap > 0 && pm.CopyAttempts >= o.copyAttemptCap {
		return o.failCopy(pm, fmt.Sprintf("giving up after %d copy attempts", pm.CopyAttempts))
	}

	info := relname.Parse(filepath.Base(pm.SourcePath))
	attrs := quality.FromInfo(info)

	// An existing file for the slot triggers a quality comparison.
	var replace *library.File
	existing, err := o.lib.ListFiles(library.FileFilter{WantedItemID: &w.ID})
	if err != nil {
		return fmt.Errorf("list existing files: %w", err)
	}
	if len(existing) > 0 {
		decision, reason := o.evaluator.Evaluate("", attrs, quality.FromFile(existing[0]))
		switch decision {
		case quality.Reject:
			return o.rejectMatch(pm, w, reason)
		case quality.Equivalent:
			if o.evaluator.Policy() == quality.PolicyKeepFirst {
				return o.rejectMatch(pm, w, "equivalent quality, keeping existing file")
			}
		case quality.Upgrade:
			replace = existing[0]
			o.log.Info("upgrading library file", "wanted_id", w.ID, "reason", reason)
		}
	}

	// Quality gate passed; the verification becomes final here.
	if pm.Verification != match.VerificationConfirmed {
		if err := o.pending.Confirm(pm); err != nil {
			return err
		}
	}

	ext := strings.TrimPrefix(filepath.Ext(pm.SourcePath), ".")
	rel := o.renamer.DestPath(lib.Type, w, qualityLabel(info), ext)
	dest := filepath.Join(lib.Root, rel)
	if err := ValidatePath(dest, lib.Root); err != nil {
		return o.failCopy(pm, fmt.Sprintf("destination %s: %v", dest, err))
	}
	if replace != nil && dest == replace.Path {
		// Same destination name; move aside so the new copy can land.
		dest = dest + ".new"
	}

	if err := MoveFile(pm.SourcePath, dest); err != nil {
		if copyErr := o.failCopy(pm, err.Error()); copyErr != nil {
			return copyErr
		}
		return err
	}

	size := pm.SizeBytes
	if st, err := os.Stat(dest); err == nil {
		size = st.Size()
	}
	file := &library.File{
		LibraryID:     lib.ID,
		WantedItemID:  &w.ID,
		Path:          dest,
		SizeBytes:     size,
		Resolution:    enumLabel(info.Resolution.String()),
		Source:        enumLabel(info.Source.String()),
		Codec:         enumLabel(info.Codec.String()),
		HDR:           info.HDR.String(),
		AudioChannels: info.AudioChannels,
		Proper:        info.Proper,
		Repack:        info.Repack,
	}

	// Replacement is confirmed only after the new file is in place.
	if replace != nil {
		if err := o.lib.DeleteFile(replace.ID); err != nil {
			o.log.Error("delete replaced file record failed", "file_id", replace.ID, "error", err)
		} else if err := os.Remove(replace.Path); err != nil && !os.IsNotExist(err) {
			o.log.Warn("delete replaced file failed", "path", replace.Path, "error", err)
		}
		if strings.HasSuffix(dest, ".new") {
			final := strings.TrimSuffix(dest, ".new")
			if err := os.Rename(dest, final); err == nil {
				dest = final
				file.Path = final
			}
		}
	}

	if err := o.lib.AddFile(file); err != nil {
		return fmt.Errorf("record library file: %w", err)
	}
	if err := o.pending.SetCopyStatus(pm, match.CopyDone, ""); err != nil {
		return err
	}
	RemoveEmptyParents(pm.SourcePath, filepath.Dir(filepath.Dir(pm.SourcePath)))

	o.bus.Publish(&events.OrganizeCompleted{
		BaseEvent: events.NewBaseEvent(events.EventOrganizeCompleted, events.EntityFile, file.ID),
		MatchID:   pm.ID,
		FileID:    file.ID,
		DestPath:  dest,
	})
	o.log.Info("file organized", "match_id", pm.ID, "dest", dest)
	return nil
}

// Cleanup drops file records whose file vanished from disk, deletes
// on-disk files left behind after their wanted item was removed, and
// prunes empty directories under each library root.
func (o *Organizer) Cleanup(ctx context.Context) error {
	files, err := o.lib.ListFiles(library.FileFilter{})
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}

	for _, f := range files {
		if _, err := os.Stat(f.Path); !os.IsNotExist(err) {
			continue
		}
		if err := o.lib.DeleteFile(f.ID); err != nil {
			o.log.Error("delete stale file record failed", "file_id", f.ID, "error", err)
			continue
		}
		o.log.Info("removed stale file record", "file_id", f.ID, "path", f.Path)
	}

	orphans, err := o.lib.OrphanedFiles()
	if err != nil {
		return fmt.Errorf("list orphaned files: %w", err)
	}
	for _, f := range orphans {
		lib, err := o.lib.GetLibrary(f.LibraryID)
		if err != nil {
			o.log.Error("orphan cleanup: get library failed", "file_id", f.ID, "error", err)
			continue
		}
		if err := ValidatePath(f.Path, lib.Root); err != nil {
			o.log.Warn("orphaned file outside library root, dropping record only", "path", f.Path)
		} else if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			o.log.Error("remove orphaned file failed", "path", f.Path, "error", err)
			continue
		}
		if err := o.lib.DeleteFile(f.ID); err != nil {
			o.log.Error("delete orphaned file record failed", "file_id", f.ID, "error", err)
			continue
		}
		o.log.Info("removed orphaned file", "file_id", f.ID, "path", f.Path)
	}

	libs, err := o.lib.ListLibraries("")
	if err != nil {
		return fmt.Errorf("list libraries: %w", err)
	}
	for _, l := range libs {
		sweepEmptyDirs(l.Root)
	}
	return nil
}

func (o *Organizer) rejectMatch(pm *match.PendingMatch, w *library.WantedItem, reason string) error {
	if err := o.pending.Reject(pm, reason); err != nil {
		return err
	}
	// The slot keeps its existing file; free the claim for future upgrades.
	if err := o.lib.ReleaseWanted(w.ID, pm.ID); err != nil {
		o.log.Error("release wanted failed", "wanted_id", w.ID, "error", err)
	}
	o.log.Info("match rejected on quality", "match_id", pm.ID, "reason", reason)
	return nil
}

func (o *Organizer) failCopy(pm *match.PendingMatch, reason string) error {
	if err := o.pending.SetCopyStatus(pm, match.CopyFailed, reason); err != nil {
		return err
	}
	o.bus.Publish(&events.OrganizeFailed{
		BaseEvent:  events.NewBaseEvent(events.EventOrganizeFailed, events.EntityMatch, pm.ID),
		MatchID:    pm.ID,
		SourcePath: pm.SourcePath,
		Reason:     reason,
	})
	o.log.Warn("organize failed", "match_id", pm.ID, "reason", reason)
	return nil
}

// qualityLabel builds the {quality} template variable.
func qualityLabel(info *relname.Info) string {
	var parts []string
	if info.Resolution != relname.ResolutionUnknown {
		parts = append(parts, info.Resolution.String())
	}
	if info.Source != relname.SourceUnknown {
		parts = append(parts, info.Source.String())
	}
	if info.Codec != relname.CodecUnknown {
		parts = append(parts, info.Codec.String())
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, " ")
}

// enumLabel turns the stringer's "unknown" into an empty column value.
func enumLabel(s string) string {
	if s == "unknown" {
		return ""
	}
	return s
}
