package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/vmunix/grabarr/internal/config"
	"github.com/vmunix/grabarr/internal/events"
	"github.com/vmunix/grabarr/internal/library"
	"github.com/vmunix/grabarr/pkg/relname"
)

// Matcher resolves pending matches against a library's wanted items.
// A commit claims the wanted item first, so no two matches can ever
// target the same slot.
type Matcher struct {
	pending *PendingStore
	lib     *library.Store
	scores  *ScoreEngine
	cfg     config.MatchingConfig
	bus     *events.Bus
	log     *slog.Logger
}

// NewMatcher creates a matcher.
func NewMatcher(pending *PendingStore, lib *library.Store, cfg config.MatchingConfig, bus *events.Bus, log *slog.Logger) *Matcher {
	if log == nil {
		log = slog.Default()
	}
	return &Matcher{
		pending: pending,
		lib:     lib,
		scores:  NewScoreEngine(cfg.Weights),
		cfg:     cfg,
		bus:     bus,
		log:     log.With("component", "matcher"),
	}
}

// parsedAttrs is the JSON shape stored alongside a committed match.
type parsedAttrs struct {
	Name          string `json:"name"`
	Title         string `json:"title,omitempty"`
	Year          int    `json:"year,omitempty"`
	Season        int    `json:"season,omitempty"`
	Episodes      []int  `json:"episodes,omitempty"`
	Track         int    `json:"track,omitempty"`
	Disc          int    `json:"disc,omitempty"`
	Resolution    string `json:"resolution,omitempty"`
	Source        string `json:"source,omitempty"`
	Codec         string `json:"codec,omitempty"`
	HDR           string `json:"hdr,omitempty"`
	AudioChannels int    `json:"audio_channels,omitempty"`
	Group         string `json:"group,omitempty"`
	Proper        bool   `json:"proper,omitempty"`
	Repack        bool   `json:"repack,omitempty"`
}

func encodeParsed(info *relname.Info) string {
	p := parsedAttrs{
		Name:          info.Name,
		Title:         info.Title,
		Year:          info.Year,
		Season:        info.Season,
		Episodes:      info.Episodes,
		Track:         info.Track,
		Disc:          info.Disc,
		AudioChannels: info.AudioChannels,
		Group:         info.Group,
		Proper:        info.Proper,
		Repack:        info.Repack,
	}
	if info.Resolution != relname.ResolutionUnknown {
		p.Resolution = info.Resolution.String()
	}
	if info.Source != relname.SourceUnknown {
		p.Source = info.Source.String()
	}
	if info.Codec != relname.CodecUnknown {
		p.Codec = info.Codec.String()
	}
	if info.HDR != relname.HDRNone {
		p.HDR = info.HDR.String()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Match attempts automatic resolution of a pending match. It returns
// the wanted item when the match commits, nil when it stays pending
// (below threshold, flagged for review, or lost a claim race).
// Calling Match on an already resolved match is a no-op.
func (m *Matcher) Match(ctx context.Context, pm *PendingMatch, lib *library.Library) (*library.WantedItem, error) {
	if pm.WantedItemID != nil || pm.NeedsReview {
		return nil, nil
	}
	if m.cfg.MatchAttemptCap > 0 && pm.MatchAttempts >= m.cfg.MatchAttemptCap {
		return nil, m.flagForReview(pm, fmt.Sprintf("no match after %d attempts", pm.MatchAttempts))
	}
	if err := m.pending.IncrementAttempts(pm); err != nil {
		return nil, err
	}

	info := relname.Parse(filepath.Base(pm.SourcePath))

	candidates, err := m.lib.ListWanted(library.WantedFilter{LibraryID: &lib.ID, Unclaimed: true})
	if err != nil {
		return nil, fmt.Errorf("list wanted: %w", err)
	}
	if len(candidates) == 0 {
		return nil, m.recordMiss(pm, "no unclaimed wanted items in library", 0)
	}
	candidates = prefilter(info, candidates)

	best, bestScore := m.pickBest(info, lib.Type, candidates)
	if best == nil || bestScore < m.cfg.AutoAcceptThreshold {
		reason := fmt.Sprintf("best score %.2f below threshold %.2f", bestScore, m.cfg.AutoAcceptThreshold)
		if best == nil {
			reason = "no scorable candidates"
		}
		return nil, m.recordMiss(pm, reason, bestScore)
	}

	if err := m.lib.ClaimWanted(best.ID, pm.ID); err != nil {
		if errors.Is(err, library.ErrAlreadyClaimed) {
			return nil, m.recordMiss(pm, fmt.Sprintf("wanted item %d claimed concurrently", best.ID), bestScore)
		}
		return nil, fmt.Errorf("claim wanted %d: %w", best.ID, err)
	}

	if err := m.pending.Commit(pm, best.ID, "auto", bestScore, encodeParsed(info)); err != nil {
		// Another worker resolved this match first; give the slot back.
		if errors.Is(err, ErrAlreadyResolved) {
			if relErr := m.lib.ReleaseWanted(best.ID, pm.ID); relErr != nil {
				m.log.Error("release wanted failed", "wanted_id", best.ID, "error", relErr)
			}
			return nil, nil
		}
		return nil, err
	}

	m.bus.Publish(&events.MatchCommitted{
		BaseEvent:    events.NewBaseEvent(events.EventMatchCommitted, events.EntityMatch, pm.ID),
		MatchID:      pm.ID,
		WantedItemID: best.ID,
		SourcePath:   pm.SourcePath,
		Confidence:   bestScore,
	})
	m.log.Info("match committed",
		"match_id", pm.ID, "wanted_id", best.ID,
		"path", pm.SourcePath, "confidence", fmt.Sprintf("%.2f", bestScore))
	return best, nil
}

// ResolveManually commits a reviewed match to an operator-chosen
// wanted item with full confidence.
func (m *Matcher) ResolveManually(ctx context.Context, pm *PendingMatch, wantedItemID int64) error {
	if pm.WantedItemID != nil {
		return ErrAlreadyResolved
	}
	if err := m.lib.ClaimWanted(wantedItemID, pm.ID); err != nil {
		return fmt.Errorf("claim wanted %d: %w", wantedItemID, err)
	}

	info := relname.Parse(filepath.Base(pm.SourcePath))
	if err := m.pending.Commit(pm, wantedItemID, "manual", 1.0, encodeParsed(info)); err != nil {
		if relErr := m.lib.ReleaseWanted(wantedItemID, pm.ID); relErr != nil {
			m.log.Error("release wanted failed", "wanted_id", wantedItemID, "error", relErr)
		}
		return err
	}

	m.bus.Publish(&events.MatchCommitted{
		BaseEvent:    events.NewBaseEvent(events.EventMatchCommitted, events.EntityMatch, pm.ID),
		MatchID:      pm.ID,
		WantedItemID: wantedItemID,
		SourcePath:   pm.SourcePath,
		Confidence:   1.0,
	})
	m.log.Info("match resolved manually", "match_id", pm.ID, "wanted_id", wantedItemID)
	return nil
}

// pickBest scores every candidate and returns the winner. Ties on
// total score fall to the highest-weighted field's similarity, then to
// the earliest-created item.
func (m *Matcher) pickBest(info *relname.Info, libType library.Type, candidates []*library.WantedItem) (*library.WantedItem, float64) {
	var best *library.WantedItem
	var bestScore, bestTop float64

	for _, w := range candidates {
		score, top := m.scores.Score(info, libType, w)
		better := score > bestScore ||
			(score == bestScore && top > bestTop) ||
			(score == bestScore && top == bestTop && best != nil && w.CreatedAt.Before(best.CreatedAt))
		if best == nil || better {
			best, bestScore, bestTop = w, score, top
		}
	}
	return best, bestScore
}

// prefilter narrows candidates to those whose cleaned name appears as
// a fuzzy subsequence of the cleaned file name. Falls back to the full
// set when nothing survives, since the scorer has the final word.
func prefilter(info *relname.Info, candidates []*library.WantedItem) []*library.WantedItem {
	if info.CleanName == "" {
		return candidates
	}
	var kept []*library.WantedItem
	for _, w := range candidates {
		if fuzzy.MatchNormalizedFold(relname.Clean(w.Name), info.CleanName) {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return candidates
	}
	return kept
}

func (m *Matcher) recordMiss(pm *PendingMatch, reason string, confidence float64) error {
	if m.cfg.MatchAttemptCap > 0 && pm.MatchAttempts >= m.cfg.MatchAttemptCap {
		return m.flagForReview(pm, reason)
	}
	if err := m.pending.RecordUnmatched(pm, reason, confidence); err != nil {
		return err
	}
	m.bus.Publish(&events.MatchAmbiguous{
		BaseEvent:  events.NewBaseEvent(events.EventMatchAmbiguous, events.EntityMatch, pm.ID),
		MatchID:    pm.ID,
		SourcePath: pm.SourcePath,
		Reason:     reason,
	})
	m.log.Info("match unresolved", "match_id", pm.ID, "path", pm.SourcePath, "reason", reason)
	return nil
}

func (m *Matcher) flagForReview(pm *PendingMatch, reason string) error {
	if err := m.pending.FlagManual(pm, reason); err != nil {
		return err
	}
	m.bus.Publish(&events.MatchFailed{
		BaseEvent:  events.NewBaseEvent(events.EventMatchFailed, events.EntityMatch, pm.ID),
		MatchID:    pm.ID,
		SourcePath: pm.SourcePath,
		Reason:     reason,
	})
	m.log.Warn("match needs review", "match_id", pm.ID, "path", pm.SourcePath, "reason", reason)
	return nil
}
