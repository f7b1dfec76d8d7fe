package match

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/grabarr/internal/events"
	"github.com/vmunix/grabarr/internal/library"
)

func TestMatcher_AutoCommit(t *testing.T) {
	h := newTestHarness(t, library.TypeTV, testMatchingConfig())
	ctx := context.Background()

	w := h.addWanted(t, &library.WantedItem{Name: "The Show", Season: 1, Episode: 5})
	pm := h.addPending(t, "/downloads/The.Show.S01E05.720p.WEB.x264-GRP.mkv")

	committed := h.bus.Subscribe(events.EventMatchCommitted, 4)

	got, err := h.matcher.Match(ctx, pm, h.libRec)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, w.ID, got.ID)

	assert.True(t, pm.Committed())
	assert.Equal(t, "auto", pm.MatchType)
	assert.Equal(t, CopyPending, pm.CopyStatus)
	assert.GreaterOrEqual(t, pm.Confidence, 0.7)
	assert.NotEmpty(t, pm.Parsed)

	// The slot is claimed; nothing else can take it.
	err = h.lib.ClaimWanted(w.ID, pm.ID+1)
	assert.ErrorIs(t, err, library.ErrAlreadyClaimed)

	e := <-committed
	mc, ok := e.(*events.MatchCommitted)
	require.True(t, ok)
	assert.Equal(t, pm.ID, mc.MatchID)
	assert.Equal(t, w.ID, mc.WantedItemID)
}

func TestMatcher_PicksBestOfSeveral(t *testing.T) {
	h := newTestHarness(t, library.TypeTV, testMatchingConfig())

	h.addWanted(t, &library.WantedItem{Name: "The Show", Season: 1, Episode: 4})
	want := h.addWanted(t, &library.WantedItem{Name: "The Show", Season: 1, Episode: 5})
	h.addWanted(t, &library.WantedItem{Name: "The Show", Season: 1, Episode: 6})

	pm := h.addPending(t, "/downloads/The.Show.S01E05.720p.WEB.x264-GRP.mkv")
	got, err := h.matcher.Match(context.Background(), pm, h.libRec)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.ID, got.ID)
}

func TestMatcher_BelowThresholdStaysPending(t *testing.T) {
	h := newTestHarness(t, library.TypeTV, testMatchingConfig())

	h.addWanted(t, &library.WantedItem{Name: "Breaking News Tonight", Season: 2, Episode: 7})
	pm := h.addPending(t, "/downloads/Totally.Other.Show.S01E01.720p.mkv")

	got, err := h.matcher.Match(context.Background(), pm, h.libRec)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Nil(t, pm.WantedItemID)
	assert.NotEmpty(t, pm.UnmatchedReason)
	assert.Equal(t, 1, pm.MatchAttempts)
	assert.False(t, pm.NeedsReview)
}

func TestMatcher_AttemptCapFlagsReview(t *testing.T) {
	cfg := testMatchingConfig()
	cfg.MatchAttemptCap = 2
	h := newTestHarness(t, library.TypeTV, cfg)
	ctx := context.Background()

	// Nothing wanted, so every attempt misses.
	pm := h.addPending(t, "/downloads/Unknown.Release.S01E01.mkv")

	failed := h.bus.Subscribe(events.EventMatchFailed, 4)

	_, err := h.matcher.Match(ctx, pm, h.libRec)
	require.NoError(t, err)
	assert.False(t, pm.NeedsReview)

	_, err = h.matcher.Match(ctx, pm, h.libRec)
	require.NoError(t, err)
	assert.True(t, pm.NeedsReview)
	assert.Equal(t, 2, pm.MatchAttempts)

	select {
	case e := <-failed:
		mf, ok := e.(*events.MatchFailed)
		require.True(t, ok)
		assert.Equal(t, pm.ID, mf.MatchID)
	default:
		t.Fatal("expected a review-needed event")
	}

	// Flagged matches are left alone.
	got, err := h.matcher.Match(ctx, pm, h.libRec)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 2, pm.MatchAttempts)
}

func TestMatcher_ClaimedSlotIsSkipped(t *testing.T) {
	h := newTestHarness(t, library.TypeTV, testMatchingConfig())

	w := h.addWanted(t, &library.WantedItem{Name: "The Show", Season: 1, Episode: 5})
	require.NoError(t, h.lib.ClaimWanted(w.ID, 999))

	pm := h.addPending(t, "/downloads/The.Show.S01E05.720p.WEB.x264-GRP.mkv")
	got, err := h.matcher.Match(context.Background(), pm, h.libRec)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Nil(t, pm.WantedItemID)
	assert.NotEmpty(t, pm.UnmatchedReason)
}

func TestMatcher_MatchOnResolvedIsNoOp(t *testing.T) {
	h := newTestHarness(t, library.TypeTV, testMatchingConfig())

	w := h.addWanted(t, &library.WantedItem{Name: "The Show", Season: 1, Episode: 5})
	pm := h.addPending(t, "/downloads/The.Show.S01E05.720p.WEB.x264-GRP.mkv")

	_, err := h.matcher.Match(context.Background(), pm, h.libRec)
	require.NoError(t, err)
	require.NotNil(t, pm.WantedItemID)
	assert.Equal(t, w.ID, *pm.WantedItemID)
	attempts := pm.MatchAttempts

	got, err := h.matcher.Match(context.Background(), pm, h.libRec)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, attempts, pm.MatchAttempts)
}

func TestMatcher_ResolveManually(t *testing.T) {
	h := newTestHarness(t, library.TypeTV, testMatchingConfig())

	w := h.addWanted(t, &library.WantedItem{Name: "Obscure Foreign Title", Season: 3, Episode: 2})
	pm := h.addPending(t, "/downloads/OFT.302.720p.mkv")
	require.NoError(t, h.pending.FlagManual(pm, "no match"))

	require.NoError(t, h.matcher.ResolveManually(context.Background(), pm, w.ID))

	assert.True(t, pm.Committed())
	assert.Equal(t, "manual", pm.MatchType)
	assert.Equal(t, 1.0, pm.Confidence)
	assert.False(t, pm.NeedsReview)

	// The stored row agrees with the in-memory copy.
	stored, err := h.pending.Get(pm.ID)
	require.NoError(t, err)
	assert.False(t, stored.NeedsReview)
	require.NotNil(t, stored.WantedItemID)
	assert.Equal(t, w.ID, *stored.WantedItemID)

	err = h.matcher.ResolveManually(context.Background(), pm, w.ID)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestMatcher_CommitLeavesVerificationPending(t *testing.T) {
	h := newTestHarness(t, library.TypeTV, testMatchingConfig())

	h.addWanted(t, &library.WantedItem{Name: "The Show", Season: 1, Episode: 5})
	pm := h.addPending(t, "/downloads/The.Show.S01E05.720p.WEB.x264-GRP.mkv")

	_, err := h.matcher.Match(context.Background(), pm, h.libRec)
	require.NoError(t, err)

	// The quality decision has not run yet.
	assert.Equal(t, VerificationPending, pm.Verification)
	stored, err := h.pending.Get(pm.ID)
	require.NoError(t, err)
	assert.Equal(t, VerificationPending, stored.Verification)
}

func TestPendingStore_ConfirmedVerificationIsFinal(t *testing.T) {
	h := newTestHarness(t, library.TypeTV, testMatchingConfig())

	w := h.addWanted(t, &library.WantedItem{Name: "The Show", Season: 1, Episode: 5})
	pm := h.addPending(t, "/downloads/The.Show.S01E05.720p.mkv")
	require.NoError(t, h.pending.Commit(pm, w.ID, "auto", 0.9, "{}"))
	require.NoError(t, h.pending.Confirm(pm))

	err := h.pending.Reject(pm, "worse than existing")
	assert.ErrorIs(t, err, ErrVerificationFinal)

	stored, err := h.pending.Get(pm.ID)
	require.NoError(t, err)
	assert.Equal(t, VerificationConfirmed, stored.Verification)
	assert.Empty(t, stored.VerificationReason)
}

func TestPendingStore_RejectedMatchCannotBeConfirmed(t *testing.T) {
	h := newTestHarness(t, library.TypeTV, testMatchingConfig())

	w := h.addWanted(t, &library.WantedItem{Name: "The Show", Season: 1, Episode: 5})
	pm := h.addPending(t, "/downloads/The.Show.S01E05.720p.mkv")
	require.NoError(t, h.pending.Commit(pm, w.ID, "auto", 0.9, "{}"))
	require.NoError(t, h.pending.Reject(pm, "existing file wins"))

	err := h.pending.Confirm(pm)
	assert.ErrorIs(t, err, ErrVerificationFinal)

	stored, err := h.pending.Get(pm.ID)
	require.NoError(t, err)
	assert.Equal(t, VerificationRejected, stored.Verification)
	assert.Equal(t, "existing file wins", stored.VerificationReason)
}
